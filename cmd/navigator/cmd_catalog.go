// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/navigator/services/navigator/catalog"
)

// Flag values for the catalog command.
var (
	catalogURL     string
	catalogCheck   bool
	catalogJSON    bool
	catalogTimeout time.Duration
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Fetch and validate the resource catalog",
		Long: "Fetches the published catalog sheet directly (no server needed), applies\n" +
			"the same header contract the service enforces, and prints the records.\n\n" +
			"With --check, exits non-zero when the sheet violates the contract:\n" +
			"missing required columns, no usable rows, or duplicate resource ids.\n" +
			"The URL comes from --url or NAVIGATOR_CATALOG_URL.",
		Args: cobra.NoArgs,
		Run:  runCatalogCommand,
	}
	cmd.Flags().StringVar(&catalogURL, "url", "", "catalog CSV URL (default NAVIGATOR_CATALOG_URL)")
	cmd.Flags().BoolVar(&catalogCheck, "check", false, "validate only; exit 1 on contract violations")
	cmd.Flags().BoolVar(&catalogJSON, "json", false, "print records as JSON")
	cmd.Flags().DurationVar(&catalogTimeout, "timeout", catalog.DefaultFetchTimeout, "fetch timeout")
	return cmd
}

func runCatalogCommand(_ *cobra.Command, _ []string) {
	url := catalogURL
	if url == "" {
		url = os.Getenv("NAVIGATOR_CATALOG_URL")
	}
	if url == "" {
		log.Fatalf("no catalog URL: pass --url or set NAVIGATOR_CATALOG_URL")
	}

	fetcher := catalog.NewHTTPFetcher(url, catalogTimeout)
	loader := catalog.NewLoader(fetcher, catalog.NewCache(catalog.DefaultTTL))

	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout+5*time.Second)
	defer cancel()

	records, err := loader.Refresh(ctx)
	if err != nil {
		reportCatalogError(err)
		os.Exit(1)
	}

	dupes := duplicateIDs(records)

	if catalogJSON {
		raw, marshalErr := json.MarshalIndent(records, "", "  ")
		if marshalErr != nil {
			log.Fatalf("failed to encode records: %v", marshalErr)
		}
		fmt.Println(string(raw))
	} else if catalogCheck {
		fmt.Printf("Catalog OK: %d records, %d required columns present\n",
			len(records), len(catalog.RequiredColumns))
	} else {
		fmt.Printf("%d records\n\n", len(records))
		for _, rec := range records {
			fmt.Printf("%-20s %s\n", rec.ID, rec.Title)
			fmt.Printf("%-20s %s\n", "", rec.URL)
			if rec.BestFor != "" {
				fmt.Printf("%-20s best for: %s\n", "", rec.BestFor)
			}
			fmt.Println()
		}
	}

	if len(dupes) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: duplicate resource ids: %s\n", strings.Join(dupes, ", "))
		if catalogCheck {
			os.Exit(1)
		}
	}
}

// reportCatalogError explains the contract violation in operator terms.
func reportCatalogError(err error) {
	var missingCol *catalog.MissingColumnError
	var fetchErr *catalog.FetchError
	switch {
	case errors.As(err, &missingCol):
		fmt.Fprintf(os.Stderr, "Contract violation: required column %q not found in the header row.\n", missingCol.Column)
		fmt.Fprintf(os.Stderr, "Required columns (after normalization): %s\n", strings.Join(catalog.RequiredColumns, ", "))
	case errors.Is(err, catalog.ErrEmptyCatalog):
		fmt.Fprintln(os.Stderr, "Contract violation: the sheet contains no usable rows (every row is missing id, title, or url).")
	case errors.As(err, &fetchErr):
		fmt.Fprintf(os.Stderr, "Fetch failed: HTTP %d from the catalog source.\n", fetchErr.Status)
	default:
		fmt.Fprintf(os.Stderr, "Catalog load failed: %v\n", err)
	}
}

// duplicateIDs returns ids appearing more than once, in first-seen order.
// The id column is the catalog's unique key; duplicates mean sheet editing
// went wrong even though the loader tolerates them.
func duplicateIDs(records []catalog.ResourceRecord) []string {
	seen := make(map[string]int, len(records))
	var dupes []string
	for _, rec := range records {
		seen[rec.ID]++
		if seen[rec.ID] == 2 {
			dupes = append(dupes, rec.ID)
		}
	}
	return dupes
}
