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
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/navigator/services/navigator/config"
)

// Flag values for the init command.
var (
	initOutput string
	initForce  bool
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a config file interactively",
		Long: "Walks through the settings the navigator needs and writes a config.yaml.\n" +
			"Only the catalog URL is required; everything else keeps sane defaults.\n" +
			"API keys are never written to the file; they are read from the\n" +
			"environment at serve time (ANTHROPIC_API_KEY or OPENAI_API_KEY).",
		Args: cobra.NoArgs,
		Run:  runInitCommand,
	}
	cmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "where to write the config file")
	cmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	return cmd
}

func runInitCommand(_ *cobra.Command, _ []string) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		log.Fatalf("init is interactive and needs a terminal; write %s by hand or set NAVIGATOR_* variables instead", initOutput)
	}

	if _, err := os.Stat(initOutput); err == nil && !initForce {
		log.Fatalf("%s already exists; pass --force to overwrite", initOutput)
	}

	cfg := config.DefaultServiceConfig()

	var (
		catalogSheetURL string
		provider        = cfg.LLM.Provider
		portValue       = strconv.Itoa(cfg.Server.Port)
		snapshotDir     string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Catalog URL").
				Description("Published CSV export of the resource sheet (plain HTTPS GET, no auth).").
				Placeholder("https://docs.google.com/spreadsheets/d/e/.../pub?output=csv").
				Value(&catalogSheetURL).
				Validate(validateCatalogURL),
			huh.NewSelect[string]().
				Title("Model provider").
				Description("Used for intent classification and reply rewriting.").
				Options(
					huh.NewOption("Anthropic", config.ProviderAnthropic),
					huh.NewOption("OpenAI", config.ProviderOpenAI),
				).
				Value(&provider),
			huh.NewInput().
				Title("Listen port").
				Value(&portValue).
				Validate(validatePort),
			huh.NewInput().
				Title("Snapshot directory (optional)").
				Description("Persists the last good catalog across restarts. Empty disables persistence.").
				Value(&snapshotDir),
		),
	)

	if err := form.Run(); err != nil {
		log.Fatalf("init cancelled: %v", err)
	}

	cfg.Catalog.URL = strings.TrimSpace(catalogSheetURL)
	cfg.LLM.Provider = provider
	if provider == config.ProviderOpenAI {
		// The model defaults are Anthropic identifiers; blank them so the
		// operator fills in OpenAI models rather than shipping a mismatch.
		cfg.LLM.Model = "gpt-4o"
		cfg.LLM.ClassifierModel = "gpt-4o-mini"
	}
	cfg.Server.Port, _ = strconv.Atoi(portValue)
	cfg.Snapshot.Dir = strings.TrimSpace(snapshotDir)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		log.Fatalf("failed to encode config: %v", err)
	}

	if err := os.WriteFile(initOutput, data, 0o644); err != nil {
		log.Fatalf("failed to write %s: %v", initOutput, err)
	}

	fmt.Printf("Wrote %s\n\n", initOutput)
	fmt.Printf("Next steps:\n")
	fmt.Printf("  1. export %s_API_KEY=...\n", strings.ToUpper(provider))
	fmt.Printf("  2. navigator serve --config %s\n", initOutput)
	fmt.Printf("  3. navigator catalog --url <catalog url> --check\n")
}

func validateCatalogURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("the catalog URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	return nil
}

func validatePort(raw string) error {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}
