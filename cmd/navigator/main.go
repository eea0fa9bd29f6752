// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command navigator is the CLI for the Aleutian resource navigator.
//
// The navigator recommends support resources to teens from a curated
// catalog. Every message passes a safety gate before anything else runs;
// recommendations come only from the catalog, never from model memory.
//
// Usage:
//
//	navigator serve
//	navigator ask "I need a support group for grief"
//	navigator chat
//	navigator catalog --check
//	navigator init
//
// The server address for client commands comes from NAVIGATOR_URL
// (default http://localhost:8090).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version metadata, overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCommand builds the full command tree.
//
// Description:
//
//	Constructed fresh per call so tests can execute the tree in-process
//	without sharing flag state between cases.
//
// Outputs:
//
//	*cobra.Command - The root command with every subcommand attached.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "navigator",
		Short:   "Teen support resource navigator",
		Long:    "Navigator recommends vetted support resources to teens.\nEvery message is safety-gated before any model or network call,\nand replies only ever reference resources from the curated catalog.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newAskCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newCatalogCommand())
	root.AddCommand(newInitCommand())

	return root
}

// getNavigatorBaseURL returns the server address for client commands.
// NAVIGATOR_URL overrides the local default.
func getNavigatorBaseURL() string {
	if url := os.Getenv("NAVIGATOR_URL"); url != "" {
		return url
	}
	return "http://localhost:8090"
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
