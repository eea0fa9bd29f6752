// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety screens raw messages for crisis language before anything
// else runs.
//
// # Description
//
// The gate is the first pipeline stage, ahead of every network call. A
// triggered message gets the fixed crisis response immediately: the catalog
// is never fetched, no model is called, and the response content never
// depends on either being reachable.
package safety

import (
	"fmt"
	"regexp"

	"github.com/AleutianAI/navigator/services/navigator/config"
)

// Response is the fixed content returned for a triggered message.
//
// Description:
//
//	Intro and Resources come verbatim from policy. Nothing here is
//	templated per request.
type Response struct {
	// Intro is the supportive message shown before the resources.
	Intro string `json:"intro"`

	// Resources are the fixed crisis contacts.
	Resources []config.CrisisResource `json:"resources"`
}

// Gate matches messages against the compiled crisis-language patterns.
//
// Description:
//
//	Patterns compile once at construction; a check is one pass over the
//	pattern list, so cost is O(pattern count) regardless of message
//	content.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Gate struct {
	patterns []*regexp.Regexp
	response Response
}

// NewGate compiles the policy's safety patterns into a Gate.
//
// Inputs:
//
//	cfg - A validated policy. Must not be nil.
//
// Outputs:
//
//	*Gate - Ready for concurrent use.
//	error - Non-nil if a pattern fails to compile, naming its index.
func NewGate(cfg *config.PolicyConfig) (*Gate, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.Safety.Patterns))
	for i, p := range cfg.Safety.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("safety pattern [%d] %q: %w", i, p, err)
		}
		patterns = append(patterns, re)
	}

	resources := make([]config.CrisisResource, len(cfg.Safety.Resources))
	copy(resources, cfg.Safety.Resources)

	return &Gate{
		patterns: patterns,
		response: Response{
			Intro:     cfg.Safety.Intro,
			Resources: resources,
		},
	}, nil
}

// Triggered reports whether the raw message contains crisis language.
//
// Description:
//
//	Checks the message as-is; the patterns own their case folding and
//	whitespace tolerance. Stops at the first match.
//
// Inputs:
//
//	message - Raw user message text.
//
// Outputs:
//
//	bool - True when any pattern matches.
func (g *Gate) Triggered(message string) bool {
	for _, re := range g.patterns {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

// Response returns the fixed crisis response.
//
// Outputs:
//
//	Response - Identical content on every call.
func (g *Gate) Response() Response {
	return g.response
}

// PatternCount returns the number of compiled patterns, for logging.
func (g *Gate) PatternCount() int {
	return len(g.patterns)
}
