// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intake triages messages before the ranking pipeline runs.
//
// # Description
//
// A fast, local, keyword-weighted pass that answers one question: is this a
// social opener, an off-topic request, or an actual ask for help? Greetings
// and out-of-scope messages get a canned reply without a catalog fetch or a
// model call; everything else proceeds to the full pipeline. Ambiguity here
// is not the selector's ambiguity: an ambiguous intake result just means
// "proceed and let the real pipeline decide".
package intake

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/navigator/services/navigator/config"
)

// Category is the triage outcome for one message.
type Category string

const (
	// CategoryGreeting marks pure social openers.
	CategoryGreeting Category = "greeting"

	// CategoryResourceRequest marks messages asking for help or resources.
	CategoryResourceRequest Category = "resource_request"

	// CategoryOutOfScope marks requests this service does not handle.
	CategoryOutOfScope Category = "out_of_scope"

	// CategoryAmbiguous marks messages with no confident category. These
	// proceed to the full pipeline.
	CategoryAmbiguous Category = "ambiguous"
)

// Signal records one keyword that contributed to a classification.
type Signal struct {
	Term   string `json:"term"`
	Weight int    `json:"weight"`
}

// Classification is the triage result with its contributing signals.
type Classification struct {
	Category Category `json:"category"`
	Score    int      `json:"score"`
	Signals  []Signal `json:"signals,omitempty"`
}

// keyword is one compiled rule.
type keyword struct {
	pattern *regexp.Regexp
	term    string
	weight  int
}

// categoryRules holds one category's compiled keywords, in policy order.
type categoryRules struct {
	category Category
	keywords []keyword
}

// Classifier scores messages against the configured intake rules.
//
// Description:
//
//	Patterns compile once at construction. Classification is a single
//	pass over the rule list per category, deterministic for a given
//	message.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Classifier struct {
	minScore int
	margin   int
	rules    []categoryRules
}

// NewClassifier compiles the policy's intake rules.
//
// Inputs:
//
//	cfg - A validated policy. Must not be nil.
//
// Outputs:
//
//	*Classifier - Ready for concurrent use.
func NewClassifier(cfg *config.PolicyConfig) *Classifier {
	return &Classifier{
		minScore: cfg.Intake.MinScore,
		margin:   cfg.Intake.AmbiguityMargin,
		rules: []categoryRules{
			{category: CategoryGreeting, keywords: compileRules(cfg.Intake.Greeting)},
			{category: CategoryResourceRequest, keywords: compileRules(cfg.Intake.ResourceRequest)},
			{category: CategoryOutOfScope, keywords: compileRules(cfg.Intake.OutOfScope)},
		},
	}
}

// compileRules turns configured terms into boundary-anchored patterns.
// Multi-word phrases match exactly; single words of four or more letters
// tolerate common suffixes (mentor matches mentors, need matches needed).
// Short words match exactly so "hi" cannot match inside "his".
func compileRules(rules []config.IntakeRule) []keyword {
	out := make([]keyword, 0, len(rules))
	for _, r := range rules {
		term := strings.ToLower(strings.TrimSpace(r.Term))
		if term == "" {
			continue
		}
		var pattern string
		switch {
		case strings.Contains(term, " "):
			pattern = `(?i)\b` + regexp.QuoteMeta(term) + `\b`
		case len(term) >= 4:
			pattern = `(?i)\b` + regexp.QuoteMeta(term) + `(?:es|s|ed|ing)?\b`
		default:
			pattern = `(?i)\b` + regexp.QuoteMeta(term) + `\b`
		}
		out = append(out, keyword{
			pattern: regexp.MustCompile(pattern),
			term:    r.Term,
			weight:  r.Weight,
		})
	}
	return out
}

// Classify triages one message.
//
// Description:
//
//	Sums the weights of matched terms per category and picks the best.
//	Returns CategoryAmbiguous when nothing matches, the best score is
//	below the configured minimum, or the runner-up is within the
//	ambiguity margin. Ties between categories resolve to the earlier
//	category in greeting, resource_request, out_of_scope order, which
//	keeps results deterministic.
//
// Inputs:
//
//	message - Raw message text.
//
// Outputs:
//
//	Classification - Category, winning score, and contributing signals.
func (c *Classifier) Classify(message string) Classification {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Classification{Category: CategoryAmbiguous}
	}

	type scored struct {
		category Category
		score    int
		signals  []Signal
	}

	results := make([]scored, 0, len(c.rules))
	for _, cr := range c.rules {
		var s scored
		s.category = cr.category
		for _, kw := range cr.keywords {
			if kw.pattern.MatchString(trimmed) {
				s.score += kw.weight
				s.signals = append(s.signals, Signal{Term: kw.term, Weight: kw.weight})
			}
		}
		results = append(results, s)
	}

	best, second := results[0], scored{}
	for _, s := range results[1:] {
		if s.score > best.score {
			second = best
			best = s
		} else if s.score > second.score {
			second = s
		}
	}

	if best.score == 0 || best.score < c.minScore {
		return Classification{Category: CategoryAmbiguous, Score: best.score, Signals: best.signals}
	}
	if second.score > 0 && best.score-second.score < c.margin {
		merged := make([]Signal, 0, len(best.signals)+len(second.signals))
		merged = append(merged, best.signals...)
		merged = append(merged, second.signals...)
		return Classification{Category: CategoryAmbiguous, Score: best.score, Signals: merged}
	}

	return Classification{Category: best.category, Score: best.score, Signals: best.signals}
}
