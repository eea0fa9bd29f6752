// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

var configTracer = otel.Tracer("navigator.config")

// MaxYAMLFileSize is the maximum size of a YAML config file we will parse.
// Guards against accidentally pointing NAVIGATOR_POLICY_FILE at a huge file.
const MaxYAMLFileSize = 1 << 20 // 1 MiB

// PolicyFileEnv names the environment variable that overrides the embedded
// default policy with an external YAML file.
const PolicyFileEnv = "NAVIGATOR_POLICY_FILE"

// =============================================================================
// Embedded Default Policy
// =============================================================================

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// =============================================================================
// Policy Configuration Types
// =============================================================================

// PolicyConfig defines the scoring weights, keyword lists, and safety rules
// for the resource navigator.
//
// Description:
//
//	Everything the ranking predicates and the safety gate match against.
//	Loaded once from the embedded default (or NAVIGATOR_POLICY_FILE) and
//	treated as immutable afterward; hot reload swaps the whole pointer.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type PolicyConfig struct {
	// Weights are the scoring contributions for each signal.
	Weights ScoringWeights `yaml:"weights"`

	// Selection bounds the candidate selection stage.
	Selection SelectionPolicy `yaml:"selection"`

	// MissionKeywords mark a resource's connection field as mission-relevant.
	// Matched as lowercase substrings.
	MissionKeywords []string `yaml:"mission_keywords"`

	// CrisisIndicators mark a record as a crisis resource. Matched as
	// lowercase substrings against the record's guidance text.
	CrisisIndicators []string `yaml:"crisis_indicators"`

	// Audiences are the demographic scopes a resource can be restricted to.
	Audiences []AudiencePolicy `yaml:"audiences"`

	// Safety holds the crisis-language patterns and the fixed response.
	Safety SafetyPolicy `yaml:"safety"`

	// Intake holds the keyword rules for first-pass message triage.
	Intake IntakePolicy `yaml:"intake"`

	// Replies holds the fixed reply texts for turns that end without the
	// rewriter.
	Replies RepliesPolicy `yaml:"replies"`

	// Stopwords are removed from token streams before scoring.
	Stopwords []string `yaml:"stopwords"`
}

// ScoringWeights are the per-signal score contributions.
//
// Description:
//
//	Each matched request token adds RequestToken, each matched classifier
//	tag token adds TagToken, and the three predicates add or subtract
//	their flat amounts. TagToken must be >= RequestToken: intent inferred
//	by the classifier is never weighted below raw keyword overlap.
type ScoringWeights struct {
	// RequestToken is added once per distinct request token found in the
	// record's descriptive text.
	RequestToken int `yaml:"request_token"`

	// TagToken is added once per distinct classifier tag token found in the
	// record's descriptive text.
	TagToken int `yaml:"tag_token"`

	// MissionBoost is added when the record's connection field contains any
	// mission keyword.
	MissionBoost int `yaml:"mission_boost"`

	// CrisisBoost is added to crisis resources when urgency is high.
	CrisisBoost int `yaml:"crisis_boost"`

	// DemographicPenalty is subtracted when the record targets an audience
	// the request gives no membership signal for.
	DemographicPenalty int `yaml:"demographic_penalty"`
}

// SelectionPolicy bounds the candidate selection stage.
type SelectionPolicy struct {
	// MaxResults is the maximum number of resources returned to the caller.
	MaxResults int `yaml:"max_results"`

	// WeakTopScore is the score at or below which the top candidate counts
	// as weak for the ambiguity check.
	WeakTopScore int `yaml:"weak_top_score"`

	// CloseGap is the maximum lead over the runner-up for the top candidate
	// to count as closely contested.
	CloseGap int `yaml:"close_gap"`
}

// AudiencePolicy scopes resources to a demographic audience.
//
// Description:
//
//	A record whose text matches any indicator is treated as targeted at
//	this audience. A request whose tokens include any member term counts
//	as a member and skips the penalty for this audience.
type AudiencePolicy struct {
	// Name identifies the audience (e.g. "female", "male").
	Name string `yaml:"name"`

	// Indicators are lowercase substrings that mark a resource as targeted,
	// such as "for girls" or "young men".
	Indicators []string `yaml:"indicators"`

	// Members are request-side tokens that signal membership, such as
	// "girl" or "son".
	Members []string `yaml:"members"`
}

// SafetyPolicy holds the crisis-language patterns and the fixed response
// returned when one matches.
//
// Description:
//
//	Patterns are compiled at load time so a bad pattern fails the whole
//	load rather than silently never matching. The intro and resources are
//	returned verbatim; they never depend on the catalog or the model.
type SafetyPolicy struct {
	// Patterns are regular expressions checked against the raw message.
	Patterns []string `yaml:"patterns"`

	// Intro is the fixed supportive message shown before the resources.
	Intro string `yaml:"intro"`

	// Resources are the fixed crisis contacts.
	Resources []CrisisResource `yaml:"resources"`
}

// CrisisResource is one fixed crisis contact in the safety response.
type CrisisResource struct {
	Title       string `yaml:"title" json:"title"`
	URL         string `yaml:"url" json:"url"`
	Description string `yaml:"description" json:"description"`
}

// IntakePolicy holds the keyword rules for first-pass message triage.
//
// Description:
//
//	The intake classifier sums the weights of matched terms per category
//	and picks the highest-scoring one. Messages scoring below MinScore
//	everywhere, or whose top two categories land within AmbiguityMargin,
//	are routed to clarification instead.
type IntakePolicy struct {
	// MinScore is the minimum winning score for a confident classification.
	MinScore int `yaml:"min_score"`

	// AmbiguityMargin is the minimum lead the winning category needs over
	// the runner-up.
	AmbiguityMargin int `yaml:"ambiguity_margin"`

	// Greeting terms mark pure social openers.
	Greeting []IntakeRule `yaml:"greeting"`

	// ResourceRequest terms mark requests for help or resources.
	ResourceRequest []IntakeRule `yaml:"resource_request"`

	// OutOfScope terms mark requests this service does not handle.
	OutOfScope []IntakeRule `yaml:"out_of_scope"`
}

// IntakeRule is one weighted keyword in an intake category.
type IntakeRule struct {
	// Term is matched as a whole word or phrase, case-insensitively.
	Term string `yaml:"term"`

	// Weight is the score contribution when the term matches.
	Weight int `yaml:"weight"`
}

// RepliesPolicy holds the fixed reply texts for turns that never reach the
// rewriter.
//
// Description:
//
//	Greeting and OutOfScope close intake-terminated turns. Clarify is the
//	follow-up question used when the classifier flagged ambiguity without
//	suggesting a question of its own. NoMatch closes selections that found
//	nothing. All four are returned verbatim.
type RepliesPolicy struct {
	Greeting   string `yaml:"greeting"`
	OutOfScope string `yaml:"out_of_scope"`
	Clarify    string `yaml:"clarify"`
	NoMatch    string `yaml:"no_match"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultMaxResults is the default cap on returned resources.
	DefaultMaxResults = 3

	// DefaultWeakTopScore is the default weak-top-score threshold.
	DefaultWeakTopScore = 8

	// DefaultCloseGap is the default closely-contested gap.
	DefaultCloseGap = 2

	// DefaultIntakeMinScore is the default confident-classification floor.
	DefaultIntakeMinScore = 3

	// DefaultIntakeAmbiguityMargin is the default winning-lead requirement.
	DefaultIntakeAmbiguityMargin = 2
)

// Default reply texts, used when the policy file leaves one blank.
const (
	DefaultGreetingReply = "Hey! I'm here to help you find support: mentors, groups, camps, and programs. What's going on in your life right now?"

	DefaultOutOfScopeReply = "That's outside what I can help with. I'm here to connect you with support resources, so tell me a bit about what's going on in your life and I'll see what I can find."

	DefaultClarifyReply = "Could you tell me a little more about what you're going through? Even a sentence or two helps me find the right fit."

	DefaultNoMatchReply = "I couldn't find a resource that clearly fits what you described. Could you tell me a bit more about what kind of support you're looking for?"
)

// =============================================================================
// Singleton Policy Config
// =============================================================================

var (
	policyConfigMu      sync.RWMutex
	policyConfigOnce    sync.Once
	cachedPolicyConfig  *PolicyConfig
	policyConfigLoadErr error
)

// GetPolicyConfig returns the cached policy configuration.
//
// Description:
//
//	Loads the policy on first call and caches it for subsequent calls.
//	If NAVIGATOR_POLICY_FILE is set, that file replaces the embedded
//	default wholesale; otherwise the embedded default is used.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*PolicyConfig - The loaded configuration. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetPolicyConfig(ctx context.Context) (*PolicyConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetPolicyConfig: ctx must not be nil")
	}

	policyConfigMu.RLock()
	if cachedPolicyConfig != nil || policyConfigLoadErr != nil {
		cfg, err := cachedPolicyConfig, policyConfigLoadErr
		policyConfigMu.RUnlock()
		return cfg, err
	}
	policyConfigMu.RUnlock()

	policyConfigMu.Lock()
	defer policyConfigMu.Unlock()

	if cachedPolicyConfig != nil || policyConfigLoadErr != nil {
		return cachedPolicyConfig, policyConfigLoadErr
	}

	policyConfigOnce.Do(func() {
		data := defaultPolicyYAML
		if path := os.Getenv(PolicyFileEnv); path != "" {
			raw, err := os.ReadFile(path)
			if err != nil {
				policyConfigLoadErr = fmt.Errorf("GetPolicyConfig: reading %s: %w", path, err)
				return
			}
			data = raw
		}
		cachedPolicyConfig, policyConfigLoadErr = LoadPolicyConfig(ctx, data)
	})

	return cachedPolicyConfig, policyConfigLoadErr
}

// ResetPolicyConfig resets the cached policy for testing.
//
// Description:
//
//	Clears the cached policy config so tests can reload with different data.
//
// Thread Safety: Safe for concurrent use.
func ResetPolicyConfig() {
	policyConfigMu.Lock()
	defer policyConfigMu.Unlock()
	cachedPolicyConfig = nil
	policyConfigLoadErr = nil
	policyConfigOnce = sync.Once{}
}

// ReplacePolicyConfig swaps in an already-validated policy.
//
// Description:
//
//	Used by the hot-reload watcher after it has loaded and validated a new
//	policy file. Callers holding the previous pointer keep a consistent
//	immutable view.
//
// Inputs:
//
//	cfg - The new policy. Must not be nil.
//
// Thread Safety: Safe for concurrent use.
func ReplacePolicyConfig(cfg *PolicyConfig) {
	if cfg == nil {
		return
	}
	policyConfigMu.Lock()
	defer policyConfigMu.Unlock()
	cachedPolicyConfig = cfg
	policyConfigLoadErr = nil
}

// =============================================================================
// Loading and Validation
// =============================================================================

// LoadPolicyConfig loads and validates a PolicyConfig from YAML bytes.
//
// Description:
//
//	Parses the YAML, applies defaults for missing selection bounds, and
//	validates weights, keyword lists, and safety patterns. Every safety
//	pattern is compiled here so malformed regexes fail the load.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*PolicyConfig - The validated configuration.
//	error - Non-nil if parsing or validation fails.
func LoadPolicyConfig(ctx context.Context, data []byte) (*PolicyConfig, error) {
	_, span := configTracer.Start(ctx, "config.LoadPolicyConfig")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadPolicyConfig: empty YAML data")
	}

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadPolicyConfig: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg PolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadPolicyConfig: parsing YAML: %w", err)
	}

	// Apply defaults for missing selection and intake bounds.
	if cfg.Selection.MaxResults <= 0 {
		cfg.Selection.MaxResults = DefaultMaxResults
	}
	if cfg.Selection.WeakTopScore <= 0 {
		cfg.Selection.WeakTopScore = DefaultWeakTopScore
	}
	if cfg.Selection.CloseGap < 0 {
		cfg.Selection.CloseGap = DefaultCloseGap
	}
	if cfg.Intake.MinScore <= 0 {
		cfg.Intake.MinScore = DefaultIntakeMinScore
	}
	if cfg.Intake.AmbiguityMargin < 0 {
		cfg.Intake.AmbiguityMargin = DefaultIntakeAmbiguityMargin
	}
	if strings.TrimSpace(cfg.Replies.Greeting) == "" {
		cfg.Replies.Greeting = DefaultGreetingReply
	}
	if strings.TrimSpace(cfg.Replies.OutOfScope) == "" {
		cfg.Replies.OutOfScope = DefaultOutOfScopeReply
	}
	if strings.TrimSpace(cfg.Replies.Clarify) == "" {
		cfg.Replies.Clarify = DefaultClarifyReply
	}
	if strings.TrimSpace(cfg.Replies.NoMatch) == "" {
		cfg.Replies.NoMatch = DefaultNoMatchReply
	}

	if err := validatePolicyConfig(&cfg); err != nil {
		return nil, fmt.Errorf("LoadPolicyConfig: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("mission_keywords", len(cfg.MissionKeywords)),
		attribute.Int("crisis_indicators", len(cfg.CrisisIndicators)),
		attribute.Int("audiences", len(cfg.Audiences)),
		attribute.Int("safety_patterns", len(cfg.Safety.Patterns)),
		attribute.Int("stopwords", len(cfg.Stopwords)),
		attribute.Int("max_results", cfg.Selection.MaxResults),
	)

	slog.Info("policy config loaded",
		slog.Int("mission_keywords", len(cfg.MissionKeywords)),
		slog.Int("crisis_indicators", len(cfg.CrisisIndicators)),
		slog.Int("audiences", len(cfg.Audiences)),
		slog.Int("safety_patterns", len(cfg.Safety.Patterns)),
	)

	return &cfg, nil
}

// validatePolicyConfig checks weights, lists, and safety rules for consistency.
func validatePolicyConfig(cfg *PolicyConfig) error {
	w := cfg.Weights
	if w.RequestToken <= 0 {
		return fmt.Errorf("weights.request_token must be positive, got %d", w.RequestToken)
	}
	if w.TagToken <= 0 {
		return fmt.Errorf("weights.tag_token must be positive, got %d", w.TagToken)
	}
	if w.TagToken < w.RequestToken {
		return fmt.Errorf("weights.tag_token (%d) must be >= weights.request_token (%d)", w.TagToken, w.RequestToken)
	}
	if w.MissionBoost < 0 || w.CrisisBoost < 0 || w.DemographicPenalty < 0 {
		return fmt.Errorf("weights.mission_boost, crisis_boost, and demographic_penalty must be non-negative")
	}

	if len(cfg.MissionKeywords) == 0 {
		return fmt.Errorf("mission_keywords must not be empty")
	}
	for i, kw := range cfg.MissionKeywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("mission_keywords[%d]: keyword must not be blank", i)
		}
	}

	if len(cfg.CrisisIndicators) == 0 {
		return fmt.Errorf("crisis_indicators must not be empty")
	}
	for i, term := range cfg.CrisisIndicators {
		if strings.TrimSpace(term) == "" {
			return fmt.Errorf("crisis_indicators[%d]: term must not be blank", i)
		}
	}

	seen := make(map[string]bool, len(cfg.Audiences))
	for i, a := range cfg.Audiences {
		if a.Name == "" {
			return fmt.Errorf("audiences[%d]: name must not be empty", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("audiences[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = true
		if len(a.Indicators) == 0 {
			return fmt.Errorf("audiences[%d] (%s): indicators must not be empty", i, a.Name)
		}
		if len(a.Members) == 0 {
			return fmt.Errorf("audiences[%d] (%s): members must not be empty", i, a.Name)
		}
	}

	if len(cfg.Safety.Patterns) == 0 {
		return fmt.Errorf("safety.patterns must not be empty")
	}
	for i, p := range cfg.Safety.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("safety.patterns[%d]: %w", i, err)
		}
	}
	if strings.TrimSpace(cfg.Safety.Intro) == "" {
		return fmt.Errorf("safety.intro must not be empty")
	}
	if len(cfg.Safety.Resources) == 0 {
		return fmt.Errorf("safety.resources must not be empty")
	}
	for i, r := range cfg.Safety.Resources {
		if r.Title == "" || r.URL == "" {
			return fmt.Errorf("safety.resources[%d]: title and url must not be empty", i)
		}
	}

	for cat, rules := range map[string][]IntakeRule{
		"greeting":         cfg.Intake.Greeting,
		"resource_request": cfg.Intake.ResourceRequest,
		"out_of_scope":     cfg.Intake.OutOfScope,
	} {
		for i, r := range rules {
			if strings.TrimSpace(r.Term) == "" {
				return fmt.Errorf("intake.%s[%d]: term must not be blank", cat, i)
			}
			if r.Weight <= 0 {
				return fmt.Errorf("intake.%s[%d] (%s): weight must be positive, got %d", cat, i, r.Term, r.Weight)
			}
		}
	}

	if len(cfg.Stopwords) == 0 {
		return fmt.Errorf("stopwords must not be empty")
	}

	return nil
}

// StopwordSet returns the stopwords as a lookup set.
//
// Description:
//
//	Convenience for the tokenizer; entries are lowercased.
//
// Outputs:
//
//	map[string]struct{} - One entry per distinct stopword.
func (c *PolicyConfig) StopwordSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Stopwords))
	for _, w := range c.Stopwords {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}
