// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranking

import (
	"strings"

	"github.com/AleutianAI/navigator/services/navigator/catalog"
	"github.com/AleutianAI/navigator/services/navigator/config"
)

// Urgency is the crisis-urgency level the intent classifier assigns.
type Urgency string

// Urgency levels, lowest to highest.
const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ParseUrgency clamps arbitrary classifier output to a known level.
//
// Description:
//
//	Classifier output is untrusted text. Anything that is not exactly a
//	known level becomes UrgencyLow so a malformed response can never
//	accidentally trigger crisis handling.
//
// Inputs:
//
//	raw - Classifier-supplied urgency string.
//
// Outputs:
//
//	Urgency - A valid level.
func ParseUrgency(raw string) Urgency {
	switch Urgency(strings.ToLower(strings.TrimSpace(raw))) {
	case UrgencyHigh:
		return UrgencyHigh
	case UrgencyMedium:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// audienceMatcher is one audience's compiled matching data.
type audienceMatcher struct {
	name       string
	indicators []string
	members    map[string]struct{}
}

// Policy is the compiled form of the scoring policy.
//
// Description:
//
//	Lowercases and indexes the configured keyword lists once so the
//	per-record predicates are cheap substring and set lookups. Holds the
//	tokenizer built from the configured stopwords.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Policy struct {
	weights          config.ScoringWeights
	selection        config.SelectionPolicy
	missionKeywords  []string
	crisisIndicators []string
	audiences        []audienceMatcher
	tokenizer        *Tokenizer
}

// NewPolicy compiles a PolicyConfig into ranking form.
//
// Inputs:
//
//	cfg - A validated policy. Must not be nil.
//
// Outputs:
//
//	*Policy - Ready for concurrent use.
func NewPolicy(cfg *config.PolicyConfig) *Policy {
	p := &Policy{
		weights:          cfg.Weights,
		selection:        cfg.Selection,
		missionKeywords:  lowerAll(cfg.MissionKeywords),
		crisisIndicators: lowerAll(cfg.CrisisIndicators),
		tokenizer:        NewTokenizer(cfg.StopwordSet()),
	}
	for _, a := range cfg.Audiences {
		members := make(map[string]struct{}, len(a.Members))
		for _, m := range a.Members {
			members[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
		}
		p.audiences = append(p.audiences, audienceMatcher{
			name:       a.Name,
			indicators: lowerAll(a.Indicators),
			members:    members,
		})
	}
	return p
}

// Weights returns the scoring weights.
func (p *Policy) Weights() config.ScoringWeights { return p.weights }

// Selection returns the selection thresholds.
func (p *Policy) Selection() config.SelectionPolicy { return p.selection }

// Tokenizer returns the tokenizer built from the policy stopwords.
func (p *Policy) Tokenizer() *Tokenizer { return p.tokenizer }

// IsCrisisResource reports whether the record is a crisis resource.
//
// Description:
//
//	True when the record's guidance text (title, description, usage
//	guidance) contains any configured crisis indicator as a lowercase
//	substring.
//
// Inputs:
//
//	rec - The record to test.
//
// Outputs:
//
//	bool - True for crisis resources.
func (p *Policy) IsCrisisResource(rec catalog.ResourceRecord) bool {
	return containsAny(strings.ToLower(rec.GuidanceText()), p.crisisIndicators)
}

// IsMissionAligned reports whether the record's connection field ties it to
// the constituency this service serves.
//
// Inputs:
//
//	rec - The record to test.
//
// Outputs:
//
//	bool - True when any mission keyword appears in the connection field.
func (p *Policy) IsMissionAligned(rec catalog.ResourceRecord) bool {
	return containsAny(strings.ToLower(rec.Connection), p.missionKeywords)
}

// TargetedAudiences returns the audiences the record is scoped to.
//
// Description:
//
//	An audience matches when any of its indicator phrases appears in the
//	record's title or descriptive text. Most records return none.
//
// Inputs:
//
//	rec - The record to test.
//
// Outputs:
//
//	[]string - Audience names in policy order. Nil when untargeted.
func (p *Policy) TargetedAudiences(rec catalog.ResourceRecord) []string {
	haystack := strings.ToLower(rec.Title + " " + rec.DescriptiveText())
	var names []string
	for _, a := range p.audiences {
		if containsAny(haystack, a.indicators) {
			names = append(names, a.name)
		}
	}
	return names
}

// IsDemographicTargeted reports whether the record is scoped to any audience.
//
// Inputs:
//
//	rec - The record to test.
//
// Outputs:
//
//	bool - True when TargetedAudiences is non-empty.
func (p *Policy) IsDemographicTargeted(rec catalog.ResourceRecord) bool {
	return len(p.TargetedAudiences(rec)) > 0
}

// Memberships returns the audiences the request signals membership in.
//
// Description:
//
//	An audience is signaled when any of its member terms appears in the
//	provided token set. Callers decide which tokens carry that signal;
//	the pipeline uses the request's own tokens plus any declared
//	demographic, never classifier tags.
//
// Inputs:
//
//	tokens - Distinct request-side tokens.
//
// Outputs:
//
//	map[string]struct{} - Signaled audience names. Never nil.
func (p *Policy) Memberships(tokens map[string]struct{}) map[string]struct{} {
	signaled := make(map[string]struct{})
	for _, a := range p.audiences {
		for tok := range tokens {
			if _, ok := a.members[tok]; ok {
				signaled[a.name] = struct{}{}
				break
			}
		}
	}
	return signaled
}

// HasAudience reports whether name is a configured audience, so callers can
// translate an explicitly declared demographic into a membership signal.
//
// Inputs:
//
//	name - Candidate audience name, any case.
//
// Outputs:
//
//	bool - True when the policy defines that audience.
func (p *Policy) HasAudience(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range p.audiences {
		if a.name == name {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
