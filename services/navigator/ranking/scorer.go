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
	"github.com/AleutianAI/navigator/services/navigator/catalog"
)

// Query is the request-side scoring context.
//
// Description:
//
//	RequestTokens come from the user's message, TagTokens from the intent
//	classifier's need tags. Memberships holds the audience names the
//	request signals (see Policy.Memberships). All fields are read-only
//	inputs; scoring never mutates them.
type Query struct {
	RequestTokens map[string]struct{}
	TagTokens     map[string]struct{}
	Memberships   map[string]struct{}
	Urgency       Urgency
}

// Breakdown explains one record's score, component by component.
//
// Description:
//
//	Match slices follow the record's text order, so breakdowns are
//	deterministic and diffable. Served by the scoring debug endpoint.
type Breakdown struct {
	// RequestMatches are the distinct record tokens found in the request.
	RequestMatches []string `json:"request_matches"`

	// TagMatches are the distinct record tokens found in the classifier tags.
	TagMatches []string `json:"tag_matches"`

	// MissionAligned is true when the connection field matched a mission
	// keyword and the boost applied.
	MissionAligned bool `json:"mission_aligned"`

	// CrisisBoosted is true when the record is a crisis resource and
	// urgency was high.
	CrisisBoosted bool `json:"crisis_boosted"`

	// PenalizedAudiences lists targeted audiences the request signaled no
	// membership in. Non-empty means the penalty applied once.
	PenalizedAudiences []string `json:"penalized_audiences,omitempty"`

	// Total is the final integer score.
	Total int `json:"total"`
}

// Scorer computes relevance scores for catalog records.
//
// Description:
//
//	Pure: a score depends only on the record and the Query. No network,
//	no mutation, no state beyond the compiled policy.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Scorer struct {
	policy *Policy
}

// NewScorer creates a Scorer over the compiled policy.
//
// Inputs:
//
//	policy - Compiled policy. Must not be nil.
//
// Outputs:
//
//	*Scorer - Ready for concurrent use.
func NewScorer(policy *Policy) *Scorer {
	return &Scorer{policy: policy}
}

// Score returns the record's relevance score for the query.
//
// Inputs:
//
//	rec - The record to score.
//	q - The request context.
//
// Outputs:
//
//	int - The score. Negative scores are possible and mean "do not show".
func (s *Scorer) Score(rec catalog.ResourceRecord, q Query) int {
	return s.Explain(rec, q).Total
}

// Explain returns the full component breakdown for the record's score.
//
// Description:
//
//	Token weights apply once per distinct record token found in the
//	corresponding set; a token present in both the request and the tags
//	earns both weights, since the two are independent signals. The three
//	flat adjustments apply at most once each.
//
// Inputs:
//
//	rec - The record to score.
//	q - The request context.
//
// Outputs:
//
//	Breakdown - Components and total.
func (s *Scorer) Explain(rec catalog.ResourceRecord, q Query) Breakdown {
	w := s.policy.Weights()

	var bd Breakdown
	seen := make(map[string]struct{})
	for _, tok := range s.policy.Tokenizer().Tokenize(rec.DescriptiveText()) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}

		if _, ok := q.RequestTokens[tok]; ok {
			bd.RequestMatches = append(bd.RequestMatches, tok)
			bd.Total += w.RequestToken
		}
		if _, ok := q.TagTokens[tok]; ok {
			bd.TagMatches = append(bd.TagMatches, tok)
			bd.Total += w.TagToken
		}
	}

	if s.policy.IsMissionAligned(rec) {
		bd.MissionAligned = true
		bd.Total += w.MissionBoost
	}

	if q.Urgency == UrgencyHigh && s.policy.IsCrisisResource(rec) {
		bd.CrisisBoosted = true
		bd.Total += w.CrisisBoost
	}

	for _, audience := range s.policy.TargetedAudiences(rec) {
		if _, member := q.Memberships[audience]; !member {
			bd.PenalizedAudiences = append(bd.PenalizedAudiences, audience)
		}
	}
	if len(bd.PenalizedAudiences) > 0 {
		bd.Total -= w.DemographicPenalty
	}

	return bd
}
