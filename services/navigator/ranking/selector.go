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
	"sort"

	"github.com/AleutianAI/navigator/services/navigator/catalog"
	"github.com/AleutianAI/navigator/services/navigator/config"
)

// Disposition is the terminal state a request reaches. Every request reaches
// exactly one.
type Disposition string

const (
	// DispositionSafety means the safety gate fired; the fixed crisis
	// response was returned and the pipeline never ran.
	DispositionSafety Disposition = "SAFETY"

	// DispositionClarify means the request needs one more detail before a
	// recommendation is worth making. No resources are returned.
	DispositionClarify Disposition = "CLARIFY"

	// DispositionNoMatch means the catalog loaded but nothing scored
	// positively. Resources are empty or the caller's declared fallback.
	DispositionNoMatch Disposition = "NO_MATCH"

	// DispositionRecommend means one to three ranked resources were
	// selected for the rewriter.
	DispositionRecommend Disposition = "RECOMMEND"
)

// Candidate is one scored record in a selection result.
type Candidate struct {
	// Record is the catalog record.
	Record catalog.ResourceRecord

	// Score is the relevance score. Zero for fallback records.
	Score int

	// Position is the record's original catalog index.
	Position int
}

// Fallback is the caller-declared recovery policy for empty results.
//
// Description:
//
//	Both behaviors are valid product choices, so the selector refuses to
//	pick one itself: FallbackNone returns an empty NO_MATCH, FallbackFirstN
//	returns the first N catalog records unscored under NO_MATCH.
type Fallback struct {
	// Mode is config.FallbackNone or config.FallbackFirstN.
	Mode string

	// N is the record count for the first_n mode.
	N int
}

// Outcome is the selector's result: a disposition and the candidates that go
// with it.
type Outcome struct {
	Disposition Disposition
	Candidates  []Candidate
}

// Selector ranks, filters, and bounds scored records.
//
// Description:
//
//	Deterministic: identical catalog and query yield an identical outcome,
//	including order. Ties keep original catalog order via stable sort.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Selector struct {
	scorer *Scorer
	policy *Policy
}

// NewSelector creates a Selector over the compiled policy.
//
// Inputs:
//
//	policy - Compiled policy. Must not be nil.
//
// Outputs:
//
//	*Selector - Ready for concurrent use.
func NewSelector(policy *Policy) *Selector {
	return &Selector{scorer: NewScorer(policy), policy: policy}
}

// Scorer returns the selector's scorer, for score explanations.
func (sel *Selector) Scorer() *Scorer { return sel.scorer }

// Select produces the bounded ranked result and its disposition.
//
// Description:
//
//	Scores every record, keeps strictly positive scores, and sorts
//	descending with catalog-order ties. Below-high urgency removes crisis
//	resources unless that would empty the list. The clarify disposition
//	requires all three ambiguity conditions: weak top score, closely
//	contested top two, and the classifier's own ambiguity flag. At most
//	MaxResults candidates are returned.
//
// Inputs:
//
//	records - The full catalog snapshot, in catalog order.
//	q - The request context.
//	classifierAmbiguous - The intent classifier's ambiguity flag.
//	fb - The caller's empty-result recovery policy.
//
// Outputs:
//
//	Outcome - Exactly one disposition; candidates per its contract.
func (sel *Selector) Select(records []catalog.ResourceRecord, q Query, classifierAmbiguous bool, fb Fallback) Outcome {
	ranked := make([]Candidate, 0, len(records))
	for i, rec := range records {
		if score := sel.scorer.Score(rec, q); score > 0 {
			ranked = append(ranked, Candidate{Record: rec, Score: score, Position: i})
		}
	}

	// Input order is catalog order, so a stable sort on score alone keeps
	// catalog order for ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if q.Urgency != UrgencyHigh {
		filtered := make([]Candidate, 0, len(ranked))
		for _, c := range ranked {
			if !sel.policy.IsCrisisResource(c.Record) {
				filtered = append(filtered, c)
			}
		}
		// Never return zero results purely because of the crisis filter.
		if len(filtered) > 0 {
			ranked = filtered
		}
	}

	if len(ranked) == 0 {
		if fb.Mode == config.FallbackFirstN && fb.N > 0 {
			n := min(fb.N, len(records))
			out := make([]Candidate, 0, n)
			for i := 0; i < n; i++ {
				out = append(out, Candidate{Record: records[i], Position: i})
			}
			return Outcome{Disposition: DispositionNoMatch, Candidates: out}
		}
		return Outcome{Disposition: DispositionNoMatch}
	}

	thresholds := sel.policy.Selection()
	top := ranked[0].Score
	runnerUp := 0
	if len(ranked) > 1 {
		runnerUp = ranked[1].Score
	}
	weak := top < thresholds.WeakTopScore
	contested := top-runnerUp <= thresholds.CloseGap
	if weak && contested && classifierAmbiguous {
		return Outcome{Disposition: DispositionClarify}
	}

	if len(ranked) > thresholds.MaxResults {
		ranked = ranked[:thresholds.MaxResults]
	}
	return Outcome{Disposition: DispositionRecommend, Candidates: ranked}
}
