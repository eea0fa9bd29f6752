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
	"fmt"
	"reflect"
	"testing"

	"github.com/AleutianAI/navigator/services/navigator/catalog"
	"github.com/AleutianAI/navigator/services/navigator/config"
)

func noFallback() Fallback {
	return Fallback{Mode: config.FallbackNone}
}

func candidateIDs(out Outcome) []string {
	ids := make([]string, 0, len(out.Candidates))
	for _, c := range out.Candidates {
		ids = append(ids, c.Record.ID)
	}
	return ids
}

func TestSelect_RanksByScoreWithCatalogOrderTies(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{
		{ID: "tie-a", Title: "Mentor Program A", URL: "https://example.org/a", Description: "mentoring programs"},
		{ID: "tie-b", Title: "Mentor Program B", URL: "https://example.org/b", Description: "mentoring circles"},
		{ID: "strong", Title: "Grief Support", URL: "https://example.org/s", Description: "grief support groups", Connection: "for fatherless teens"},
	}
	q := Query{
		RequestTokens: map[string]struct{}{"mentoring": {}, "grief": {}, "support": {}},
		Urgency:       UrgencyLow,
	}

	out := sel.Select(records, q, false, noFallback())

	if out.Disposition != DispositionRecommend {
		t.Fatalf("expected RECOMMEND, got %s", out.Disposition)
	}
	// strong = 6 + 5 mission = 11; the ties score 3 each and keep catalog order.
	want := []string{"strong", "tie-a", "tie-b"}
	if got := candidateIDs(out); !reflect.DeepEqual(got, want) {
		t.Errorf("expected order %v, got %v", want, got)
	}
	if out.Candidates[0].Score != 11 {
		t.Errorf("expected top score 11, got %d", out.Candidates[0].Score)
	}
	if out.Candidates[1].Position != 0 || out.Candidates[2].Position != 1 {
		t.Error("tied candidates should keep original catalog positions in order")
	}
}

func TestSelect_Deterministic(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{
		griefCampRecord(),
		crisisLineRecord(),
		budgetingRecord(),
		girlsCircleRecord(),
		{ID: "tie-a", Title: "A", URL: "https://example.org/a", Description: "mentoring programs"},
		{ID: "tie-b", Title: "B", URL: "https://example.org/b", Description: "mentoring circles"},
	}
	tokens := tokensOf(p, "I need a mentoring program to deal with grief")
	q := Query{
		RequestTokens: tokens,
		TagTokens:     tokensOf(p, "grief mentoring"),
		Memberships:   p.Memberships(tokens),
		Urgency:       UrgencyLow,
	}

	first := sel.Select(records, q, false, noFallback())
	for i := 0; i < 5; i++ {
		if got := sel.Select(records, q, false, noFallback()); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differed from first run:\n got %+v\nwant %+v", i, got, first)
		}
	}
}

func TestSelect_DropsNonPositiveScores(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	// girls-circle lands at -7 (one match minus the penalty); budgeting at 0.
	records := []catalog.ResourceRecord{girlsCircleRecord(), budgetingRecord(), griefCampRecord()}
	q := Query{
		RequestTokens: map[string]struct{}{"leadership": {}, "grief": {}},
		Urgency:       UrgencyLow,
	}

	out := sel.Select(records, q, false, noFallback())

	if got := candidateIDs(out); !reflect.DeepEqual(got, []string{"exp-camps"}) {
		t.Errorf("only the positive-scoring record should survive, got %v", got)
	}
}

func TestSelect_CrisisFilteredBelowHighUrgency(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{crisisLineRecord(), griefCampRecord()}
	q := Query{
		RequestTokens: map[string]struct{}{"need": {}, "grief": {}},
		Urgency:       UrgencyLow,
	}

	out := sel.Select(records, q, false, noFallback())

	for _, c := range out.Candidates {
		if p.IsCrisisResource(c.Record) {
			t.Errorf("crisis resource %s should be filtered below high urgency", c.Record.ID)
		}
	}
	if got := candidateIDs(out); !reflect.DeepEqual(got, []string{"exp-camps"}) {
		t.Errorf("expected only the grief camp, got %v", got)
	}
}

func TestSelect_CrisisKeptWhenFilterWouldEmptyList(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{crisisLineRecord(), budgetingRecord()}
	q := Query{
		RequestTokens: map[string]struct{}{"need": {}},
		Urgency:       UrgencyLow,
	}

	out := sel.Select(records, q, false, noFallback())

	if out.Disposition != DispositionRecommend {
		t.Fatalf("expected RECOMMEND, got %s", out.Disposition)
	}
	if got := candidateIDs(out); !reflect.DeepEqual(got, []string{"teen-line"}) {
		t.Errorf("filter that would empty the list must be skipped, got %v", got)
	}
}

func TestSelect_CrisisNeverFilteredAtHighUrgency(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{griefCampRecord(), crisisLineRecord()}
	q := Query{
		RequestTokens: map[string]struct{}{"need": {}, "grief": {}},
		Urgency:       UrgencyHigh,
	}

	out := sel.Select(records, q, false, noFallback())

	// Crisis line: 3 + 10 boost = 13; grief camp: 3 + 5 mission = 8.
	want := []string{"teen-line", "exp-camps"}
	if got := candidateIDs(out); !reflect.DeepEqual(got, want) {
		t.Errorf("expected crisis resource first at high urgency, got %v", got)
	}
}

func TestSelect_BoundToMaxResults(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	var records []catalog.ResourceRecord
	for i := 0; i < 5; i++ {
		records = append(records, catalog.ResourceRecord{
			ID:          fmt.Sprintf("rec-%d", i),
			Title:       fmt.Sprintf("Mentor %d", i),
			URL:         fmt.Sprintf("https://example.org/%d", i),
			Description: "mentoring program",
		})
	}
	q := Query{
		TagTokens: map[string]struct{}{"mentoring": {}},
		Urgency:   UrgencyLow,
	}

	out := sel.Select(records, q, false, noFallback())

	if len(out.Candidates) != 3 {
		t.Fatalf("expected exactly 3 candidates, got %d", len(out.Candidates))
	}
	if got := candidateIDs(out); !reflect.DeepEqual(got, []string{"rec-0", "rec-1", "rec-2"}) {
		t.Errorf("truncation should keep the best-ranked (here catalog-ordered) records, got %v", got)
	}
}

func TestSelect_ClarifyRequiresAllThreeConditions(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	weakTied := []catalog.ResourceRecord{
		{ID: "wa", Title: "A", URL: "https://example.org/wa", Description: "mentoring programs"},
		{ID: "wb", Title: "B", URL: "https://example.org/wb", Description: "mentoring circles"},
	}
	q := Query{RequestTokens: map[string]struct{}{"mentoring": {}}, Urgency: UrgencyLow}

	// Weak (3 < 8) and contested (gap 0) and flagged: clarify, no resources.
	out := sel.Select(weakTied, q, true, noFallback())
	if out.Disposition != DispositionClarify {
		t.Fatalf("expected CLARIFY, got %s", out.Disposition)
	}
	if len(out.Candidates) != 0 {
		t.Errorf("clarify must return no resources, got %v", candidateIDs(out))
	}

	// Same weakness without the classifier flag: recommend anyway.
	out = sel.Select(weakTied, q, false, noFallback())
	if out.Disposition != DispositionRecommend {
		t.Errorf("local weakness alone must not trigger a question, got %s", out.Disposition)
	}

	// Strong top score with the flag set: recommend.
	strong := []catalog.ResourceRecord{
		{ID: "s", Title: "S", URL: "https://example.org/s", Description: "grief support", Connection: "fatherless teens"},
		{ID: "wb", Title: "B", URL: "https://example.org/wb", Description: "mentoring circles"},
	}
	qs := Query{
		RequestTokens: map[string]struct{}{"grief": {}, "support": {}, "mentoring": {}},
		Urgency:       UrgencyLow,
	}
	out = sel.Select(strong, qs, true, noFallback())
	if out.Disposition != DispositionRecommend {
		t.Errorf("a confident top score should recommend despite the flag, got %s", out.Disposition)
	}

	// Weak but not contested: recommend.
	spread := []catalog.ResourceRecord{
		{ID: "two", Title: "T", URL: "https://example.org/t", Description: "grief support"},
		{ID: "one", Title: "O", URL: "https://example.org/o", Description: "mentoring circles"},
	}
	qw := Query{
		RequestTokens: map[string]struct{}{"grief": {}, "support": {}, "mentoring": {}},
		Urgency:       UrgencyLow,
	}
	out = sel.Select(spread, qw, true, noFallback())
	if out.Disposition != DispositionRecommend {
		t.Errorf("a clear leader should recommend despite weakness, got %s", out.Disposition)
	}
}

func TestSelect_LoneWeakCandidateRecommends(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{
		{ID: "solo", Title: "Solo", URL: "https://example.org/solo", Description: "dads matter", Connection: "for fatherless kids"},
	}
	q := Query{Urgency: UrgencyLow}

	// Mission boost only: 5. Weak, but with no runner-up there is nothing to
	// disambiguate, so the flag must not force a question.
	out := sel.Select(records, q, true, noFallback())
	if out.Disposition != DispositionRecommend {
		t.Errorf("expected RECOMMEND for a lone candidate, got %s", out.Disposition)
	}
}

func TestSelect_NoMatchWithDeclaredNoneFallback(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{budgetingRecord(), girlsCircleRecord()}
	q := Query{RequestTokens: map[string]struct{}{"astronomy": {}}, Urgency: UrgencyLow}

	out := sel.Select(records, q, false, noFallback())

	if out.Disposition != DispositionNoMatch {
		t.Fatalf("expected NO_MATCH, got %s", out.Disposition)
	}
	if len(out.Candidates) != 0 {
		t.Errorf("none fallback should return no resources, got %v", candidateIDs(out))
	}
}

func TestSelect_NoMatchWithFirstNFallback(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{budgetingRecord(), girlsCircleRecord(), griefCampRecord()}
	q := Query{RequestTokens: map[string]struct{}{"astronomy": {}}, Urgency: UrgencyLow}

	out := sel.Select(records, q, false, Fallback{Mode: config.FallbackFirstN, N: 2})

	if out.Disposition != DispositionNoMatch {
		t.Fatalf("expected NO_MATCH, got %s", out.Disposition)
	}
	if got := candidateIDs(out); !reflect.DeepEqual(got, []string{"budgeting", "girls-circle"}) {
		t.Errorf("expected the first two catalog records, got %v", got)
	}
	for _, c := range out.Candidates {
		if c.Score != 0 {
			t.Errorf("fallback records are unscored, got %d for %s", c.Score, c.Record.ID)
		}
	}
}

func TestSelect_FirstNFallbackClampsToCatalogSize(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{budgetingRecord()}
	q := Query{RequestTokens: map[string]struct{}{"astronomy": {}}, Urgency: UrgencyLow}

	out := sel.Select(records, q, false, Fallback{Mode: config.FallbackFirstN, N: 10})

	if len(out.Candidates) != 1 {
		t.Errorf("expected the whole catalog, got %d candidates", len(out.Candidates))
	}
}

func TestSelect_GriefScenario(t *testing.T) {
	p := newTestPolicy()
	sel := NewSelector(p)

	records := []catalog.ResourceRecord{budgetingRecord(), griefCampRecord()}
	tokens := tokensOf(p, "I need a support group for grief")
	q := Query{
		RequestTokens: tokens,
		Memberships:   p.Memberships(tokens),
		Urgency:       UrgencyLow,
	}

	out := sel.Select(records, q, false, noFallback())

	if out.Disposition != DispositionRecommend {
		t.Fatalf("expected RECOMMEND, got %s", out.Disposition)
	}
	if got := candidateIDs(out); !reflect.DeepEqual(got, []string{"exp-camps"}) {
		t.Fatalf("expected the grief camp alone, got %v", got)
	}
	// Token overlap (+3 for "grief") plus the mission boost (+5).
	if out.Candidates[0].Score != 8 {
		t.Errorf("expected score 8 from overlap plus mission boost, got %d", out.Candidates[0].Score)
	}
}
