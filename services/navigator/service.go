// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package navigator serves the teen resource navigator over HTTP.
//
// A turn moves through a fixed pipeline: the safety gate (before any
// network access), intake triage, the cached catalog load, the intent
// classifier, scoring and selection, and finally the rewriter for turns
// that end in a recommendation. Every turn terminates in exactly one
// disposition: SAFETY, CLARIFY, NO_MATCH, or RECOMMEND.
package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/navigator/services/navigator/catalog"
	"github.com/AleutianAI/navigator/services/navigator/collab"
	"github.com/AleutianAI/navigator/services/navigator/config"
	"github.com/AleutianAI/navigator/services/navigator/intake"
	"github.com/AleutianAI/navigator/services/navigator/ranking"
	"github.com/AleutianAI/navigator/services/navigator/safety"
)

var serviceTracer = otel.Tracer("navigator.service")

// policyBundle is everything compiled from one policy configuration. It is
// swapped as a single value so a hot reload can never mix an old gate with
// a new selector mid-request.
type policyBundle struct {
	source   *config.PolicyConfig
	gate     *safety.Gate
	policy   *ranking.Policy
	selector *ranking.Selector
	intake   *intake.Classifier
}

func newPolicyBundle(cfg *config.PolicyConfig) (*policyBundle, error) {
	gate, err := safety.NewGate(cfg)
	if err != nil {
		return nil, fmt.Errorf("compiling safety gate: %w", err)
	}
	policy := ranking.NewPolicy(cfg)
	return &policyBundle{
		source:   cfg,
		gate:     gate,
		policy:   policy,
		selector: ranking.NewSelector(policy),
		intake:   intake.NewClassifier(cfg),
	}, nil
}

// Service orchestrates the navigator pipeline.
//
// Description:
//
//	Holds the catalog loader, the two model collaborators, and the
//	compiled policy bundle. Requests are stateless; the only shared
//	mutable state is the catalog cache inside the loader and the
//	atomically swapped policy bundle.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	cfg        *config.ServiceConfig
	loader     *catalog.Loader
	classifier collab.IntentClassifier
	rewriter   collab.Rewriter
	logger     *slog.Logger

	bundle atomic.Pointer[policyBundle]
}

// NewService builds a Service from its collaborators.
//
// Inputs:
//
//	ctx - Context for the initial policy load.
//	cfg - Validated service configuration. Must not be nil.
//	loader - Catalog loader. Must not be nil.
//	classifier - Intent classifier collaborator. Must not be nil.
//	rewriter - Reply rewriter collaborator. Must not be nil.
//
// Outputs:
//
//	*Service - Ready for concurrent use.
//	error - Non-nil if the policy fails to load or compile.
func NewService(ctx context.Context, cfg *config.ServiceConfig, loader *catalog.Loader, classifier collab.IntentClassifier, rewriter collab.Rewriter) (*Service, error) {
	policyCfg, err := config.GetPolicyConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	bundle, err := newPolicyBundle(policyCfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		loader:     loader,
		classifier: classifier,
		rewriter:   rewriter,
		logger:     slog.With("component", "navigator"),
	}
	s.bundle.Store(bundle)
	return s, nil
}

// currentBundle returns the compiled policy, recompiling it when the policy
// singleton was swapped by a hot reload. Recompiling is an idempotent race:
// concurrent requests build the same bundle from the same config and the
// last writer wins.
func (s *Service) currentBundle(ctx context.Context) *policyBundle {
	bundle := s.bundle.Load()
	policyCfg, err := config.GetPolicyConfig(ctx)
	if err != nil || policyCfg == bundle.source {
		return bundle
	}

	fresh, err := newPolicyBundle(policyCfg)
	if err != nil {
		s.logger.Warn("Recompiling reloaded policy failed, keeping previous bundle", "error", err)
		return bundle
	}
	s.bundle.Store(fresh)
	s.logger.Info("Policy bundle recompiled after reload")
	return fresh
}

// Process runs one chat turn through the pipeline.
//
// Description:
//
//	Truncates the message and history to the configured caps, then runs
//	the safety gate before anything that could touch the network. Intake
//	triage closes greetings and out-of-scope asks with fixed replies.
//	Everything else loads the catalog, classifies intent, selects
//	candidates, and for RECOMMEND turns asks the rewriter for prose.
//
// Inputs:
//
//	ctx - Context for cancellation, timeouts, and tracing.
//	req - The inbound turn. RequestID must already be resolved.
//
// Outputs:
//
//	ChatResponse - The completed turn. Resources is never nil.
//	error - Non-nil when the catalog or a collaborator failed; the turn
//	 has no disposition in that case.
func (s *Service) Process(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "navigator.Process")
	defer span.End()

	message := truncateRunes(strings.TrimSpace(req.Message), s.cfg.Limits.MaxMessageChars)
	history := clampHistory(req.History, s.cfg.Limits.MaxHistoryTurns)

	bundle := s.currentBundle(ctx)
	resp := ChatResponse{RequestID: req.RequestID, Resources: []RecommendedResource{}}

	// The gate sees the raw (truncated) message before any network access.
	gateStart := time.Now()
	triggered := bundle.gate.Triggered(message)
	observeStage("safety", time.Since(gateStart).Seconds())
	if triggered {
		crisis := bundle.gate.Response()
		resp.Disposition = string(ranking.DispositionSafety)
		resp.Message = crisis.Intro
		for _, r := range crisis.Resources {
			resp.Resources = append(resp.Resources, RecommendedResource{
				Title:       r.Title,
				URL:         r.URL,
				Description: r.Description,
			})
		}
		s.finishTurn(span, &resp)
		return resp, nil
	}

	intakeStart := time.Now()
	triage := bundle.intake.Classify(message)
	observeStage("intake", time.Since(intakeStart).Seconds())
	span.SetAttributes(attribute.String("intake.category", string(triage.Category)))

	switch triage.Category {
	case intake.CategoryGreeting:
		resp.Disposition = string(ranking.DispositionClarify)
		resp.Message = bundle.source.Replies.Greeting
		s.finishTurn(span, &resp)
		return resp, nil
	case intake.CategoryOutOfScope:
		resp.Disposition = string(ranking.DispositionClarify)
		resp.Message = bundle.source.Replies.OutOfScope
		s.finishTurn(span, &resp)
		return resp, nil
	}

	catalogStart := time.Now()
	records, err := s.loader.Load(ctx)
	observeStage("catalog", time.Since(catalogStart).Seconds())
	if err != nil {
		return ChatResponse{}, s.failTurn(span, err)
	}

	classifyStart := time.Now()
	tags, err := s.classifier.ClassifyIntent(ctx, message, collabHistory(history))
	observeStage("classify", time.Since(classifyStart).Seconds())
	if err != nil {
		return ChatResponse{}, s.failTurn(span, err)
	}
	resp.Urgency = tags.Urgency
	resp.NeedTags = tags.NeedTags

	selectStart := time.Now()
	query := buildQuery(bundle.policy, message, req.ClientContext, tags)
	outcome := bundle.selector.Select(records, query, tags.NeedsClarification, ranking.Fallback{
		Mode: s.cfg.Catalog.Fallback,
		N:    s.cfg.Catalog.FallbackN,
	})
	observeStage("select", time.Since(selectStart).Seconds())

	switch outcome.Disposition {
	case ranking.DispositionClarify:
		resp.Disposition = string(ranking.DispositionClarify)
		resp.Question = strings.TrimSpace(tags.Question)
		if resp.Question == "" {
			resp.Question = bundle.source.Replies.Clarify
		}
		resp.Message = resp.Question

	case ranking.DispositionNoMatch:
		// Fallback records are listed, never narrated: prose that
		// presents arbitrary records as if they fit would fabricate a
		// recommendation the scorer refused to make.
		resp.Disposition = string(ranking.DispositionNoMatch)
		resp.Message = bundle.source.Replies.NoMatch
		resp.Resources = toWireResources(outcome.Candidates)

	case ranking.DispositionRecommend:
		resp.Disposition = string(ranking.DispositionRecommend)
		resp.Resources = toWireResources(outcome.Candidates)

		rewriteStart := time.Now()
		reply, err := s.rewriter.Rewrite(ctx, message, collabHistory(history), toCollabResources(outcome.Candidates))
		observeStage("rewrite", time.Since(rewriteStart).Seconds())
		if err != nil {
			return ChatResponse{}, s.failTurn(span, err)
		}
		resp.Message = reply
	}

	s.finishTurn(span, &resp)
	return resp, nil
}

// Resources returns the current catalog for the ops endpoint, loading it if
// the cache is stale.
func (s *Service) Resources(ctx context.Context) (ResourcesResponse, error) {
	records, err := s.loader.Load(ctx)
	if err != nil {
		return ResourcesResponse{}, err
	}

	resp := ResourcesResponse{Count: len(records), Records: records}
	if snap := s.loader.Cache().Peek(); snap != nil {
		resp.LoadedAt = snap.LoadedAt
		if age, ok := s.loader.Cache().Age(); ok {
			resp.CacheAgeSeconds = age.Seconds()
		}
	}
	return resp, nil
}

// Refresh forces a catalog reload regardless of cache freshness.
func (s *Service) Refresh(ctx context.Context) (RefreshResponse, error) {
	records, err := s.loader.Refresh(ctx)
	if err != nil {
		return RefreshResponse{}, err
	}

	resp := RefreshResponse{Count: len(records)}
	if snap := s.loader.Cache().Peek(); snap != nil {
		resp.LoadedAt = snap.LoadedAt
	}
	return resp, nil
}

// ExplainScores scores every catalog record against a query without calling
// any model.
//
// Description:
//
//	The debug counterpart of Process's selection stage: same tokenizer,
//	same scorer, no classifier. Tag tokens are therefore always empty;
//	urgency and gender are taken from the caller so crisis boosts and
//	audience penalties can still be exercised.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	query - Free-text query, scored as if it were the user message.
//	urgency - Optional urgency override. Defaults to low.
//	gender - Optional declared audience, as in ClientContext.
//
// Outputs:
//
//	ScoreDebugResponse - Every record's breakdown, in catalog order.
//	error - Non-nil when the catalog cannot be loaded.
func (s *Service) ExplainScores(ctx context.Context, query, urgency, gender string) (ScoreDebugResponse, error) {
	records, err := s.loader.Load(ctx)
	if err != nil {
		return ScoreDebugResponse{}, err
	}

	bundle := s.currentBundle(ctx)
	q := buildQuery(bundle.policy, query, ClientContext{Gender: gender}, collab.Tags{Urgency: urgency})

	resp := ScoreDebugResponse{
		Query:   query,
		Tokens:  sortedTokens(q.RequestTokens),
		Urgency: string(q.Urgency),
		Records: make([]ScoredRecord, 0, len(records)),
	}
	scorer := bundle.selector.Scorer()
	for _, rec := range records {
		resp.Records = append(resp.Records, ScoredRecord{
			ID:        rec.ID,
			Title:     rec.Title,
			Breakdown: scorer.Explain(rec, q),
		})
	}
	return resp, nil
}

// Ready reports whether a catalog snapshot is loaded, along with its size.
func (s *Service) Ready() (bool, int) {
	snap := s.loader.Cache().Peek()
	if snap == nil {
		return false, 0
	}
	return true, len(snap.Records)
}

// finishTurn stamps the span and counters for a completed turn.
func (s *Service) finishTurn(span trace.Span, resp *ChatResponse) {
	span.SetAttributes(
		attribute.String("disposition", resp.Disposition),
		attribute.Int("resource_count", len(resp.Resources)),
	)
	chatTurnsTotal.WithLabelValues(resp.Disposition).Inc()
}

// failTurn records the error on the span and passes it through unchanged so
// the handler can map it to an error code.
func (s *Service) failTurn(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// buildQuery assembles the scorer's view of one request.
func buildQuery(policy *ranking.Policy, message string, cc ClientContext, tags collab.Tags) ranking.Query {
	tok := policy.Tokenizer()
	requestTokens := tok.TokenSet(message)

	memberships := policy.Memberships(requestTokens)
	if g := strings.ToLower(strings.TrimSpace(cc.Gender)); g != "" && policy.HasAudience(g) {
		memberships[g] = struct{}{}
	}

	return ranking.Query{
		RequestTokens: requestTokens,
		TagTokens:     tok.TokenSet(strings.Join(tags.NeedTags, " ")),
		Memberships:   memberships,
		Urgency:       ranking.ParseUrgency(tags.Urgency),
	}
}

// toWireResources converts selector candidates to response resources.
func toWireResources(candidates []ranking.Candidate) []RecommendedResource {
	out := make([]RecommendedResource, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, RecommendedResource{
			Title:       c.Record.Title,
			URL:         c.Record.URL,
			Description: c.Record.Description,
			HowToStart:  c.Record.HowToStart,
			Score:       c.Score,
		})
	}
	return out
}

// toCollabResources converts selector candidates to the rewriter's view.
// This is the only path from the catalog into a prompt, and it starts from
// the selected candidates, never the full record list.
func toCollabResources(candidates []ranking.Candidate) []collab.Resource {
	out := make([]collab.Resource, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, collab.Resource{
			Title:       c.Record.Title,
			URL:         c.Record.URL,
			Description: c.Record.Description,
			HowToStart:  c.Record.HowToStart,
		})
	}
	return out
}

// collabHistory converts wire turns to collaborator messages.
func collabHistory(turns []Turn) []collab.Message {
	if len(turns) == 0 {
		return nil
	}
	out := make([]collab.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, collab.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// truncateRunes caps s at n runes without splitting a multi-byte character.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// clampHistory keeps only the most recent max turns. A cap of zero drops
// history entirely.
func clampHistory(turns []Turn, max int) []Turn {
	if max <= 0 {
		return nil
	}
	if len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}

// sortedTokens renders a token set in stable order for debug output.
func sortedTokens(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}
