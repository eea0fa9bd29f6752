// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package navigator

import (
	"time"

	"github.com/AleutianAI/navigator/services/navigator/catalog"
	"github.com/AleutianAI/navigator/services/navigator/ranking"
)

// ChatRequest is one inbound turn from the widget or the CLI.
type ChatRequest struct {
	// Message is the user's latest text. Truncated to the configured
	// maximum length before any processing.
	Message string `json:"message" binding:"required"`

	// History holds prior turns, oldest first. Only the most recent
	// configured number of turns is kept.
	History []Turn `json:"history" binding:"omitempty,dive"`

	// ClientContext carries optional demographic signals declared by the
	// caller rather than inferred from the message.
	ClientContext ClientContext `json:"client_context"`

	// RequestID is the caller's correlation ID. When empty, the
	// X-Request-ID header or a generated UUID is used instead.
	RequestID string `json:"request_id"`
}

// Turn is one prior message in the conversation.
type Turn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// ClientContext holds caller-declared demographic signals.
//
// Description:
//
//	Gender translates into an audience membership when it names a
//	configured audience, so demographically scoped resources are not
//	penalized for callers who belong to that audience.
type ClientContext struct {
	Gender string `json:"gender"`
}

// ChatResponse is the result of one processed turn.
type ChatResponse struct {
	RequestID   string `json:"request_id"`
	Disposition string `json:"disposition"`

	// Message is the reply text: rewriter prose for RECOMMEND, fixed
	// policy text otherwise.
	Message string `json:"message"`

	// Question is set only for CLARIFY turns produced by the selector.
	Question string `json:"question,omitempty"`

	// Urgency and NeedTags echo the intent classifier's reading. Empty
	// on turns that never reached the classifier.
	Urgency  string   `json:"urgency,omitempty"`
	NeedTags []string `json:"need_tags,omitempty"`

	// Resources are the selected records for RECOMMEND, the declared
	// fallback records for NO_MATCH, or the fixed crisis contacts for
	// SAFETY. Always present, possibly empty.
	Resources []RecommendedResource `json:"resources"`
}

// RecommendedResource is the wire form of one resource in a reply.
type RecommendedResource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	HowToStart  string `json:"how_to_start,omitempty"`

	// Score is the relevance score that ranked this resource. Zero for
	// fallback records and crisis contacts, which are not scored.
	Score int `json:"score,omitempty"`
}

// ResourcesResponse is the ops view of the current catalog.
type ResourcesResponse struct {
	Count           int                      `json:"count"`
	LoadedAt        time.Time                `json:"loaded_at"`
	CacheAgeSeconds float64                  `json:"cache_age_seconds"`
	Records         []catalog.ResourceRecord `json:"records"`
}

// RefreshResponse reports a forced catalog refresh.
type RefreshResponse struct {
	Count    int       `json:"count"`
	LoadedAt time.Time `json:"loaded_at"`
}

// ScoreDebugResponse explains how the catalog scores against a query
// without calling any model.
type ScoreDebugResponse struct {
	Query   string   `json:"query"`
	Tokens  []string `json:"tokens"`
	Urgency string   `json:"urgency"`

	// Records holds every record's score breakdown in catalog order,
	// including zero and negative totals that selection would drop.
	Records []ScoredRecord `json:"records"`
}

// ScoredRecord pairs a record's identity with its score breakdown.
type ScoredRecord struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Breakdown ranking.Breakdown `json:"breakdown"`
}

// HealthResponse reports process liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse reports whether the service can answer without a cold
// catalog fetch.
type ReadyResponse struct {
	Status        string `json:"status"`
	CatalogLoaded bool   `json:"catalog_loaded"`
	Records       int    `json:"records"`
}

// ErrorResponse is the envelope for all non-2xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
