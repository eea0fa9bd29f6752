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
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/navigator/services/navigator/catalog"
	"github.com/AleutianAI/navigator/services/navigator/collab"
)

// Handlers exposes the Service over gin.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set for a service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleChat handles POST /v1/navigator/chat.
//
// Description:
//
//	Runs one turn through the pipeline and returns its disposition,
//	reply text, and resources. The user's message is never logged in
//	full: previews are truncated and secret-redacted.
//
// Request Body:
//
//	ChatRequest
//
// Response:
//
//	200 OK: ChatResponse
//	400 Bad Request: Malformed or incomplete request body
//	502 Bad Gateway: Catalog or collaborator failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleChat")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Rejected malformed chat request", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	// A request_id in the body wins over the header-or-generated one.
	if body := strings.TrimSpace(req.RequestID); body != "" {
		requestID = body
		c.Header(requestIDHeader, requestID)
		logger = slog.With("request_id", requestID, "handler", "HandleChat")
	}
	req.RequestID = requestID

	logger.Info("Chat turn received",
		"message_preview", collab.SafeLogString(truncateRunes(req.Message, 80)),
		"history_turns", len(req.History),
	)

	resp, err := h.service.Process(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	logger.Info("Chat turn completed",
		"disposition", resp.Disposition,
		"resources", len(resp.Resources),
		"urgency", resp.Urgency,
	)
	c.JSON(http.StatusOK, resp)
}

// HandleResources handles GET /v1/navigator/resources.
//
// Description:
//
//	Ops view of the current catalog: every record plus cache age. Loads
//	the catalog when the cache is stale, so the first call after boot
//	performs a fetch.
//
// Response:
//
//	200 OK: ResourcesResponse
//	502 Bad Gateway: Catalog source unreachable or invalid
func (h *Handlers) HandleResources(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleResources")

	resp, err := h.service.Resources(c.Request.Context())
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCatalogRefresh handles POST /v1/navigator/catalog/refresh.
//
// Description:
//
//	Forces a catalog reload regardless of cache freshness. Used after
//	editing the source sheet so changes show up before the TTL expires.
//
// Response:
//
//	200 OK: RefreshResponse
//	502 Bad Gateway: Catalog source unreachable or invalid
func (h *Handlers) HandleCatalogRefresh(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCatalogRefresh")

	resp, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}

	logger.Info("Catalog refreshed", "records", resp.Count)
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/navigator/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleReady handles GET /v1/navigator/ready.
//
// Description:
//
//	Ready means a catalog snapshot is loaded, fresh or stale, so a chat
//	turn will not pay for a cold fetch. Returns 503 until the first
//	load completes.
func (h *Handlers) HandleReady(c *gin.Context) {
	loaded, records := h.service.Ready()
	if !loaded {
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status:        "waiting for catalog",
			CatalogLoaded: false,
		})
		return
	}
	c.JSON(http.StatusOK, ReadyResponse{
		Status:        "ready",
		CatalogLoaded: true,
		Records:       records,
	})
}

// mapServiceError translates a pipeline failure into an HTTP status and
// error code.
//
// Description:
//
//	Catalog configuration errors (missing column, empty catalog) and
//	unreachable sources are upstream failures, as are collaborator
//	errors, so they all map to 502 with a distinguishing code. Anything
//	unrecognized is a 500.
func mapServiceError(err error) (status int, code string) {
	var (
		missingCol    *catalog.MissingColumnError
		fetchErr      *catalog.FetchError
		classifierErr *collab.ClassifierError
		rewriterErr   *collab.RewriterError
	)
	switch {
	case errors.As(err, &missingCol), errors.Is(err, catalog.ErrEmptyCatalog):
		return http.StatusBadGateway, "CATALOG_INVALID"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "CATALOG_UNAVAILABLE"
	case errors.As(err, &classifierErr):
		return http.StatusBadGateway, "CLASSIFIER_FAILED"
	case errors.As(err, &rewriterErr):
		return http.StatusBadGateway, "REWRITER_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeServiceError maps a pipeline failure to the error envelope.
func writeServiceError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := mapServiceError(err)
	httpErrorsTotal.WithLabelValues(code).Inc()
	logger.Error("Request failed", "code", code, "error", err)
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
