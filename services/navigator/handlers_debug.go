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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleScoreDebug handles GET /v1/navigator/debug/score.
//
// Description:
//
//	Scores every catalog record against the given query and returns the
//	per-record breakdown, including records selection would drop. No
//	model is called: tag tokens are empty and urgency comes from the
//	query string, so output is deterministic for a fixed catalog. Used
//	to answer "why did that resource (not) show up".
//
// Query Parameters:
//
//	q: Free-text query to score against (required)
//	urgency: low, medium, or high; defaults to low (optional)
//	gender: declared audience, as in ClientContext (optional)
//
// Response:
//
//	200 OK: ScoreDebugResponse
//	400 Bad Request: Missing required parameter
//	502 Bad Gateway: Catalog source unreachable or invalid
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleScoreDebug(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleScoreDebug")

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "q parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	resp, err := h.service.ExplainScores(c.Request.Context(), query, c.Query("urgency"), c.Query("gender"))
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
