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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/navigator/services/navigator/collab"
)

const (
	// wsWriteTimeout bounds writing one response frame.
	wsWriteTimeout = 10 * time.Second

	// wsIdleTimeout closes sessions with no inbound frame for this long.
	wsIdleTimeout = 5 * time.Minute

	// wsMaxFrameBytes caps one inbound frame, comfortably above the
	// message cap plus a long history.
	wsMaxFrameBytes = 256 << 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The widget embeds cross-origin, same as the CORS policy on the
	// HTTP endpoints.
	CheckOrigin: func(*http.Request) bool { return true },
}

// HandleWebsocket handles GET /v1/navigator/ws.
//
// Description:
//
//	Upgrades the connection and exchanges complete JSON frames: every
//	inbound ChatRequest frame produces exactly one outbound frame, a
//	ChatResponse on success or an ErrorResponse on failure. There is no
//	partial-result streaming; a frame is written only when the turn has
//	fully resolved. Malformed frames get an error frame and the session
//	continues; transport errors end the session.
//
// Thread Safety: This method is safe for concurrent use. Each connection
// is served by its own handler invocation.
func (h *Handlers) HandleWebsocket(c *gin.Context) {
	sessionID := getOrCreateRequestID(c)
	logger := slog.With("session_id", sessionID, "handler", "HandleWebsocket")

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrameBytes)

	websocketSessions.Inc()
	defer websocketSessions.Dec()
	logger.Info("Websocket session opened", "remote", conn.RemoteAddr().String())

	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsIdleTimeout)); err != nil {
			return
		}

		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if isDecodeError(err) {
				if !h.writeFrame(conn, logger, ErrorResponse{
					Error: "invalid frame: " + err.Error(),
					Code:  "INVALID_REQUEST",
				}) {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Websocket session ended abnormally", "error", err)
			}
			return
		}

		frame := h.processFrame(c.Request.Context(), logger, req)
		if !h.writeFrame(conn, logger, frame) {
			return
		}
	}
}

// processFrame runs one websocket turn and returns the frame to send.
func (h *Handlers) processFrame(ctx context.Context, logger *slog.Logger, req ChatRequest) any {
	if req.RequestID = strings.TrimSpace(req.RequestID); req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if err := validateTurn(req); err != nil {
		return ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"}
	}

	logger.Info("Websocket turn received",
		"request_id", req.RequestID,
		"message_preview", collab.SafeLogString(truncateRunes(req.Message, 80)),
		"history_turns", len(req.History),
	)

	resp, err := h.service.Process(ctx, req)
	if err != nil {
		_, code := mapServiceError(err)
		httpErrorsTotal.WithLabelValues(code).Inc()
		logger.Error("Websocket turn failed", "request_id", req.RequestID, "code", code, "error", err)
		return ErrorResponse{Error: err.Error(), Code: code}
	}

	logger.Info("Websocket turn completed",
		"request_id", req.RequestID,
		"disposition", resp.Disposition,
		"resources", len(resp.Resources),
	)
	return resp
}

// writeFrame sends one frame, reporting whether the session can continue.
func (h *Handlers) writeFrame(conn *websocket.Conn, logger *slog.Logger, frame any) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return false
	}
	if err := conn.WriteJSON(frame); err != nil {
		logger.Warn("Websocket write failed", "error", err)
		return false
	}
	return true
}

// validateTurn applies the binding rules gin enforces on the HTTP route,
// since ReadJSON performs no validation.
func validateTurn(req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}
	for i, t := range req.History {
		if t.Role != "user" && t.Role != "assistant" {
			return fmt.Errorf("history[%d].role must be user or assistant", i)
		}
		if t.Content == "" {
			return fmt.Errorf("history[%d].content is required", i)
		}
	}
	return nil
}

// isDecodeError reports whether a ReadJSON failure was a JSON problem in an
// otherwise intact frame, which leaves the connection usable.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
