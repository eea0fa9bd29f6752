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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/navigator/services/navigator/collab"
	"github.com/AleutianAI/navigator/services/navigator/ranking"
)

// wsFrame is the union of the two frame shapes a session can receive, so
// tests can read either without knowing which to expect.
type wsFrame struct {
	RequestID   string                `json:"request_id"`
	Disposition string                `json:"disposition"`
	Message     string                `json:"message"`
	Resources   []RecommendedResource `json:"resources"`
	Error       string                `json:"error"`
	Code        string                `json:"code"`
}

// dialWS starts a real server around the harness and opens one session.
func dialWS(t *testing.T, h *testHarness) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(newTestRouter(h))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/navigator/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s): %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return frame
}

func TestHandleWebsocket_OneFramePerTurn(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	conn := dialWS(t, h)

	if err := conn.WriteJSON(ChatRequest{Message: "hey", RequestID: "ws-1"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Disposition != string(ranking.DispositionClarify) {
		t.Errorf("turn 1 disposition = %q, want %q", frame.Disposition, ranking.DispositionClarify)
	}
	if frame.RequestID != "ws-1" {
		t.Errorf("turn 1 request_id = %q, want %q", frame.RequestID, "ws-1")
	}

	// The same session carries a second, heavier turn.
	if err := conn.WriteJSON(ChatRequest{Message: "I need a support group for grief", RequestID: "ws-2"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Disposition != string(ranking.DispositionRecommend) {
		t.Errorf("turn 2 disposition = %q, want %q", frame.Disposition, ranking.DispositionRecommend)
	}
	if len(frame.Resources) != 1 || frame.Resources[0].Title != "Experience Camps" {
		t.Errorf("turn 2 resources = %+v, want only Experience Camps", frame.Resources)
	}
	if frame.RequestID != "ws-2" {
		t.Errorf("turn 2 request_id = %q, want %q", frame.RequestID, "ws-2")
	}
}

func TestHandleWebsocket_MalformedFrameKeepsSession(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	conn := dialWS(t, h)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want %q", frame.Code, "INVALID_REQUEST")
	}

	// The session survives the bad frame.
	if err := conn.WriteJSON(ChatRequest{Message: "hey"}); err != nil {
		t.Fatalf("WriteJSON after bad frame: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Disposition != string(ranking.DispositionClarify) {
		t.Errorf("post-recovery disposition = %q, want %q", frame.Disposition, ranking.DispositionClarify)
	}
}

func TestHandleWebsocket_RejectsEmptyMessage(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	conn := dialWS(t, h)

	if err := conn.WriteJSON(ChatRequest{Message: "   "}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want %q", frame.Code, "INVALID_REQUEST")
	}
	if !strings.Contains(frame.Error, "message is required") {
		t.Errorf("error = %q, want it to name the missing field", frame.Error)
	}
}

func TestHandleWebsocket_ServiceErrorBecomesErrorFrame(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	h.classifier.err = &collab.ClassifierError{Err: errTestBoom}
	conn := dialWS(t, h)

	if err := conn.WriteJSON(ChatRequest{Message: "I need a support group for grief"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Code != "CLASSIFIER_FAILED" {
		t.Errorf("code = %q, want %q", frame.Code, "CLASSIFIER_FAILED")
	}

	// A pipeline failure is a turn-level event, not a session-level one.
	if err := conn.WriteJSON(ChatRequest{Message: "hey"}); err != nil {
		t.Fatalf("WriteJSON after error frame: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Disposition != string(ranking.DispositionClarify) {
		t.Errorf("post-error disposition = %q, want %q", frame.Disposition, ranking.DispositionClarify)
	}
}

func TestHandleWebsocket_GeneratesRequestIDPerTurn(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	conn := dialWS(t, h)

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(ChatRequest{Message: "hey"}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
		frame := readFrame(t, conn)
		if frame.RequestID == "" {
			t.Fatal("request_id is empty, want a generated ID")
		}
		if seen[frame.RequestID] {
			t.Errorf("request_id %q reused across turns", frame.RequestID)
		}
		seen[frame.RequestID] = true
	}
}
