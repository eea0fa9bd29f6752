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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/navigator/services/navigator/catalog"
	"github.com/AleutianAI/navigator/services/navigator/collab"
	"github.com/AleutianAI/navigator/services/navigator/ranking"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errTestBoom = errors.New("boom")

// newTestRouter mounts the handler set the same way cmd/navigator does.
func newTestRouter(h *testHarness) *gin.Engine {
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(h.svc))
	return router
}

func postChat(t *testing.T, router *gin.Engine, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest("POST", "/v1/navigator/chat", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var envelope ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, w.Body.String())
	}
	return envelope
}

func TestHandleChat_Success(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	w := postChat(t, router, `{"message": "I need a support group for grief"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Disposition != string(ranking.DispositionRecommend) {
		t.Errorf("disposition = %q, want %q", resp.Disposition, ranking.DispositionRecommend)
	}
	if len(resp.Resources) != 1 || resp.Resources[0].Title != "Experience Camps" {
		t.Errorf("resources = %+v, want only Experience Camps", resp.Resources)
	}
	if resp.RequestID == "" {
		t.Error("request_id is empty, want a generated ID")
	}
	if got := w.Header().Get("X-Request-ID"); got != resp.RequestID {
		t.Errorf("X-Request-ID header = %q, want %q", got, resp.RequestID)
	}
}

func TestHandleChat_BodyRequestIDWinsOverHeader(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	w := postChat(t, router,
		`{"message": "hey", "request_id": "turn-7"}`,
		map[string]string{"X-Request-ID": "header-id"},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.RequestID != "turn-7" {
		t.Errorf("request_id = %q, want the body's %q", resp.RequestID, "turn-7")
	}
	if got := w.Header().Get("X-Request-ID"); got != "turn-7" {
		t.Errorf("X-Request-ID header = %q, want %q", got, "turn-7")
	}
}

func TestHandleChat_HeaderRequestIDIsUsed(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	w := postChat(t, router, `{"message": "hey"}`,
		map[string]string{"X-Request-ID": "header-id"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.RequestID != "header-id" {
		t.Errorf("request_id = %q, want %q", resp.RequestID, "header-id")
	}
}

func TestHandleChat_MalformedJSON(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	w := postChat(t, router, `{not json`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if envelope := decodeError(t, w); envelope.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want %q", envelope.Code, "INVALID_REQUEST")
	}
}

func TestHandleChat_MissingMessage(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	w := postChat(t, router, `{"history": []}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
	}
}

func TestHandleChat_RejectsUnknownHistoryRole(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	w := postChat(t, router,
		`{"message": "hey", "history": [{"role": "robot", "content": "beep"}]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
	}
}

func TestHandleChat_ErrorCodeMapping(t *testing.T) {
	// Everything upstream of the service (catalog source, both model
	// collaborators) maps to 502 with a code naming the failing stage.
	cases := []struct {
		name     string
		breakage func(h *testHarness)
		wantCode string
	}{
		{
			name: "catalog unreachable",
			breakage: func(h *testHarness) {
				h.fetcher.err = &catalog.FetchError{Status: 503, Body: "sheet down"}
			},
			wantCode: "CATALOG_UNAVAILABLE",
		},
		{
			name: "catalog missing column",
			breakage: func(h *testHarness) {
				h.fetcher.body = "ID,Title,Description,Best For,When To Use,Not For,Fatherlessness Connection?,How To Start\nr1,Camp,desc,best,when,,conn,start\n"
			},
			wantCode: "CATALOG_INVALID",
		},
		{
			name: "catalog empty",
			breakage: func(h *testHarness) {
				h.fetcher.body = ""
			},
			wantCode: "CATALOG_INVALID",
		},
		{
			name: "classifier failed",
			breakage: func(h *testHarness) {
				h.classifier.err = &collab.ClassifierError{Err: errTestBoom}
			},
			wantCode: "CLASSIFIER_FAILED",
		},
		{
			name: "rewriter failed",
			breakage: func(h *testHarness) {
				h.rewriter.err = &collab.RewriterError{Err: errTestBoom}
			},
			wantCode: "REWRITER_FAILED",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestService(t, testServiceConfig())
			tc.breakage(h)
			router := newTestRouter(h)

			w := postChat(t, router, `{"message": "I need a support group for grief"}`, nil)
			if w.Code != http.StatusBadGateway {
				t.Fatalf("expected status %d, got %d: %s", http.StatusBadGateway, w.Code, w.Body.String())
			}
			if envelope := decodeError(t, w); envelope.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", envelope.Code, tc.wantCode)
			}
		})
	}
}

func TestHandleResources_ReturnsCatalog(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	req, _ := http.NewRequest("GET", "/v1/navigator/resources", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp ResourcesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 6 || len(resp.Records) != 6 {
		t.Errorf("count = %d (%d records), want 6", resp.Count, len(resp.Records))
	}
	if resp.LoadedAt.IsZero() {
		t.Error("loaded_at is zero, want the snapshot time")
	}
}

func TestHandleCatalogRefresh_ForcesReload(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("POST", "/v1/navigator/catalog/refresh", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("refresh %d: expected status %d, got %d: %s", i, http.StatusOK, w.Code, w.Body.String())
		}
		var resp RefreshResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.Count != 6 {
			t.Errorf("refresh %d: count = %d, want 6", i, resp.Count)
		}
	}

	// Unlike GET /resources, every refresh bypasses the TTL.
	if h.fetcher.calls != 2 {
		t.Errorf("fetcher.calls = %d, want 2", h.fetcher.calls)
	}
}

func TestHandleReady_WaitsForFirstLoad(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	req, _ := http.NewRequest("GET", "/v1/navigator/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d before first load, got %d", http.StatusServiceUnavailable, w.Code)
	}

	refresh, _ := http.NewRequest("POST", "/v1/navigator/catalog/refresh", nil)
	router.ServeHTTP(httptest.NewRecorder(), refresh)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d after load, got %d", http.StatusOK, w.Code)
	}

	var resp ReadyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.CatalogLoaded || resp.Records != 6 {
		t.Errorf("ready = %+v, want catalog_loaded with 6 records", resp)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	req, _ := http.NewRequest("GET", "/v1/navigator/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
}

func TestHandleScoreDebug_Success(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	req, _ := http.NewRequest("GET", "/v1/navigator/debug/score?q=I+need+a+mentor&gender=female", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp ScoreDebugResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Query != "I need a mentor" {
		t.Errorf("query = %q, want the raw input", resp.Query)
	}
	if len(resp.Records) != 6 {
		t.Fatalf("records = %d, want every catalog record", len(resp.Records))
	}
	for _, rec := range resp.Records {
		if rec.ID == "mentor-sisters" && rec.Breakdown.Total != 8 {
			t.Errorf("mentor-sisters total = %d, want 8 with a declared member", rec.Breakdown.Total)
		}
	}
}

func TestHandleScoreDebug_RequiresQuery(t *testing.T) {
	h := newTestService(t, testServiceConfig())
	router := newTestRouter(h)

	req, _ := http.NewRequest("GET", "/v1/navigator/debug/score", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if envelope := decodeError(t, w); envelope.Code != "MISSING_PARAMETER" {
		t.Errorf("code = %q, want %q", envelope.Code, "MISSING_PARAMETER")
	}
}
