// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// catalogTracerName is the OTel tracer name for catalog operations.
const catalogTracerName = "navigator.catalog"

// maxErrorBody caps how much of a failed response body is carried inside a
// FetchError. Enough to diagnose, small enough to log verbatim.
const maxErrorBody = 512

// DefaultFetchTimeout bounds one catalog fetch. The source is a published
// spreadsheet export; anything slower than this is effectively down.
const DefaultFetchTimeout = 30 * time.Second

// Package-level Prometheus metrics for catalog loading.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	catalogFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navigator",
			Subsystem: "catalog",
			Name:      "fetches_total",
			Help:      "Total catalog source fetches by outcome.",
		},
		[]string{"status"},
	)

	catalogCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navigator",
			Subsystem: "catalog",
			Name:      "cache_lookups_total",
			Help:      "Catalog cache lookups by result.",
		},
		[]string{"result"},
	)

	catalogRecordsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "navigator",
			Subsystem: "catalog",
			Name:      "records_loaded",
			Help:      "Number of records in the most recent catalog snapshot.",
		},
	)

	catalogLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "navigator",
			Subsystem: "catalog",
			Name:      "load_duration_seconds",
			Help:      "Duration of full catalog loads (fetch + parse + map).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Fetcher retrieves the raw catalog text. The HTTP implementation is the
// production path; tests inject fakes that count calls.
type Fetcher interface {
	// Fetch returns the full body of the catalog source.
	//
	// Outputs:
	//   - string: Raw CSV text.
	//   - error: *FetchError on a non-success status, a wrapped transport
	//     error otherwise.
	Fetch(ctx context.Context) (string, error)
}

// HTTPFetcher fetches the catalog over plain HTTP(S) GET with no auth.
//
// Thread Safety: Safe for concurrent use; http.Client is concurrency-safe.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher with an explicit timeout. A non-positive
// timeout falls back to DefaultFetchTimeout.
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Fetch performs the GET and enforces the success-status contract.
func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", fmt.Errorf("building catalog request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching catalog: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close catalog response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading catalog response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{
			Status: resp.StatusCode,
			Body:   truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
	}

	return string(body), nil
}

// Loader ties fetch, parse, mapping, and the TTL cache together.
//
// Description:
//
//	Load is cache-first: a fresh snapshot is returned without any network
//	access. On a miss, concurrent callers are collapsed into a single fetch
//	via singleflight; all of them receive the same snapshot or the same
//	error. A failed refresh leaves the previous snapshot untouched.
//
// Thread Safety: Safe for concurrent use.
type Loader struct {
	fetcher Fetcher
	cache   *Cache
	store   SnapshotStore // nil disables persistence
	srcKey  string
	logger  *slog.Logger
	group   singleflight.Group
}

// LoaderOption configures optional Loader collaborators.
type LoaderOption func(*Loader)

// WithSnapshotStore attaches a persistence store. srcKey identifies the
// catalog source (its URL) so snapshots from different sources never mix.
func WithSnapshotStore(store SnapshotStore, srcKey string) LoaderOption {
	return func(l *Loader) {
		l.store = store
		l.srcKey = srcKey
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader around a fetcher and a cache.
func NewLoader(fetcher Fetcher, cache *Cache, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher: fetcher,
		cache:   cache,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the current catalog, fetching only when the cache is stale.
//
// Outputs:
//   - []ResourceRecord: The catalog records, in sheet order.
//   - error: *FetchError, *MissingColumnError, ErrEmptyCatalog, or a wrapped
//     transport error. The cache is never modified on error.
func (l *Loader) Load(ctx context.Context) ([]ResourceRecord, error) {
	if snap, ok := l.cache.Get(); ok {
		catalogCacheLookups.WithLabelValues("hit").Inc()
		return snap.Records, nil
	}
	catalogCacheLookups.WithLabelValues("miss").Inc()
	return l.sharedRefresh(ctx)
}

// Refresh forces a fetch regardless of cache freshness. Used by the ops
// refresh endpoint and by startup warming.
func (l *Loader) Refresh(ctx context.Context) ([]ResourceRecord, error) {
	return l.sharedRefresh(ctx)
}

// Cache exposes the underlying cache for age/TTL reporting.
func (l *Loader) Cache() *Cache {
	return l.cache
}

// sharedRefresh collapses concurrent refreshes into one fetch. The flight
// runs on a context detached from the winning caller's cancellation (values,
// including trace context, are kept) so one impatient client cannot fail the
// refresh for everyone sharing it.
func (l *Loader) sharedRefresh(ctx context.Context) ([]ResourceRecord, error) {
	v, err, _ := l.group.Do("refresh", func() (interface{}, error) {
		return l.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.([]ResourceRecord), nil
}

// refresh performs one full load: fetch, parse, map, swap cache, persist.
func (l *Loader) refresh(ctx context.Context) ([]ResourceRecord, error) {
	ctx, span := otel.Tracer(catalogTracerName).Start(ctx, "catalog.refresh")
	defer span.End()

	start := time.Now()

	raw, err := l.fetcher.Fetch(ctx)
	if err != nil {
		catalogFetchesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	rows := ParseTable(raw)
	if len(rows) == 0 {
		catalogFetchesTotal.WithLabelValues("error").Inc()
		span.SetStatus(codes.Error, "empty catalog")
		return nil, ErrEmptyCatalog
	}

	records, err := mapRecords(rows)
	if err != nil {
		catalogFetchesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "header contract violated")
		return nil, err
	}
	if len(records) == 0 {
		// Rows existed but none carried id+title+url. Same failure class as
		// an empty sheet: nothing can be recommended from this.
		catalogFetchesTotal.WithLabelValues("error").Inc()
		span.SetStatus(codes.Error, "no valid records")
		return nil, ErrEmptyCatalog
	}

	loadedAt := l.cache.Now()
	l.cache.Replace(records, loadedAt)
	l.persist(ctx, records, loadedAt)

	duration := time.Since(start)
	catalogFetchesTotal.WithLabelValues("success").Inc()
	catalogRecordsLoaded.Set(float64(len(records)))
	catalogLoadDuration.Observe(duration.Seconds())

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("rows", len(rows)),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	l.logger.Info("catalog refreshed",
		"records", len(records),
		"rows", len(rows),
		"duration", duration,
	)

	return records, nil
}

// persist writes the snapshot to the optional store. Best effort: a store
// failure is logged and the request proceeds with the in-memory snapshot.
func (l *Loader) persist(ctx context.Context, records []ResourceRecord, loadedAt time.Time) {
	if l.store == nil {
		return
	}
	snap := &Snapshot{Records: records, LoadedAt: loadedAt}
	if err := l.store.Put(ctx, l.srcKey, snap); err != nil {
		l.logger.Warn("catalog snapshot persistence failed",
			"error", err,
			"records", len(records),
		)
	}
}

// WarmFromStore seeds the cache from the persistence store at startup.
//
// The restored snapshot keeps its original LoadedAt, so a snapshot older
// than the TTL warms nothing visible and the first request refreshes as it
// would have anyway. Returns true when a snapshot was installed.
func (l *Loader) WarmFromStore(ctx context.Context) bool {
	if l.store == nil {
		return false
	}
	snap, err := l.store.Get(ctx, l.srcKey)
	if err != nil {
		l.logger.Warn("catalog snapshot restore failed", "error", err)
		return false
	}
	if snap == nil || len(snap.Records) == 0 {
		return false
	}
	l.cache.Replace(snap.Records, snap.LoadedAt)
	l.logger.Info("catalog cache warmed from snapshot store",
		"records", len(snap.Records),
		"loaded_at", snap.LoadedAt,
	)
	return true
}

// mapRecords applies the required-column contract to parsed rows.
//
// The first row is the header. Header cells are matched after normalization;
// data rows are mapped positionally by the discovered indices. Rows missing
// any identity field are excluded rather than failing the load.
func mapRecords(rows [][]string) ([]ResourceRecord, error) {
	header := rows[0]
	idx := make(map[string]int, len(header))
	for i, cell := range header {
		key := normalizeHeaderCell(cell)
		if key == "" {
			continue
		}
		// First occurrence wins on duplicate headers.
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}

	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, &MissingColumnError{Column: col}
		}
	}
	howIdx, hasHow := idx[colHowToStart]

	records := make([]ResourceRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := ResourceRecord{
			ID:          cellAt(row, idx[colID]),
			Title:       cellAt(row, idx[colTitle]),
			URL:         cellAt(row, idx[colURL]),
			Description: cellAt(row, idx[colDescription]),
			BestFor:     cellAt(row, idx[colBestFor]),
			WhenToUse:   cellAt(row, idx[colWhenToUse]),
			NotFor:      cellAt(row, idx[colNotFor]),
			Connection:  cellAt(row, idx[colConnection]),
		}
		if hasHow {
			rec.HowToStart = cellAt(row, howIdx)
		}
		if !validRecord(rec) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// cellAt returns the trimmed cell value, tolerating rows shorter than the
// header (sheet exports drop trailing empty cells).
func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// normalizeHeaderCell lowercases a header cell, strips punctuation, and
// collapses separator runs to single underscores, so "Best For?", "best  for",
// and "best_for" all resolve to "best_for". Underscores and hyphens count as
// separators rather than punctuation; stripping them would break sheets whose
// headers already use snake_case.
func normalizeHeaderCell(cell string) string {
	var b strings.Builder
	b.Grow(len(cell))
	for _, r := range strings.ToLower(cell) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '_', r == '-':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}

// truncate shortens s to at most n bytes for logs and error payloads.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
