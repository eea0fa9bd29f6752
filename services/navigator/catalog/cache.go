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
	"sync/atomic"
	"time"
)

// DefaultTTL is how long a loaded catalog stays fresh. The sheet is edited
// rarely but the people editing it expect changes to show up within minutes.
const DefaultTTL = 2 * time.Minute

// Snapshot is one complete catalog load.
//
// Thread Safety: Immutable after construction. The Records slice is never
// appended to or reordered once the snapshot is published.
type Snapshot struct {
	Records  []ResourceRecord
	LoadedAt time.Time
}

// Cache holds the current catalog snapshot for the whole process.
//
// Description:
//
//	The snapshot is replaced as a single value: any reader sees either the
//	old snapshot or the new one, never a partially updated mix. Concurrent
//	refreshes are an idempotent race (every writer computes the same result
//	from the same source), so last-writer-wins is correct and no mutual
//	exclusion is needed around Replace.
//
// Thread Safety: Safe for concurrent use via atomic pointer swap.
type Cache struct {
	ttl  time.Duration
	now  func() time.Time
	snap atomic.Pointer[Snapshot]
}

// NewCache creates an empty cache with the given TTL. A non-positive ttl
// falls back to DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	return NewCacheWithClock(ttl, time.Now)
}

// NewCacheWithClock creates a cache with an injected clock so tests can step
// time instead of sleeping across TTL boundaries.
func NewCacheWithClock(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, now: now}
}

// Get returns the current snapshot when it is fresh and non-empty.
//
// Outputs:
//   - *Snapshot: The cached snapshot, nil on a miss.
//   - bool: True only when the snapshot exists, holds at least one record,
//     and is younger than the TTL.
func (c *Cache) Get() (*Snapshot, bool) {
	s := c.snap.Load()
	if s == nil || len(s.Records) == 0 {
		return nil, false
	}
	if c.now().Sub(s.LoadedAt) >= c.ttl {
		return nil, false
	}
	return s, true
}

// Peek returns the current snapshot regardless of freshness. Used by ops
// endpoints that report cache age; never used to serve recommendations.
func (c *Cache) Peek() *Snapshot {
	return c.snap.Load()
}

// Replace installs a new snapshot wholesale.
//
// loadedAt is supplied by the caller rather than read from the clock here so
// a snapshot restored from persistence keeps its original load time and
// expires on the same schedule it would have originally.
func (c *Cache) Replace(records []ResourceRecord, loadedAt time.Time) {
	c.snap.Store(&Snapshot{Records: records, LoadedAt: loadedAt})
}

// Age returns how old the current snapshot is. ok is false when the cache
// has never been populated.
func (c *Cache) Age() (age time.Duration, ok bool) {
	s := c.snap.Load()
	if s == nil {
		return 0, false
	}
	return c.now().Sub(s.LoadedAt), true
}

// TTL exposes the configured freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Now reads the cache's clock. The loader stamps new snapshots with this so
// an injected test clock governs both freshness checks and load times.
func (c *Cache) Now() time.Time {
	return c.now()
}
