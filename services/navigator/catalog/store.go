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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// snapshotKeyPrefix versions the key layout. Bump the version to invalidate
// every persisted snapshot after an incompatible ResourceRecord change.
const snapshotKeyPrefix = "navigator/catalog/v1/"

// DefaultSnapshotTTL bounds how long a persisted snapshot survives on disk.
// It only serves warm restarts; anything older than a day is worthless
// because the in-memory TTL governs what actually gets served.
const DefaultSnapshotTTL = 24 * time.Hour

// errSnapshotMiss distinguishes "not cached" from real storage errors.
var errSnapshotMiss = errors.New("snapshot not found")

// SnapshotStore persists catalog snapshots across process restarts.
//
// Description:
//
//	Persistence is strictly optional: the service runs fully in-memory when
//	no store is configured. Implementations and callers follow the nil-safe
//	convention — a nil *BadgerSnapshotStore behaves as an always-empty store
//	so call sites need no nil checks.
//
// Thread Safety: Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Get returns the persisted snapshot for a source key, or (nil, nil)
	// when none exists. A non-nil error means storage itself failed.
	Get(ctx context.Context, srcKey string) (*Snapshot, error)

	// Put persists the snapshot for a source key, replacing any previous one.
	Put(ctx context.Context, srcKey string, snap *Snapshot) error
}

// BadgerSnapshotStore stores gob-encoded snapshots in BadgerDB with a TTL.
//
// Thread Safety: Safe for concurrent use; BadgerDB transactions provide
// isolation.
type BadgerSnapshotStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerSnapshotStore creates a store around an open BadgerDB handle.
//
// Inputs:
//   - db: Open BadgerDB. The caller owns its lifecycle.
//   - ttl: On-disk lifetime per snapshot. Non-positive uses
//     DefaultSnapshotTTL.
//   - logger: Structured logger. Nil uses slog.Default().
func NewBadgerSnapshotStore(db *badger.DB, ttl time.Duration, logger *slog.Logger) *BadgerSnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerSnapshotStore{db: db, ttl: ttl, logger: logger}
}

// OpenSnapshotDB opens (or creates) the BadgerDB directory used for snapshot
// persistence. Badger's own logger is silenced; the store logs through slog.
func OpenSnapshotDB(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store at %s: %w", dir, err)
	}
	return db, nil
}

// Get implements SnapshotStore. Nil receiver and cache misses both return
// (nil, nil).
func (s *BadgerSnapshotStore) Get(ctx context.Context, srcKey string) (*Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	key := snapshotKey(srcKey)
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errSnapshotMiss
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, errSnapshotMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	snap, err := decodeSnapshot(raw)
	if err != nil {
		// A decode failure means the stored format drifted. Treat as a miss;
		// the next Put overwrites it with the current encoding.
		s.logger.Warn("discarding undecodable catalog snapshot",
			"error", err,
			"key", string(key),
		)
		return nil, nil
	}
	return snap, nil
}

// Put implements SnapshotStore. No-op on nil receiver or nil snapshot.
func (s *BadgerSnapshotStore) Put(ctx context.Context, srcKey string, snap *Snapshot) error {
	if s == nil || s.db == nil || snap == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	raw, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	key := snapshotKey(srcKey)
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, raw).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// snapshotKey derives the storage key from the source identity. Hashing
// keeps arbitrary URLs out of the key space and bounds key length.
func snapshotKey(srcKey string) []byte {
	sum := sha256.Sum256([]byte(srcKey))
	return []byte(snapshotKeyPrefix + hex.EncodeToString(sum[:8]))
}

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
