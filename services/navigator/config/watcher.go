// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the event bursts editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// PolicyWatcher hot-reloads the policy file when it changes on disk.
//
// Description:
//
//	Watches the directory containing the policy file (watching the file
//	itself breaks on editors that replace rather than rewrite) and swaps
//	the policy singleton when a changed file loads and validates. A file
//	that fails to load is logged and ignored; the previous policy stays
//	active.
//
// Thread Safety: Safe for concurrent use. Start once; Close to stop.
type PolicyWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewPolicyWatcher creates a watcher for the given policy file.
//
// Inputs:
//
//	path - Policy YAML file to watch. Must not be empty.
//	logger - Logger for reload outcomes. Nil uses slog.Default.
//
// Outputs:
//
//	*PolicyWatcher - The configured watcher. Start must be called.
//	error - Non-nil if the underlying filesystem watcher cannot be created.
func NewPolicyWatcher(path string, logger *slog.Logger) (*PolicyWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("NewPolicyWatcher: path must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("NewPolicyWatcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("NewPolicyWatcher: watching %s: %w", filepath.Dir(path), err)
	}

	return &PolicyWatcher{
		path:    path,
		watcher: w,
		logger:  logger,
	}, nil
}

// Start runs the watch loop until ctx is cancelled or Close is called.
//
// Description:
//
//	Blocks. Callers run it in a goroutine. Reloads are debounced so an
//	editor's write-rename-chmod burst triggers one reload.
//
// Inputs:
//
//	ctx - Cancellation stops the loop.
func (pw *PolicyWatcher) Start(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(pw.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			pw.reload(ctx)

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warn("policy watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the underlying filesystem watcher.
func (pw *PolicyWatcher) Close() error {
	return pw.watcher.Close()
}

// reload loads the changed file and swaps the singleton on success.
func (pw *PolicyWatcher) reload(ctx context.Context) {
	data, err := os.ReadFile(pw.path)
	if err != nil {
		pw.logger.Warn("policy reload skipped, file unreadable",
			slog.String("path", pw.path),
			slog.String("error", err.Error()))
		return
	}

	cfg, err := LoadPolicyConfig(ctx, data)
	if err != nil {
		pw.logger.Warn("policy reload rejected, keeping previous policy",
			slog.String("path", pw.path),
			slog.String("error", err.Error()))
		return
	}

	ReplacePolicyConfig(cfg)
	pw.logger.Info("policy reloaded",
		slog.String("path", pw.path),
		slog.Int("safety_patterns", len(cfg.Safety.Patterns)),
		slog.Int("mission_keywords", len(cfg.MissionKeywords)))
}
