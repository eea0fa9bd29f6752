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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewPolicyWatcher_EmptyPath(t *testing.T) {
	_, err := NewPolicyWatcher("", nil)
	if err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestNewPolicyWatcher_MissingDirectory(t *testing.T) {
	_, err := NewPolicyWatcher(filepath.Join(t.TempDir(), "missing", "policy.yaml"), nil)
	if err == nil {
		t.Fatal("expected error for unwatchable directory")
	}
}

func TestPolicyWatcher_ReloadSwapsValidPolicy(t *testing.T) {
	t.Setenv(PolicyFileEnv, "")
	ResetPolicyConfig()
	defer ResetPolicyConfig()

	ctx := context.Background()
	original, err := GetPolicyConfig(ctx)
	if err != nil {
		t.Fatalf("GetPolicyConfig failed: %v", err)
	}

	updated := strings.Replace(minimalPolicyYAML, "request_token: 3", "request_token: 4", 1)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	pw, err := NewPolicyWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewPolicyWatcher failed: %v", err)
	}
	defer pw.Close()

	pw.reload(ctx)

	current, err := GetPolicyConfig(ctx)
	if err != nil {
		t.Fatalf("GetPolicyConfig after reload failed: %v", err)
	}
	if current == original {
		t.Error("expected reload to swap the policy")
	}
	if current.Weights.RequestToken != 4 {
		t.Errorf("expected reloaded request_token = 4, got %d", current.Weights.RequestToken)
	}
}

func TestPolicyWatcher_ReloadKeepsPreviousOnBadFile(t *testing.T) {
	t.Setenv(PolicyFileEnv, "")
	ResetPolicyConfig()
	defer ResetPolicyConfig()

	ctx := context.Background()
	original, err := GetPolicyConfig(ctx)
	if err != nil {
		t.Fatalf("GetPolicyConfig failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("{{{{not yaml"), 0o600); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	pw, err := NewPolicyWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewPolicyWatcher failed: %v", err)
	}
	defer pw.Close()

	pw.reload(ctx)

	current, err := GetPolicyConfig(ctx)
	if err != nil {
		t.Fatalf("GetPolicyConfig after bad reload failed: %v", err)
	}
	if current != original {
		t.Error("bad file should leave the previous policy active")
	}
}
