// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collab

import (
	"strings"
	"testing"
)

func TestLoadAPIKey_FromEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "  sk-ant-REDACTED  ")

	key, err := LoadAPIKey("anthropic")
	if err != nil {
		t.Fatalf("LoadAPIKey() error = %v", err)
	}
	defer key.Destroy()

	if got := key.Value(); got != "sk-ant-REDACTED" {
		t.Errorf("Value() = %q, want trimmed key", got)
	}
}

func TestLoadAPIKey_Missing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := LoadAPIKey("openai")
	if err == nil {
		t.Fatal("expected error when no credential is available")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("error = %v, want the environment variable named", err)
	}
}

func TestNewAPIKey_RejectsEmpty(t *testing.T) {
	if _, err := NewAPIKey(""); err == nil {
		t.Fatal("expected error for empty key material")
	}
}

func TestAPIKey_DestroyWipesValue(t *testing.T) {
	key, err := NewAPIKey("secret-value")
	if err != nil {
		t.Fatalf("NewAPIKey() error = %v", err)
	}
	if key.Value() != "secret-value" {
		t.Fatalf("Value() = %q before destroy", key.Value())
	}

	key.Destroy()
	if got := key.Value(); got != "" {
		t.Errorf("Value() after Destroy = %q, want empty", got)
	}
	// A second Destroy must not panic.
	key.Destroy()
}

func TestAPIKey_NilSafe(t *testing.T) {
	var key *APIKey
	if got := key.Value(); got != "" {
		t.Errorf("nil Value() = %q, want empty", got)
	}
	key.Destroy()
}
