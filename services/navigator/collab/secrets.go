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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/awnumar/memguard"
)

// secretsDir is where container runtimes (Podman, Docker) mount secrets.
const secretsDir = "/run/secrets"

// APIKey holds a provider credential in a locked, wipeable buffer.
//
// Description:
//
//	The key bytes live in a memguard LockedBuffer, which is guarded
//	against swapping and core dumps and can be wiped on shutdown. The
//	plaintext only surfaces in Value() at the moment a request header
//	is written.
//
// Thread Safety: Safe for concurrent reads. Destroy must not race
// with Value.
type APIKey struct {
	buf *memguard.LockedBuffer
}

// NewAPIKey seals a credential string.
//
// Inputs:
//   - value: The key material. Must be non-empty.
//
// Outputs:
//   - *APIKey: The sealed key.
//   - error: Non-nil if value is empty.
func NewAPIKey(value string) (*APIKey, error) {
	if value == "" {
		return nil, fmt.Errorf("collab: cannot seal an empty API key")
	}
	return &APIKey{buf: memguard.NewBufferFromBytes([]byte(value))}, nil
}

// LoadAPIKey resolves a provider's credential.
//
// Description:
//
//	Checks the provider's environment variable first (ANTHROPIC_API_KEY,
//	OPENAI_API_KEY), then falls back to the container secrets mount
//	(/run/secrets/<provider>_api_key).
//
// Inputs:
//   - provider: Provider name, e.g. "anthropic" or "openai".
//
// Outputs:
//   - *APIKey: The sealed key.
//   - error: Non-nil if no credential was found. The message names the
//     environment variable to set.
func LoadAPIKey(provider string) (*APIKey, error) {
	envVar := strings.ToUpper(provider) + "_API_KEY"
	key := strings.TrimSpace(os.Getenv(envVar))

	if key == "" {
		secretPath := filepath.Join(secretsDir, provider+"_api_key")
		if content, err := os.ReadFile(secretPath); err == nil {
			key = strings.TrimSpace(string(content))
			slog.Info("Read API key from container secrets", "provider", provider)
		}
	}

	if key == "" {
		return nil, fmt.Errorf("%s: API key is missing (%s)", provider, envVar)
	}
	return NewAPIKey(key)
}

// Value returns the plaintext key. Returns "" on a nil or destroyed key.
func (k *APIKey) Value() string {
	if k == nil || k.buf == nil || !k.buf.IsAlive() {
		return ""
	}
	return k.buf.String()
}

// Destroy wipes the key material. Safe to call more than once.
func (k *APIKey) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	k.buf.Destroy()
}
