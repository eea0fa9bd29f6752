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

func TestSafeLogString(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "anthropic key",
			input: "error: sk-ant-REDACTED returned 401",
			want:  "error: [REDACTED:anthropic_key] returned 401",
		},
		{
			name:  "openai key",
			input: "auth failed for sk-abcdefghij1234567890XYZ",
			want:  "auth failed for [REDACTED:openai_key]",
		},
		{
			name:  "bearer token",
			input: "header Authorization: Bearer abc.def-ghi_jkl123",
			want:  "header Authorization: [REDACTED:bearer_token]",
		},
		{
			name:  "url query key",
			input: "GET /v1/thing?key=abcdef123456789 HTTP/1.1",
			want:  "GET /v1/thing?key=[REDACTED] HTTP/1.1",
		},
		{
			name:  "password",
			input: "dsn: host=db password=hunter22 user=svc",
			want:  "dsn: host=db password=[REDACTED] user=svc",
		},
		{
			name:  "no secrets",
			input: "normal log message with no secrets",
			want:  "normal log message with no secrets",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SafeLogString(tc.input); got != tc.want {
				t.Errorf("SafeLogString(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSafeLogString_AnthropicBeforeOpenAI(t *testing.T) {
	// The anthropic pattern must win even though the openai pattern also
	// matches the "sk-" prefix.
	got := SafeLogString("sk-ant-REDACTED")
	if strings.Contains(got, "openai") {
		t.Errorf("anthropic key redacted as openai: %q", got)
	}
	if got != "[REDACTED:anthropic_key]" {
		t.Errorf("got %q, want [REDACTED:anthropic_key]", got)
	}
}
