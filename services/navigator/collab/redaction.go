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
	"regexp"
)

// redactionPattern pairs a compiled regex with a replacement label.
//
// Fields:
//   - Pattern: Compiled regex that matches the secret format.
//   - Replacement: The string that replaces matched secrets in output.
//
// Thread Safety: This type is immutable after construction.
type redactionPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionPatterns is the ordered list of secret patterns to redact.
//
// IMPORTANT: Order matters. More specific patterns (sk-ant-api03-) must
// appear BEFORE less specific patterns (sk-) to prevent partial redaction.
//
// Thread Safety: This slice is initialized once and never modified.
// All access is read-only.
var redactionPatterns = []redactionPattern{
	// Anthropic API key: sk-ant-api03-<base62>
	// Must be before the OpenAI pattern because both start with "sk-".
	{
		Pattern:     regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9_-]{20,}`),
		Replacement: "[REDACTED:anthropic_key]",
	},
	// OpenAI API key: sk-<base62, 20+ chars>
	// Requires 20+ chars after "sk-" to avoid matching short strings like "sk-test".
	{
		Pattern:     regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		Replacement: "[REDACTED:openai_key]",
	},
	// Bearer token in Authorization header values
	{
		Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		Replacement: "[REDACTED:bearer_token]",
	},
	// API key in URL query parameter: key=<value>
	{
		Pattern:     regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		Replacement: "key=[REDACTED]",
	},
	// Password in connection strings or config: password=<value>
	{
		Pattern:     regexp.MustCompile(`password=[^\s&]{3,}`),
		Replacement: "password=[REDACTED]",
	},
}

// SafeLogString redacts known secret patterns from a string before logging.
//
// Description:
//
//	Provider error bodies sometimes echo request headers back. Every
//	response fragment that can reach a log line or an error message goes
//	through here first. Each match is replaced with a labeled placeholder
//	(e.g., [REDACTED:openai_key]) so the log reader knows what class of
//	secret was present without seeing the value.
//
// Inputs:
//   - s: The string to redact. May contain zero or more secrets.
//     Empty string is valid and returns empty string.
//
// Outputs:
//   - string: The input with all matched secret patterns replaced.
//     If no patterns match, returns the original string unchanged.
//
// Limitations:
//   - Pattern-based detection only. Cannot detect secrets that do not
//     match known formats.
//   - A secret that spans multiple lines will not be matched.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.Pattern.ReplaceAllString(s, p.Replacement)
	}
	return s
}
