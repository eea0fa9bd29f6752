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
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// classifierSystemPrompt instructs the model to emit exactly one JSON object.
const classifierSystemPrompt = `You label messages sent to a teen support resource navigator.

Respond with a single JSON object and nothing else:
{"need_tags": ["..."], "urgency": "low", "needs_clarification": false, "question": ""}

- need_tags: up to five short lowercase topics the person wants help with,
  for example ["grief", "mentorship"]. Use [] when you cannot tell.
- urgency: "low", "medium", or "high". Use "high" only for acute distress.
- needs_clarification: true when the message is too vague to pick resources for.
- question: one short, friendly follow-up to ask when needs_clarification is
  true. Otherwise "".`

// classifierMaxTags caps how many need tags survive normalization.
const classifierMaxTags = 5

// ModelClassifier implements IntentClassifier on any ChatClient.
//
// Thread Safety: ModelClassifier is safe for concurrent use.
type ModelClassifier struct {
	client ChatClient
}

// NewModelClassifier creates a classifier on the given client.
func NewModelClassifier(client ChatClient) *ModelClassifier {
	return &ModelClassifier{client: client}
}

// ClassifyIntent implements the IntentClassifier interface.
//
// Description:
//
//	Sends the system prompt, recent history, and the latest message,
//	then parses the JSON object out of the response. Models sometimes
//	wrap JSON in prose or markdown fences, so extraction is tolerant of
//	surrounding text. Temperature is zero for repeatable labels.
//
// Thread Safety: This method is safe for concurrent use.
func (m *ModelClassifier) ClassifyIntent(ctx context.Context, message string, history []Message) (Tags, error) {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: "system", Content: classifierSystemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: "user", Content: message})

	raw, err := m.client.Chat(ctx, msgs, ChatOptions{Temperature: 0, MaxTokens: 400})
	if err != nil {
		return Tags{}, &ClassifierError{Err: err}
	}

	payload, err := extractJSON(raw)
	if err != nil {
		return Tags{}, &ClassifierError{Err: err}
	}

	var tags Tags
	if err := json.Unmarshal([]byte(payload), &tags); err != nil {
		return Tags{}, &ClassifierError{Err: fmt.Errorf("parsing tags JSON: %w", err)}
	}

	return normalizeTags(tags), nil
}

// extractJSON pulls the outermost JSON object out of model output.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in model output")
	}
	return s[start : end+1], nil
}

// normalizeTags trims, lowercases, dedupes, and clamps model output so the
// rest of the pipeline never sees an out-of-range urgency or a blank tag.
func normalizeTags(t Tags) Tags {
	out := Tags{
		NeedsClarification: t.NeedsClarification,
		Question:           strings.TrimSpace(t.Question),
	}

	switch strings.ToLower(strings.TrimSpace(t.Urgency)) {
	case "high":
		out.Urgency = "high"
	case "medium":
		out.Urgency = "medium"
	default:
		out.Urgency = "low"
	}

	seen := make(map[string]struct{}, len(t.NeedTags))
	for _, tag := range t.NeedTags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out.NeedTags = append(out.NeedTags, tag)
		if len(out.NeedTags) == classifierMaxTags {
			break
		}
	}

	return out
}
