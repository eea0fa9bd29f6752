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
	"errors"
	"fmt"
	"strings"
)

// rewriterSystemPrompt binds the model to the provided resources.
const rewriterSystemPrompt = `You write replies for a support service that connects teens with resources.

Rules:
- Warm, encouraging, plain language. At most two short paragraphs before
  the resources.
- Present only the resources provided in the request. Never invent
  resources, phone numbers, or links.
- For each resource give its name, one line on why it fits, its link, and
  how to get started when that is provided.
- No diagnoses, no medical or legal advice, no promises about outcomes.`

// ModelRewriter implements Rewriter on any ChatClient.
//
// Thread Safety: ModelRewriter is safe for concurrent use.
type ModelRewriter struct {
	client ChatClient
}

// NewModelRewriter creates a rewriter on the given client.
func NewModelRewriter(client ChatClient) *ModelRewriter {
	return &ModelRewriter{client: client}
}

// Rewrite implements the Rewriter interface.
//
// Description:
//
//	Renders the selected resources as a JSON block inside the user turn
//	so the model's only knowledge of the catalog is what it was handed.
//	A moderate temperature keeps the tone natural without drifting from
//	the resource list.
//
// Thread Safety: This method is safe for concurrent use.
func (m *ModelRewriter) Rewrite(ctx context.Context, message string, history []Message, resources []Resource) (string, error) {
	if len(resources) == 0 {
		return "", &RewriterError{Err: errors.New("no resources to present")}
	}

	resJSON, err := json.MarshalIndent(resources, "", "  ")
	if err != nil {
		return "", &RewriterError{Err: fmt.Errorf("marshaling resources: %w", err)}
	}

	var b strings.Builder
	b.WriteString("Message:\n")
	b.WriteString(message)
	b.WriteString("\n\nResources to present (the only ones you may mention):\n")
	b.Write(resJSON)

	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: "system", Content: rewriterSystemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: "user", Content: b.String()})

	reply, err := m.client.Chat(ctx, msgs, ChatOptions{Temperature: 0.6, MaxTokens: 700})
	if err != nil {
		return "", &RewriterError{Err: err}
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &RewriterError{Err: errors.New("empty reply")}
	}
	return reply, nil
}
