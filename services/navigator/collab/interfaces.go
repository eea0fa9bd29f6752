// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collab holds the model collaborators: the intent classifier that
// tags incoming messages and the rewriter that turns selected resources into
// a warm reply. Both run behind narrow interfaces so the pipeline can swap
// providers or inject mocks.
//
// The rewriter interface accepts Resource values, not catalog records. A
// catalog entry that was not selected has no path into a prompt.
//
// Thread Safety:
//
//	All interfaces in this package must be implemented as safe for
//	concurrent use.
package collab

import "context"

// Message is one turn of conversation context sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tags is the classifier's reading of one message.
//
// Description:
//
//	NeedTags are short lowercase topic tokens ("grief", "mentorship").
//	Urgency is one of "low", "medium", "high". NeedsClarification signals
//	that the message is too vague to act on, and Question carries the
//	model's suggested follow-up when it does.
type Tags struct {
	NeedTags           []string `json:"need_tags"`
	Urgency            string   `json:"urgency"`
	NeedsClarification bool     `json:"needs_clarification"`
	Question           string   `json:"question,omitempty"`
}

// Resource is the only view of a catalog record the rewriter receives.
type Resource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	HowToStart  string `json:"how_to_start,omitempty"`
}

// ChatOptions holds provider-agnostic options for one chat request.
type ChatOptions struct {
	// Temperature controls randomness. Zero is an explicit "most
	// deterministic" setting. Negative values omit the field and use
	// the provider's default.
	Temperature float64

	// MaxTokens limits the response length. Zero uses the client default.
	MaxTokens int
}

// ChatClient is the minimal chat surface both collaborators run on.
//
// Description:
//
//	One system-plus-turns request, one text response. No tools, no
//	streaming. A message with role "system" becomes the provider's
//	system prompt.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// IntentClassifier extracts need tags and urgency from a message.
type IntentClassifier interface {
	// ClassifyIntent tags the latest message given recent history.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - message: The latest user message.
	//   - history: Prior turns, oldest first. May be empty.
	//
	// Outputs:
	//   - Tags: Normalized tags. Urgency is always low, medium, or high.
	//   - error: A *ClassifierError on transport or parse failure.
	ClassifyIntent(ctx context.Context, message string, history []Message) (Tags, error)
}

// Rewriter composes the final reply from selected resources.
type Rewriter interface {
	// Rewrite writes a short supportive reply that presents exactly the
	// given resources.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - message: The latest user message.
	//   - history: Prior turns, oldest first. May be empty.
	//   - resources: The selected resources, best match first. Never empty.
	//
	// Outputs:
	//   - string: The reply text.
	//   - error: A *RewriterError on failure.
	Rewrite(ctx context.Context, message string, history []Message, resources []Resource) (string, error)
}
