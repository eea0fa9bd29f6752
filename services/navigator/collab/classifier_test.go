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
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// chatFunc adapts a function to the ChatClient interface for tests.
type chatFunc func(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

func (f chatFunc) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	return f(ctx, messages, opts)
}

func staticChat(response string) chatFunc {
	return func(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
		return response, nil
	}
}

func TestClassifyIntent_CleanJSON(t *testing.T) {
	c := NewModelClassifier(staticChat(
		`{"need_tags":["grief","mentorship"],"urgency":"medium","needs_clarification":false,"question":""}`,
	))

	got, err := c.ClassifyIntent(context.Background(), "my dad died and I need someone to talk to", nil)
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}

	want := Tags{NeedTags: []string{"grief", "mentorship"}, Urgency: "medium"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ClassifyIntent() = %+v, want %+v", got, want)
	}
}

func TestClassifyIntent_FencedJSON(t *testing.T) {
	c := NewModelClassifier(staticChat("```json\n" +
		`{"need_tags":["grief"],"urgency":"low","needs_clarification":false,"question":""}` +
		"\n```"))

	got, err := c.ClassifyIntent(context.Background(), "message", nil)
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if len(got.NeedTags) != 1 || got.NeedTags[0] != "grief" {
		t.Errorf("NeedTags = %v, want [grief]", got.NeedTags)
	}
}

func TestClassifyIntent_ProseWrappedJSON(t *testing.T) {
	c := NewModelClassifier(staticChat(
		`Here is my analysis: {"need_tags":[],"urgency":"high","needs_clarification":true,"question":"What kind of help are you looking for?"} Hope that helps.`,
	))

	got, err := c.ClassifyIntent(context.Background(), "help", nil)
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if got.Urgency != "high" {
		t.Errorf("Urgency = %q, want %q", got.Urgency, "high")
	}
	if !got.NeedsClarification || got.Question == "" {
		t.Errorf("got %+v, want needs_clarification with a question", got)
	}
}

func TestClassifyIntent_NoJSONInOutput(t *testing.T) {
	c := NewModelClassifier(staticChat("I cannot classify this message."))

	_, err := c.ClassifyIntent(context.Background(), "message", nil)
	if err == nil {
		t.Fatal("expected error when output has no JSON object")
	}
	if !strings.Contains(err.Error(), "classifier:") {
		t.Errorf("error = %v, want classifier prefix", err)
	}
}

func TestClassifyIntent_MalformedJSON(t *testing.T) {
	c := NewModelClassifier(staticChat(`{"need_tags": [unterminated}`))

	_, err := c.ClassifyIntent(context.Background(), "message", nil)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestClassifyIntent_TransportError(t *testing.T) {
	c := NewModelClassifier(chatFunc(func(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
		return "", fmt.Errorf("anthropic: HTTP request failed")
	}))

	_, err := c.ClassifyIntent(context.Background(), "message", nil)
	if err == nil {
		t.Fatal("expected transport error to propagate")
	}
	var clsErr *ClassifierError
	if !errors.As(err, &clsErr) {
		t.Errorf("error = %T, want *ClassifierError", err)
	}
}

func TestClassifyIntent_UrgencyClamped(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"High", "high"},
		{" MEDIUM ", "medium"},
		{"low", "low"},
		{"critical", "low"},
		{"", "low"},
	}

	for _, tc := range cases {
		c := NewModelClassifier(staticChat(fmt.Sprintf(
			`{"need_tags":[],"urgency":%q,"needs_clarification":false,"question":""}`, tc.raw,
		)))
		got, err := c.ClassifyIntent(context.Background(), "message", nil)
		if err != nil {
			t.Fatalf("ClassifyIntent(%q) error = %v", tc.raw, err)
		}
		if got.Urgency != tc.want {
			t.Errorf("urgency %q clamped to %q, want %q", tc.raw, got.Urgency, tc.want)
		}
	}
}

func TestClassifyIntent_TagsNormalized(t *testing.T) {
	c := NewModelClassifier(staticChat(
		`{"need_tags":[" Grief ","grief","","MENTORSHIP","a","b","c","d"],"urgency":"low","needs_clarification":false,"question":""}`,
	))

	got, err := c.ClassifyIntent(context.Background(), "message", nil)
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}

	// Trimmed, lowercased, deduped, capped at five.
	want := []string{"grief", "mentorship", "a", "b", "c"}
	if !reflect.DeepEqual(got.NeedTags, want) {
		t.Errorf("NeedTags = %v, want %v", got.NeedTags, want)
	}
}

func TestClassifyIntent_PromptShape(t *testing.T) {
	var captured []Message
	var capturedOpts ChatOptions
	c := NewModelClassifier(chatFunc(func(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
		captured = messages
		capturedOpts = opts
		return `{"need_tags":[],"urgency":"low","needs_clarification":false,"question":""}`, nil
	}))

	history := []Message{
		{Role: "user", Content: "earlier message"},
		{Role: "assistant", Content: "earlier reply"},
	}
	if _, err := c.ClassifyIntent(context.Background(), "latest message", history); err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}

	if len(captured) != 4 {
		t.Fatalf("message count = %d, want 4 (system, 2 history, user)", len(captured))
	}
	if captured[0].Role != "system" || !strings.Contains(captured[0].Content, "JSON") {
		t.Errorf("first message = %+v, want JSON system prompt", captured[0])
	}
	if captured[1].Content != "earlier message" || captured[2].Content != "earlier reply" {
		t.Errorf("history not preserved in order: %+v", captured[1:3])
	}
	if captured[3].Role != "user" || captured[3].Content != "latest message" {
		t.Errorf("last message = %+v, want the latest user turn", captured[3])
	}
	if capturedOpts.Temperature != 0 {
		t.Errorf("temperature = %v, want 0 for repeatable labels", capturedOpts.Temperature)
	}
}
