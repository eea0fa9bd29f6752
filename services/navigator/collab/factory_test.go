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
	"time"

	"github.com/AleutianAI/navigator/services/navigator/config"
)

func testLLMConfig(provider string, perMinute int) config.LLMConfig {
	return config.LLMConfig{
		Provider:        provider,
		Model:           "model-main",
		ClassifierModel: "model-small",
		Timeout:         config.Duration(30 * time.Second),
		RatePerMinute:   perMinute,
	}
}

func TestNewChatClient_Anthropic(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	client, err := NewChatClient(testLLMConfig(config.ProviderAnthropic, 0), "model-main")
	if err != nil {
		t.Fatalf("NewChatClient() error = %v", err)
	}
	if _, ok := client.(*AnthropicClient); !ok {
		t.Errorf("client type = %T, want *AnthropicClient", client)
	}
}

func TestNewChatClient_OpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-key-value-01234567890123456789")

	client, err := NewChatClient(testLLMConfig(config.ProviderOpenAI, 0), "model-main")
	if err != nil {
		t.Fatalf("NewChatClient() error = %v", err)
	}
	if _, ok := client.(*OpenAIClient); !ok {
		t.Errorf("client type = %T, want *OpenAIClient", client)
	}
}

func TestNewChatClient_RateLimitWrapsClient(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	client, err := NewChatClient(testLLMConfig(config.ProviderAnthropic, 60), "model-main")
	if err != nil {
		t.Fatalf("NewChatClient() error = %v", err)
	}
	if _, ok := client.(*LimitedClient); !ok {
		t.Errorf("client type = %T, want *LimitedClient", client)
	}
}

func TestNewChatClient_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewChatClient(testLLMConfig(config.ProviderAnthropic, 0), "model-main")
	if err == nil {
		t.Fatal("expected error when no credential is available")
	}
	if !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("error = %v, want the environment variable named", err)
	}
}

func TestNewChatClient_UnsupportedProvider(t *testing.T) {
	_, err := NewChatClient(testLLMConfig("gemini", 0), "model-main")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "gemini") || !strings.Contains(err.Error(), "anthropic") {
		t.Errorf("error = %v, want offending and valid providers named", err)
	}
}

func TestNewCollaborators(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	collabs, err := NewCollaborators(testLLMConfig(config.ProviderAnthropic, 0))
	if err != nil {
		t.Fatalf("NewCollaborators() error = %v", err)
	}
	if collabs.Classifier == nil || collabs.Rewriter == nil {
		t.Fatal("both collaborator roles must be wired")
	}
}
