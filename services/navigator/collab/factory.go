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
	"strings"

	"github.com/AleutianAI/navigator/services/navigator/config"
)

// NewChatClient builds a provider client for one model.
//
// Description:
//
//	Resolves the provider's credential, constructs the matching client,
//	and wraps it with a rate limiter when the config asks for one. Both
//	collaborator roles go through here so they share the same provider
//	and limit policy while running different models.
//
// Inputs:
//   - llmCfg: Validated LLM configuration.
//   - model: The model identifier for this client.
//
// Outputs:
//   - ChatClient: The configured client.
//   - error: Non-nil for an unsupported provider or a missing credential.
func NewChatClient(llmCfg config.LLMConfig, model string) (ChatClient, error) {
	var client ChatClient

	switch llmCfg.Provider {
	case config.ProviderAnthropic:
		key, err := LoadAPIKey(config.ProviderAnthropic)
		if err != nil {
			return nil, fmt.Errorf("collab: creating anthropic client: %w", err)
		}
		client = NewAnthropicClient(key, model, llmCfg.Timeout.AsDuration())

	case config.ProviderOpenAI:
		key, err := LoadAPIKey(config.ProviderOpenAI)
		if err != nil {
			return nil, fmt.Errorf("collab: creating openai client: %w", err)
		}
		client = NewOpenAIClient(key, model, llmCfg.Timeout.AsDuration())

	default:
		return nil, fmt.Errorf("collab: unsupported provider %q (valid: %s)",
			llmCfg.Provider, strings.Join(config.ValidProviders, ", "))
	}

	if llmCfg.RatePerMinute > 0 {
		client = NewLimitedClient(client, llmCfg.RatePerMinute)
	}
	return client, nil
}

// Collaborators bundles the two model roles the pipeline needs.
type Collaborators struct {
	Classifier IntentClassifier
	Rewriter   Rewriter
}

// NewCollaborators wires a classifier and a rewriter from service config.
//
// Description:
//
//	The classifier runs on every message, so it gets its own (typically
//	cheaper) model. Each role gets its own client and therefore its own
//	rate limit bucket.
//
// Inputs:
//   - llmCfg: Validated LLM configuration.
//
// Outputs:
//   - *Collaborators: Ready-to-use classifier and rewriter.
//   - error: Non-nil if either client cannot be built.
func NewCollaborators(llmCfg config.LLMConfig) (*Collaborators, error) {
	classifierClient, err := NewChatClient(llmCfg, llmCfg.ClassifierModel)
	if err != nil {
		return nil, err
	}
	rewriterClient, err := NewChatClient(llmCfg, llmCfg.Model)
	if err != nil {
		return nil, err
	}

	slog.Info("Model collaborators ready",
		"provider", llmCfg.Provider,
		"rewriter_model", llmCfg.Model,
		"classifier_model", llmCfg.ClassifierModel,
	)

	return &Collaborators{
		Classifier: NewModelClassifier(classifierClient),
		Rewriter:   NewModelRewriter(rewriterClient),
	}, nil
}
