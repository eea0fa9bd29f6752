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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1/chat/completions"

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	Temperature         *float32        `json:"temperature,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// OpenAIClient implements ChatClient against the OpenAI Chat Completions
// API using raw net/http.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     *APIKey
	model      string
	baseURL    string
}

// NewOpenAIClient creates a client with a sealed key.
//
// Inputs:
//   - apiKey: The sealed credential. Must not be nil.
//   - model: The model name (e.g., "gpt-4o-mini").
//   - timeout: Per-request HTTP timeout.
//
// Outputs:
//   - *OpenAIClient: The configured client.
func NewOpenAIClient(apiKey *APIKey, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    openaiDefaultBaseURL,
	}
}

// NewOpenAIClientWithConfig creates a client with explicit configuration.
//
// Description:
//
//	Takes a plaintext key and base URL directly. Useful for testing with
//	mock servers.
//
// Inputs:
//   - apiKey: The OpenAI API key.
//   - model: The model name (e.g., "gpt-4o").
//   - baseURL: The base URL for API requests.
//
// Outputs:
//   - *OpenAIClient: The configured client.
//   - error: Non-nil if the key is empty.
func NewOpenAIClientWithConfig(apiKey, model, baseURL string) (*OpenAIClient, error) {
	sealed, err := NewAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     sealed,
		model:      model,
		baseURL:    baseURL,
	}, nil
}

// Chat implements the ChatClient interface.
//
// Description:
//
//	Converts messages to OpenAI format and sends one chat completion
//	request. System, user, and assistant roles pass through unchanged;
//	anything else maps to user.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	ctx, span := otel.Tracer(modelTracerName).Start(ctx, "collab.OpenAIClient.Chat",
		trace.WithAttributes(
			attribute.String("provider", "openai"),
			attribute.String("model", o.model),
			attribute.Int("message_count", len(messages)),
		),
	)
	defer span.End()

	startTime := time.Now()
	result, err := o.chat(ctx, messages, opts)
	recordModelMetrics("openai", time.Since(startTime), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return result, nil
}

func (o *OpenAIClient) chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	oaiMessages := make([]openaiMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case "system", "user", "assistant":
			// valid roles, keep as-is
		default:
			slog.Warn("OpenAI: unknown message role, mapping to user",
				slog.String("unknown_role", role),
				slog.String("model", o.model),
			)
			role = "user"
		}
		oaiMessages = append(oaiMessages, openaiMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	reqPayload := openaiRequest{
		Model:    o.model,
		Messages: oaiMessages,
	}
	if opts.Temperature >= 0 {
		temp := float32(opts.Temperature)
		reqPayload.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		reqPayload.MaxCompletionTokens = &opts.MaxTokens
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("openai: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("openai: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey.Value())

	slog.Debug("Sending request to OpenAI", slog.String("model", o.model))

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("openai: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("openai: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("openai: returned no choices")
	}

	slog.Debug("Received OpenAI chat response",
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("response_len", len(apiResp.Choices[0].Message.Content)),
	)

	return apiResp.Choices[0].Message.Content, nil
}
