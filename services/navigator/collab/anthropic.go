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
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1/messages"

	// defaultMaxTokens bounds a response when the caller does not.
	defaultMaxTokens = 1024
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    []systemBlock      `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`

	Temperature *float32 `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient implements ChatClient against the Anthropic Messages API
// using raw net/http.
//
// Thread Safety: AnthropicClient is safe for concurrent use.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     *APIKey
	model      string
	baseURL    string
}

// NewAnthropicClient creates a client with a sealed key.
//
// Inputs:
//   - apiKey: The sealed credential. Must not be nil.
//   - model: The model name (e.g., "claude-sonnet-4-20250514").
//   - timeout: Per-request HTTP timeout.
//
// Outputs:
//   - *AnthropicClient: The configured client.
func NewAnthropicClient(apiKey *APIKey, model string, timeout time.Duration) *AnthropicClient {
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    anthropicDefaultBaseURL,
	}
}

// NewAnthropicClientWithConfig creates a client with explicit configuration.
//
// Description:
//
//	Takes a plaintext key and base URL directly. Useful for testing with
//	mock servers or when configuration comes from a source other than the
//	environment.
//
// Inputs:
//   - apiKey: The Anthropic API key.
//   - model: The model name.
//   - baseURL: The base URL for API requests.
//
// Outputs:
//   - *AnthropicClient: The configured client.
//   - error: Non-nil if the key is empty.
func NewAnthropicClientWithConfig(apiKey, model, baseURL string) (*AnthropicClient, error) {
	sealed, err := NewAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	return &AnthropicClient{
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
//	Converts messages to Anthropic wire format, sends one Messages API
//	request, and returns the concatenated text blocks. A "system" role
//	message becomes the top-level system prompt. Long system prompts get
//	an ephemeral cache_control marker.
//
// Thread Safety: This method is safe for concurrent use.
func (a *AnthropicClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	ctx, span := otel.Tracer(modelTracerName).Start(ctx, "collab.AnthropicClient.Chat",
		trace.WithAttributes(
			attribute.String("provider", "anthropic"),
			attribute.String("model", a.model),
			attribute.Int("message_count", len(messages)),
		),
	)
	defer span.End()

	startTime := time.Now()
	result, err := a.chat(ctx, messages, opts)
	recordModelMetrics("anthropic", time.Since(startTime), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return result, nil
}

func (a *AnthropicClient) chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	var apiMessages []anthropicMessage
	var systemPrompt string

	for _, msg := range messages {
		if strings.ToLower(msg.Role) == "system" {
			systemPrompt = msg.Content
			continue
		}
		apiMessages = append(apiMessages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	var systemBlocks []systemBlock
	if systemPrompt != "" {
		block := systemBlock{
			Type: "text",
			Text: systemPrompt,
		}
		if len(systemPrompt) > 1024 {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		systemBlocks = append(systemBlocks, block)
	}

	reqPayload := anthropicRequest{
		Model:     a.model,
		Messages:  apiMessages,
		System:    systemBlocks,
		MaxTokens: defaultMaxTokens,
	}
	if opts.Temperature >= 0 {
		temp := float32(opts.Temperature)
		reqPayload.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		reqPayload.MaxTokens = opts.MaxTokens
	}

	reqBodyBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("anthropic: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return "", fmt.Errorf("anthropic: creating HTTP request: %w", err)
	}

	req.Header.Set("x-api-key", a.apiKey.Value())
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	slog.Debug("Sending REST request to Anthropic", "model", a.model)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return "", fmt.Errorf("anthropic: reading response body (status %d): %w", resp.StatusCode, readErr)
	}

	slog.Debug("Anthropic response received",
		slog.Int("status", resp.StatusCode),
		slog.Int("body_length", len(bodyBytes)),
		slog.String("model", a.model),
	)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("anthropic: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}

	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("anthropic: received empty content")
	}

	finalText := ""
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			finalText += block.Text
		}
	}

	if finalText == "" {
		return "", fmt.Errorf("anthropic: received content but no text block found")
	}

	return finalText, nil
}
