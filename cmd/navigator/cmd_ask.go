// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// Flag values for the ask command.
var (
	askGender string
	askJSON   bool
)

func newAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the navigator one question",
		Long: "Sends a single message to a running navigator server and prints the reply.\n" +
			"The server address comes from NAVIGATOR_URL (default http://localhost:8090).",
		Args: cobra.MinimumNArgs(1),
		Run:  runAskCommand,
	}
	cmd.Flags().StringVar(&askGender, "gender", "", "declared gender, forwarded as client context")
	cmd.Flags().BoolVar(&askJSON, "json", false, "print the raw JSON response")
	return cmd
}

func runAskCommand(_ *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	baseURL := getNavigatorBaseURL()

	interactive := isatty.IsTerminal(os.Stdout.Fd())
	if interactive && !askJSON {
		done := make(chan bool)
		go showSpinner("Thinking", done)
		resp, err := sendChatTurn(baseURL, chatTurnRequest{
			Message:       question,
			ClientContext: clientContext{Gender: askGender},
		})
		done <- true
		fmt.Print("\r                                                \r")
		if err != nil {
			fatalTurnError(baseURL, err)
		}
		fmt.Print(renderReply(resp, true))
		return
	}

	resp, err := sendChatTurn(baseURL, chatTurnRequest{
		Message:       question,
		ClientContext: clientContext{Gender: askGender},
	})
	if err != nil {
		fatalTurnError(baseURL, err)
	}

	if askJSON {
		raw, marshalErr := json.MarshalIndent(resp, "", "  ")
		if marshalErr != nil {
			log.Fatalf("failed to encode response: %v", marshalErr)
		}
		fmt.Println(string(raw))
		return
	}
	fmt.Print(renderReply(resp, false))
}

// fatalTurnError prints the appropriate failure and exits. Server-reported
// errors carry their code; transport failures get a startup hint.
func fatalTurnError(baseURL string, err error) {
	var srvErr *serverError
	if errors.As(err, &srvErr) {
		log.Fatalf("Navigator error (%s): %s", srvErr.Code, srvErr.Message)
	}
	fmt.Fprintf(os.Stderr, "Error: navigator server unavailable at %s\n", baseURL)
	fmt.Fprintf(os.Stderr, "Start it with: navigator serve\n")
	fmt.Fprintf(os.Stderr, "Or set NAVIGATOR_URL to override the default address.\n")
	log.Fatalf("connection failed: %v", err)
}

// =============================================================================
// Wire types and transport shared by ask and chat
// =============================================================================

// chatTurnRequest is the payload for POST /v1/navigator/chat.
type chatTurnRequest struct {
	Message       string        `json:"message"`
	History       []wireTurn    `json:"history,omitempty"`
	ClientContext clientContext `json:"client_context"`
	RequestID     string        `json:"request_id,omitempty"`
}

type wireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type clientContext struct {
	Gender string `json:"gender,omitempty"`
}

// chatTurnResponse mirrors the server's ChatResponse.
type chatTurnResponse struct {
	RequestID   string         `json:"request_id"`
	Disposition string         `json:"disposition"`
	Message     string         `json:"message"`
	Question    string         `json:"question,omitempty"`
	Urgency     string         `json:"urgency,omitempty"`
	NeedTags    []string       `json:"need_tags,omitempty"`
	Resources   []wireResource `json:"resources"`
}

type wireResource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	HowToStart  string `json:"how_to_start,omitempty"`
	Score       int    `json:"score,omitempty"`
}

// serverError is a non-2xx reply from the navigator, decoded from its
// error envelope.
type serverError struct {
	Status  int
	Code    string
	Message string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("navigator returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// sendChatTurn posts one turn to the navigator and decodes the reply.
//
// Outputs:
//   - *chatTurnResponse: The decoded reply on HTTP 200.
//   - error: *serverError when the server answered with an error envelope,
//     a wrapped transport error otherwise.
func sendChatTurn(baseURL string, req chatTurnRequest) (*chatTurnResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create request body: %w", err)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(baseURL+"/v1/navigator/chat", "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to reach navigator: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read navigator response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		srvErr := &serverError{Status: resp.StatusCode, Code: "UNKNOWN", Message: strings.TrimSpace(string(body))}
		var envelope struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Code != "" {
			srvErr.Code = envelope.Code
			srvErr.Message = envelope.Error
		}
		return nil, srvErr
	}

	var turn chatTurnResponse
	if err := json.Unmarshal(body, &turn); err != nil {
		return nil, fmt.Errorf("failed to parse navigator response: %w", err)
	}
	return &turn, nil
}

// =============================================================================
// Rendering
// =============================================================================

var (
	dispositionStyles = map[string]lipgloss.Style{
		"SAFETY":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"}),
		"CLARIFY":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#B7791F", Dark: "#F6C177"}),
		"NO_MATCH":  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}),
		"RECOMMEND": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}),
	}

	resourceTitleStyle = lipgloss.NewStyle().Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	resourceURLStyle = lipgloss.NewStyle().Italic(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"})
)

// renderReply formats one turn for the terminal. Styled output uses lipgloss;
// plain output is stable for pipes and tests.
func renderReply(resp *chatTurnResponse, styled bool) string {
	var b strings.Builder

	header := resp.Disposition
	if styled {
		if style, ok := dispositionStyles[resp.Disposition]; ok {
			header = style.Render(resp.Disposition)
		}
	}
	fmt.Fprintf(&b, "[%s]", header)
	if resp.Urgency != "" {
		fmt.Fprintf(&b, " urgency: %s", resp.Urgency)
	}
	b.WriteString("\n\n")

	if resp.Message != "" {
		b.WriteString(resp.Message)
		b.WriteString("\n")
	}

	if len(resp.Resources) > 0 {
		b.WriteString("\nResources:\n")
		for i, r := range resp.Resources {
			title, url := r.Title, r.URL
			if styled {
				title = resourceTitleStyle.Render(title)
				url = resourceURLStyle.Render(url)
			}
			fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, title, url)
			if r.Description != "" {
				fmt.Fprintf(&b, "   %s\n", r.Description)
			}
			if r.HowToStart != "" {
				fmt.Fprintf(&b, "   How to start: %s\n", r.HowToStart)
			}
		}
	}

	return b.String()
}

// showSpinner displays a small progress animation until done receives.
func showSpinner(msg string, done chan bool) {
	chars := []string{"▖", "▘", "▝", "▗"}
	i := 0

	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h")

	for {
		select {
		case <-done:
			return
		default:
			fmt.Printf("\r%s  %s... \033[K", chars[i%len(chars)], msg)
			i++
			time.Sleep(100 * time.Millisecond)
		}
	}
}
