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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// maxChatHistoryTurns caps the conversation context sent with each turn.
// Matches the server's default history limit; the server truncates anyway.
const maxChatHistoryTurns = 12

// Flag values for the chat command.
var chatGender string

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat console",
		Long: "Opens an interactive console against a running navigator server.\n" +
			"Conversation history is kept for the session and sent with each turn so\n" +
			"the classifier sees context. This is an operator/developer tool, not the\n" +
			"product surface.\n\n" +
			"Without a terminal (piped input), lines are read from stdin and replies\n" +
			"are printed unstyled, one turn per line.",
		Args: cobra.NoArgs,
		Run:  runChatCommand,
	}
	cmd.Flags().StringVar(&chatGender, "gender", "", "declared gender, forwarded as client context")
	return cmd
}

func runChatCommand(_ *cobra.Command, _ []string) {
	baseURL := getNavigatorBaseURL()

	if !isatty.IsTerminal(os.Stdout.Fd()) || !isatty.IsTerminal(os.Stdin.Fd()) {
		runChatPlain(baseURL)
		return
	}

	model := newChatModel(baseURL, chatGender)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat console failed: %v\n", err)
		os.Exit(1)
	}
}

// runChatPlain is the non-TTY loop: one line in, one rendered turn out.
func runChatPlain(baseURL string) {
	scanner := bufio.NewScanner(os.Stdin)
	var history []wireTurn

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" || message == "q" {
			fmt.Println("Goodbye.")
			break
		}

		resp, err := sendChatTurn(baseURL, chatTurnRequest{
			Message:       message,
			History:       history,
			ClientContext: clientContext{Gender: chatGender},
		})
		if err != nil {
			fatalTurnError(baseURL, err)
		}
		fmt.Print(renderReply(resp, false))
		fmt.Println()

		history = appendChatHistory(history, message, resp.Message)
	}
}

// appendChatHistory records one completed turn, keeping at most
// maxChatHistoryTurns entries.
func appendChatHistory(history []wireTurn, userMsg, assistantMsg string) []wireTurn {
	history = append(history,
		wireTurn{Role: "user", Content: userMsg},
		wireTurn{Role: "assistant", Content: assistantMsg},
	)
	if len(history) > maxChatHistoryTurns {
		history = history[len(history)-maxChatHistoryTurns:]
	}
	return history
}

// =============================================================================
// Bubbletea console
// =============================================================================

var (
	chatHeaderStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	chatUserStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"})
	chatDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"})
	chatErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"})
)

// chatReplyMsg carries one completed server turn back into the update loop.
type chatReplyMsg struct {
	userMsg string
	resp    *chatTurnResponse
	err     error
}

// chatModel is the interactive console state. One in-flight turn at a time;
// input is disabled while waiting so history stays ordered.
type chatModel struct {
	baseURL string
	gender  string

	input textinput.Model
	spin  spinner.Model

	history    []wireTurn // context sent to the server
	transcript []string   // rendered lines shown on screen

	waiting bool
	err     error

	width  int
	height int
}

func newChatModel(baseURL, gender string) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message (esc to quit)..."
	ti.Prompt = chatUserStyle.Render("you> ")
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = chatDimStyle

	return &chatModel{
		baseURL: baseURL,
		gender:  gender,
		input:   ti,
		spin:    sp,
	}
}

func (m *chatModel) Init() tea.Cmd {
	return textinput.Blink
}

// sendTurnCmd posts one turn off the update loop. The history slice is copied
// into the closure so a later append cannot race the request.
func (m *chatModel) sendTurnCmd(message string) tea.Cmd {
	baseURL := m.baseURL
	gender := m.gender
	history := make([]wireTurn, len(m.history))
	copy(history, m.history)

	return func() tea.Msg {
		resp, err := sendChatTurn(baseURL, chatTurnRequest{
			Message:       message,
			History:       history,
			ClientContext: clientContext{Gender: gender},
		})
		return chatReplyMsg{userMsg: message, resp: resp, err: err}
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.waiting {
				return m, nil
			}
			message := strings.TrimSpace(m.input.Value())
			if message == "" {
				return m, nil
			}
			m.err = nil
			m.waiting = true
			m.input.SetValue("")
			m.transcript = append(m.transcript, chatUserStyle.Render("you> ")+message, "")
			return m, tea.Batch(m.sendTurnCmd(message), m.spin.Tick)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case chatReplyMsg:
		m.waiting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		for _, line := range strings.Split(strings.TrimRight(renderReply(msg.resp, true), "\n"), "\n") {
			m.transcript = append(m.transcript, line)
		}
		m.transcript = append(m.transcript, "")
		m.history = appendChatHistory(m.history, msg.userMsg, msg.resp.Message)
		return m, nil

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	return m, nil
}

func (m *chatModel) View() string {
	if m.width == 0 {
		return chatHeaderStyle.Render("  navigator chat")
	}

	header := chatHeaderStyle.Render("navigator chat") +
		chatDimStyle.Render("  "+m.baseURL)

	// Transcript fills the space between header and the input/status lines,
	// newest lines winning when it overflows.
	bodyHeight := m.height - 4
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	lines := m.transcript
	if len(lines) > bodyHeight {
		lines = lines[len(lines)-bodyHeight:]
	}
	body := strings.Join(lines, "\n")
	for i := len(lines); i < bodyHeight; i++ {
		body += "\n"
	}

	status := chatDimStyle.Render("enter send · esc quit")
	if m.waiting {
		status = m.spin.View() + " " + chatDimStyle.Render("thinking...")
	}
	if m.err != nil {
		status = chatErrStyle.Render("error: " + m.err.Error())
	}

	return header + "\n" + body + "\n" + m.input.View() + "\n" + status
}
