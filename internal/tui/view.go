package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/parleychat/parley/internal/convo"
)

// View implements tea.Model.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	_, _ = m.viewBuf.WriteString(m.viewport.View())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	// Input is always shown so the next message can be typed while a
	// response streams.
	_, _ = m.viewBuf.WriteString(m.styles.Prompt.Render("> "))
	_, _ = m.viewBuf.WriteString(m.input.View())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderStatusBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs the viewport from the current
// store snapshot. Called on every change notification, so whatever the
// controller committed is exactly what renders.
func (m *Model) rebuildViewportContent() {
	var b strings.Builder

	conv := m.conversation()
	if conv.Title != "" {
		_, _ = b.WriteString(m.styles.Header.Render(conv.Title))
		_, _ = b.WriteString("\n\n")
	}

	for _, msg := range conv.Messages {
		if msg.IsHidden {
			continue
		}
		m.renderMessage(&b, msg)
	}

	for _, n := range m.notices {
		if n.isErr {
			_, _ = b.WriteString(m.styles.Error.Render("Error: " + n.text))
		} else {
			_, _ = b.WriteString(m.styles.System.Render(n.text))
		}
		_, _ = b.WriteString("\n\n")
	}

	if m.activePrompt != nil && m.state == StatePrompt {
		m.renderPrompt(&b)
	}

	m.viewport.SetContent(b.String())
}

func (m *Model) renderMessage(b *strings.Builder, msg convo.Message) {
	switch msg.Role {
	case convo.RoleUser:
		_, _ = b.WriteString(m.styles.User.Render("You> "))
		_, _ = b.WriteString(msg.Content)

	case convo.RoleAssistant:
		_, _ = b.WriteString(m.styles.Assistant.Render("Parley> "))
		_, _ = b.WriteString(m.renderVersionTag(msg))

		for _, tc := range msg.ToolCalls {
			_, _ = b.WriteString("\n")
			_, _ = b.WriteString(m.renderToolCall(tc))
		}
		if len(msg.ToolCalls) > 0 {
			_, _ = b.WriteString("\n")
		}

		switch {
		case msg.IsStreaming && msg.Content == "" && msg.StatusLabel != "":
			_, _ = b.WriteString(m.spinner.View())
			_, _ = b.WriteString(" ")
			_, _ = b.WriteString(m.styles.System.Render(msg.StatusLabel + "..."))
		case msg.IsStreaming:
			// Raw text while streaming; glamour renders only finalized
			// content to avoid re-rendering on every commit.
			_, _ = b.WriteString(msg.Content)
			_, _ = b.WriteString(" ")
			_, _ = b.WriteString(m.spinner.View())
		default:
			_, _ = b.WriteString(m.markdown.Render(msg.Content))
		}

		for _, art := range msg.Artifacts {
			_, _ = b.WriteString("\n")
			_, _ = b.WriteString(m.styles.System.Render(fmt.Sprintf("[%s artifact: %s]", art.Kind, art.ID)))
		}

		if msg.Warning != "" {
			_, _ = b.WriteString("\n")
			_, _ = b.WriteString(m.styles.Error.Render("⚠ " + msg.Warning))
		}
	}
	_, _ = b.WriteString("\n\n")
}

// renderVersionTag shows "(v2/3)" for messages that belong to a version
// group.
func (m *Model) renderVersionTag(msg convo.Message) string {
	if msg.VersionGroupID == "" {
		return ""
	}
	total := 0
	for _, sibling := range m.conversation().Messages {
		if sibling.VersionGroupID == msg.VersionGroupID {
			total++
		}
	}
	return m.styles.System.Render(fmt.Sprintf("(v%d/%d) ", msg.VersionNumber, total))
}

func (m *Model) renderToolCall(tc convo.ToolCall) string {
	name := tc.DisplayName
	if name == "" {
		name = tc.Name
	}
	label := name
	if tc.Query != "" {
		label += ": " + tc.Query
	}

	switch tc.Status {
	case convo.ToolExecuting:
		return m.spinner.View() + " " + m.styles.System.Render(label+"...")
	case convo.ToolFailed:
		return m.styles.Error.Render("✗ " + label)
	default:
		return m.styles.System.Render("✓ " + label)
	}
}

// renderPrompt shows the interactive prompt with the question currently
// being asked.
func (m *Model) renderPrompt(b *strings.Builder) {
	p := m.activePrompt
	_, _ = b.WriteString(m.styles.Header.Render(p.Title))
	_, _ = b.WriteString("\n")
	if p.Description != "" {
		_, _ = b.WriteString(m.styles.System.Render(p.Description))
		_, _ = b.WriteString("\n")
	}

	for i, q := range p.Questions {
		marker := "  "
		if i == m.questionIdx {
			marker = "> "
		}
		line := marker + q.Label
		if len(q.Options) > 0 {
			line += " (" + strings.Join(q.Options, ", ") + ")"
		}
		if _, done := m.answers[q.ID]; done || i < m.questionIdx {
			line += " ✓"
		}
		_, _ = b.WriteString(m.styles.Tips.Render(line))
		_, _ = b.WriteString("\n")
	}

	if p.AllowSkip {
		_, _ = b.WriteString(m.styles.System.Render("Type an answer and press Enter, or /skip."))
	} else {
		_, _ = b.WriteString(m.styles.System.Render("Type an answer and press Enter."))
	}
	_, _ = b.WriteString("\n")
}

func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

// renderStatusBar returns state-appropriate keyboard shortcut help.
func (m *Model) renderStatusBar() string {
	var bindings []key.Binding
	switch m.state {
	case StateInput:
		bindings = []key.Binding{
			m.keys.Submit, m.keys.NewLine, m.keys.Retry,
			m.keys.PrevVersion, m.keys.NextVersion, m.keys.Quit,
		}
	case StateStreaming:
		bindings = []key.Binding{
			m.keys.Stop, m.keys.Cancel, m.keys.ScrollUp, m.keys.ScrollDown,
		}
	case StatePrompt:
		bindings = []key.Binding{m.keys.Submit, m.keys.Quit}
	}
	return m.help.ShortHelpView(bindings)
}
