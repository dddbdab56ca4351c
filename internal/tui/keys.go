package tui

import (
	"context"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/parleychat/parley/internal/stream"
)

// Slash command constants.
const (
	cmdHelp   = "/help"
	cmdNew    = "/new"
	cmdAttach = "/attach"
	cmdSkip   = "/skip"
	cmdExit   = "/exit"
	cmdQuit   = "/quit"
)

// keyMap holds key bindings for help bar display.
type keyMap struct {
	Submit      key.Binding
	NewLine     key.Binding
	Stop        key.Binding
	Retry       key.Binding
	PrevVersion key.Binding
	NextVersion key.Binding
	Cancel      key.Binding
	Quit        key.Binding
	ScrollUp    key.Binding
	ScrollDown  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		NewLine:     key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("s+enter", "newline")),
		Stop:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		Retry:       key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "retry")),
		PrevVersion: key.NewBinding(key.WithKeys("alt+left"), key.WithHelp("alt+←", "prev version")),
		NextVersion: key.NewBinding(key.WithKeys("alt+right"), key.WithHelp("alt+→", "next version")),
		Cancel:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "clear/quit")),
		Quit:        key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		ScrollUp:    key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown:  key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
	}
}

//nolint:gocyclo // keyboard handler branches over all key combinations
func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return m.handleCtrlC()
		case 'd':
			return m, tea.Quit
		case 'r':
			return m.handleRetry()
		}
	}

	if k.Mod&tea.ModAlt != 0 {
		switch k.Code {
		case tea.KeyLeft:
			return m.navigateVersion(-1)
		case tea.KeyRight:
			return m.navigateVersion(1)
		}
	}

	switch k.Code {
	case tea.KeyEnter:
		// Enter submits; Shift+Enter falls through to the textarea as a
		// newline.
		if k.Mod&tea.ModShift == 0 {
			return m.handleSubmit()
		}

	case tea.KeyEscape:
		if m.state == StateStreaming {
			m.ctrl.Stop(m.conversationID)
			return m, nil
		}

	case tea.KeyPgUp:
		m.viewport.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.PageDown()
		return m, nil
	}

	// Typing is always allowed, including during streaming, so the next
	// message can be prepared while the model responds.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()

	// Double Ctrl+C within a second quits.
	if now.Sub(m.lastCtrlC) < time.Second {
		return m, tea.Quit
	}
	m.lastCtrlC = now

	if m.state == StateStreaming {
		m.ctrl.Stop(m.conversationID)
		return m, nil
	}
	m.input.Reset()
	return m, nil
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		return m.handleSlashCommand(text)
	}

	if m.state == StatePrompt {
		return m.answerPromptQuestion(text)
	}

	return m.sendMessage(text)
}

func (m *Model) sendMessage(text string) (tea.Model, tea.Cmd) {
	params := stream.SendParams{
		ConversationID:     m.conversationID,
		Text:               text,
		ModelID:            m.cfg.ModelID,
		SystemInstructions: m.cfg.SystemInstructions,
		DisableTools:       m.cfg.DisableTools,
		CustomConfig:       customConfig(m.cfg),
	}

	if len(m.pendingFiles) > 0 && m.resolver != nil {
		atts, err := m.resolver.Resolve(context.Background(), m.pendingFiles)
		if err != nil {
			m.addNotice(err.Error(), true)
			m.rebuildViewportContent()
			return m, nil
		}
		params.Attachments = atts
		m.pendingFiles = nil
	}

	convID, err := m.ctrl.Send(params)
	if err != nil {
		// Validation failures keep the input so it can be corrected.
		m.addNotice(err.Error(), true)
		m.rebuildViewportContent()
		return m, nil
	}

	m.conversationID = convID
	m.input.Reset()
	m.state = StateStreaming
	m.rebuildViewportContent()
	m.viewport.GotoBottom()
	return m, m.spinner.Tick
}

func (m *Model) handleRetry() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		return m, nil
	}
	target, ok := m.lastVisibleAssistant()
	if !ok {
		return m, nil
	}

	err := m.ctrl.Retry(stream.RetryParams{
		ConversationID:     m.conversationID,
		MessageID:          target.ID,
		ModelID:            m.cfg.ModelID,
		SystemInstructions: m.cfg.SystemInstructions,
		CustomConfig:       customConfig(m.cfg),
	})
	if err != nil {
		m.addNotice(err.Error(), true)
		m.rebuildViewportContent()
		return m, nil
	}

	m.state = StateStreaming
	m.rebuildViewportContent()
	m.viewport.GotoBottom()
	return m, m.spinner.Tick
}

func (m *Model) navigateVersion(delta int) (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		return m, nil
	}
	target, ok := m.lastVisibleAssistant()
	if !ok || target.VersionGroupID == "" {
		return m, nil
	}

	if _, err := m.ctrl.NavigateVersion(m.conversationID, target.ID, delta); err != nil {
		m.addNotice(err.Error(), true)
	}
	m.rebuildViewportContent()
	return m, nil
}

func (m *Model) handleSlashCommand(cmd string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(cmd)

	switch fields[0] {
	case cmdHelp:
		m.addNotice("Commands: /help, /new, /attach <path>, /skip, /exit\n"+
			"Shortcuts: Enter send, Shift+Enter newline, Esc stop, Ctrl+R retry,\n"+
			"Alt+←/→ versions, PgUp/PgDn scroll, Ctrl+D exit", false)

	case cmdNew:
		m.conversationID = ""
		m.notices = nil
		m.addNotice("Started a new conversation.", false)

	case cmdAttach:
		if len(fields) < 2 {
			m.addNotice("Usage: /attach <path>", true)
			break
		}
		m.pendingFiles = append(m.pendingFiles, fields[1])
		m.addNotice("Attached for next message: "+fields[1], false)

	case cmdSkip:
		if m.activePrompt == nil {
			m.addNotice("No question to skip.", true)
			break
		}
		if !m.activePrompt.AllowSkip {
			m.addNotice("This question cannot be skipped.", true)
			break
		}
		if err := m.ctrl.AnswerPrompt(m.conversationID, m.activePrompt.PromptID, nil, true); err != nil {
			m.addNotice(err.Error(), true)
			break
		}
		m.clearPrompt()

	case cmdExit, cmdQuit:
		return m, tea.Quit

	default:
		m.addNotice("Unknown command: "+fields[0], true)
	}

	m.input.Reset()
	m.rebuildViewportContent()
	return m, nil
}
