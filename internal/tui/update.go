package tui

import (
	"strconv"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/event"
	"github.com/parleychat/parley/internal/prompt"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires a type switch over all message types
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4)
		m.help.SetWidth(msg.Width)
		m.markdown.UpdateWidth(msg.Width)

		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state == StateStreaming {
			m.rebuildViewportContent()
		}
		return m, cmd

	case noteMsg:
		return m.handleNote(msg.note)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleNote applies one controller notification and re-arms the
// listener.
func (m *Model) handleNote(n note) (tea.Model, tea.Cmd) {
	switch {
	case n.changed:
		if m.conversationID == "" {
			m.conversationID = n.conversationID
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()

	case n.ready:
		if m.state == StateStreaming {
			m.state = StateInput
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, tea.Batch(listenNotes(m.notes), m.input.Focus())

	case n.warning != "":
		m.addNotice(n.warning, false)
		m.rebuildViewportContent()

	case n.err != "":
		m.addNotice(n.err, true)
		m.rebuildViewportContent()

	case n.prompt != nil:
		m.activePrompt = n.prompt
		m.answers = make(map[string]string)
		m.questionIdx = 0
		m.state = StatePrompt
		m.rebuildViewportContent()
		m.viewport.GotoBottom()

	case n.promptErrs != nil:
		for id, msg := range n.promptErrs {
			m.addNotice(id+": "+msg, true)
		}
		// Restart at the first failed question.
		if m.activePrompt != nil {
			for i, q := range m.activePrompt.Questions {
				if _, bad := n.promptErrs[q.ID]; bad {
					m.questionIdx = i
					m.state = StatePrompt
					break
				}
			}
		}
		m.rebuildViewportContent()
	}

	return m, listenNotes(m.notes)
}

// answerPromptQuestion records the typed answer for the question being
// asked, advancing until all questions are collected, then validates and
// submits the full set.
func (m *Model) answerPromptQuestion(text string) (tea.Model, tea.Cmd) {
	p := m.activePrompt
	if p == nil || m.questionIdx >= len(p.Questions) {
		return m, nil
	}

	q := p.Questions[m.questionIdx]
	m.answers[q.ID] = text
	m.input.Reset()
	m.questionIdx++

	if m.questionIdx < len(p.Questions) {
		m.rebuildViewportContent()
		return m, nil
	}

	answers := make(map[string]prompt.Answer, len(m.answers))
	for id, v := range m.answers {
		answers[id] = prompt.Answer{QuestionID: id, Value: coerceAnswer(p, id, v)}
	}

	if err := m.ctrl.AnswerPrompt(m.conversationID, p.PromptID, answers, false); err != nil {
		m.addNotice(err.Error(), true)
		// Validation failed: keep the prompt open, the PromptError note
		// repositions questionIdx.
		m.rebuildViewportContent()
		return m, nil
	}

	m.clearPrompt()
	m.rebuildViewportContent()
	return m, nil
}

// coerceAnswer converts typed text into the value shape the question
// expects.
func coerceAnswer(p *event.InteractivePrompt, questionID, text string) any {
	for _, q := range p.Questions {
		if q.ID != questionID {
			continue
		}
		switch q.Type {
		case prompt.TypeNumber:
			if f, err := strconv.ParseFloat(text, 64); err == nil {
				return f
			}
		case prompt.TypeCheckbox:
			return strings.EqualFold(text, "yes") || strings.EqualFold(text, "y") || text == "true"
		case prompt.TypeMultiSelect:
			parts := strings.Split(text, ",")
			out := make([]string, 0, len(parts))
			for _, s := range parts {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
		break
	}
	return text
}

func (m *Model) clearPrompt() {
	m.activePrompt = nil
	m.answers = nil
	m.questionIdx = 0
	if m.state == StatePrompt {
		m.state = StateStreaming
	}
}

// customConfig maps the bring-your-own-key settings, or nil when unset.
func customConfig(cfg *config.Config) *event.CustomConfig {
	if cfg.CustomBaseURL == "" {
		return nil
	}
	return &event.CustomConfig{
		BaseURL: cfg.CustomBaseURL,
		APIKey:  cfg.CustomAPIKey,
		Model:   cfg.CustomModel,
	}
}
