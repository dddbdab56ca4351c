// Package tui provides the Bubble Tea terminal interface for Parley.
//
// The TUI is strictly an observer of the conversation store: it holds no
// message state of its own. On every change notification it re-reads a
// snapshot and rebuilds the transcript, so batching, retries, and resume
// recovery all render correctly without UI-side bookkeeping.
package tui

import (
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/parleychat/parley/internal/attach"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/convo"
	"github.com/parleychat/parley/internal/event"
	"github.com/parleychat/parley/internal/stream"
)

// State represents the TUI state machine.
type State int

// TUI state machine states.
const (
	StateInput     State = iota // awaiting user input
	StateStreaming              // a response is in flight
	StatePrompt                 // an interactive prompt awaits an answer
)

// maxNotices bounds the system/error message list.
const maxNotices = 50

// Layout constants for viewport height calculation.
const (
	separatorLines = 2
	helpLines      = 1
	promptLines    = 1
	minViewport    = 3
)

// notice is a transient system or error line shown under the transcript.
type notice struct {
	text  string
	isErr bool
}

// Model is the Bubble Tea model for the Parley terminal interface.
type Model struct {
	// Dependencies.
	ctrl     *stream.Controller
	store    *convo.Store
	resolver attach.Resolver
	cfg      *config.Config
	notes    <-chan note

	// Conversation being displayed.
	conversationID string

	// Interactive prompt in progress, if any. answered collects values
	// one question at a time; questionIdx is the question being asked.
	activePrompt *event.InteractivePrompt
	answered     map[string]struct{}
	questionIdx  int
	answers      map[string]string

	// Attachments queued via /attach for the next message.
	pendingFiles []string

	// State.
	state     State
	lastCtrlC time.Time
	notices   []notice

	// Widgets.
	input    textarea.Model
	spinner  spinner.Model
	viewport viewport.Model
	help     help.Model
	keys     keyMap
	styles   Styles
	markdown *markdownRenderer
	viewBuf  strings.Builder

	width  int
	height int
}

// New creates a Model. All dependencies are required except resolver,
// which may be nil when attachments are disabled.
func New(ctrl *stream.Controller, store *convo.Store, resolver attach.Resolver, cfg *config.Config, notes <-chan note) (*Model, error) {
	if ctrl == nil {
		return nil, errors.New("tui.New: controller is required")
	}
	if store == nil {
		return nil, errors.New("tui.New: store is required")
	}
	if cfg == nil {
		return nil, errors.New("tui.New: config is required")
	}
	if notes == nil {
		return nil, errors.New("tui.New: notes channel is required")
	}

	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.SetHeight(1)
	ta.SetWidth(120)
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{Focused: cleanStyle, Blurred: cleanStyle})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{} // keys are routed explicitly in handleKey

	return &Model{
		ctrl:     ctrl,
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		notes:    notes,
		input:    ta,
		spinner:  sp,
		viewport: vp,
		help:     help.New(),
		keys:     newKeyMap(),
		styles:   DefaultStyles(),
		markdown: newMarkdownRenderer(80),
		width:    80,
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
		listenNotes(m.notes),
	)
}

// addNotice appends a transient line and enforces the bound.
func (m *Model) addNotice(text string, isErr bool) {
	m.notices = append(m.notices, notice{text: text, isErr: isErr})
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

// conversation returns the current snapshot, or an empty conversation
// when none is selected yet.
func (m *Model) conversation() convo.Conversation {
	if m.conversationID == "" {
		return convo.Conversation{}
	}
	conv, err := m.store.Get(m.conversationID)
	if err != nil {
		return convo.Conversation{}
	}
	return conv
}

// lastVisibleAssistant returns the newest finalized, visible assistant
// message, used as the retry and version-navigation target.
func (m *Model) lastVisibleAssistant() (convo.Message, bool) {
	conv := m.conversation()
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		msg := conv.Messages[i]
		if msg.Role == convo.RoleAssistant && !msg.IsHidden && !msg.IsStreaming {
			return msg, true
		}
	}
	return convo.Message{}, false
}
