package tui

import (
	tea "charm.land/bubbletea/v2"

	"github.com/parleychat/parley/internal/event"
	"github.com/parleychat/parley/internal/stream"
)

// noteBufferSize is sized for ~1.5s of change notifications at the
// aggregator's commit rate. Best-effort delivery: a dropped changed-note
// is harmless because the next one triggers the same snapshot re-read.
const noteBufferSize = 100

// note is a discriminated union of controller callbacks. Using a single
// channel with a union type keeps the Bubble Tea listen command to one
// blocking receive.
type note struct {
	// Exactly one of these groups is meaningful per note.
	changed bool
	ready   bool
	warning string
	err     string
	prompt  *event.InteractivePrompt

	promptID   string
	promptErrs map[string]string

	conversationID string
}

// noteMsg carries one note into the Bubble Tea update loop.
type noteMsg struct {
	note note
}

// NewNotes creates the channel bridging controller hooks to the UI.
func NewNotes() chan note {
	return make(chan note, noteBufferSize)
}

// Hooks bridges controller callbacks into the note channel. Controller
// hooks fire from transport and timer goroutines; the channel hands them
// to the single-threaded update loop.
func Hooks(ch chan<- note) stream.Hooks {
	push := func(n note) {
		select {
		case ch <- n:
		default: // best-effort: never block the event loop on a slow UI
		}
	}
	return stream.Hooks{
		Changed: func(convID string) { push(note{changed: true, conversationID: convID}) },
		Ready:   func(convID string) { push(note{ready: true, conversationID: convID}) },
		Warning: func(convID, msg string) { push(note{warning: msg, conversationID: convID}) },
		Error:   func(convID, msg string) { push(note{err: msg, conversationID: convID}) },
		Prompt: func(convID string, p event.InteractivePrompt) {
			push(note{prompt: &p, conversationID: convID})
		},
		PromptError: func(convID, promptID string, errs map[string]string) {
			push(note{promptID: promptID, promptErrs: errs, conversationID: convID})
		},
	}
}

// listenNotes waits for the next controller note.
func listenNotes(ch <-chan note) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noteMsg{note: n}
	}
}
