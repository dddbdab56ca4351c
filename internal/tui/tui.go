package tui

import (
	"context"
	"fmt"
	"log/slog"

	tea "charm.land/bubbletea/v2"

	"github.com/parleychat/parley/internal/stream"
	"github.com/parleychat/parley/internal/transport"
)

// SetConversation selects the conversation to display, used when
// restoring the previous session on startup.
func (m *Model) SetConversation(id string) {
	m.conversationID = id
	m.ctrl.SetActiveConversation(id)
	m.rebuildViewportContent()
}

// Run starts the event pumps and the Bubble Tea program, blocking until
// the user quits or ctx is done.
//
// Two pumps run outside the program: transport events feed the
// controller directly (the state machine must advance even while the UI
// is busy rendering), and connection state transitions trigger resume
// requests after reconnects.
func Run(ctx context.Context, m *Model, tr transport.Transport, ctrl *stream.Controller, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	go func() {
		for ev := range tr.Events() {
			ctrl.Handle(ev)
		}
	}()

	go func() {
		connected := false
		for s := range tr.States() {
			switch s {
			case transport.StateConnected:
				if connected {
					// Reconnect: ask the backend to replay whatever was
					// buffered during the gap.
					if err := ctrl.RequestResume(""); err != nil {
						logger.Warn("resume request failed", "error", err)
					}
				}
				connected = true
			case transport.StateClosed:
				logger.Warn("connection lost for good")
			}
		}
	}()

	p := tea.NewProgram(m, tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
