// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"sync"

	"github.com/parleychat/parley/internal/event"
	"github.com/parleychat/parley/internal/transport"
)

// FakeTransport is a scripted transport.Transport: tests push events with
// Emit and inspect everything sent through Commands.
type FakeTransport struct {
	mu      sync.Mutex
	cmds    []event.Command
	sendErr error
	closed  bool

	events chan event.ServerEvent
	states chan transport.State
}

var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a FakeTransport with buffered channels.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		events: make(chan event.ServerEvent, 64),
		states: make(chan transport.State, 16),
	}
}

// Connect publishes the connected state. It never fails.
func (f *FakeTransport) Connect(context.Context) error {
	f.EmitState(transport.StateConnected)
	return nil
}

func (f *FakeTransport) Events() <-chan event.ServerEvent { return f.events }
func (f *FakeTransport) States() <-chan transport.State   { return f.states }

// Send records the command, or returns the scripted error.
func (f *FakeTransport) Send(cmd event.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

// Close closes the channels. Idempotent.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.events)
	close(f.states)
	return nil
}

// Emit delivers one server event to the consumer.
func (f *FakeTransport) Emit(ev event.ServerEvent) {
	f.events <- ev
}

// EmitState delivers one connection state transition.
func (f *FakeTransport) EmitState(s transport.State) {
	f.states <- s
}

// FailSends makes every subsequent Send return err.
func (f *FakeTransport) FailSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// Commands returns a snapshot of everything sent so far.
func (f *FakeTransport) Commands() []event.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Command(nil), f.cmds...)
}
