// Package transport maintains the WebSocket connection to the backend:
// dialing, keepalive, reconnection with exponential backoff, and the
// decode of wire frames into events. It owns no conversation state; it
// hands decoded events to the consumer in arrival order.
package transport

import (
	"context"
	"errors"

	"github.com/parleychat/parley/internal/event"
)

// State describes the connection lifecycle, published on the state
// channel whenever it changes.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// ErrClosed is returned by operations on a transport after Close.
var ErrClosed = errors.New("transport: closed")

// ErrNotConnected is returned by Send before a connection is established.
var ErrNotConnected = errors.New("transport: not connected")

// Transport is the connection to the backend. Events and States are
// closed when the transport shuts down.
type Transport interface {
	// Connect dials the backend and starts the read loop. It blocks until
	// the first connection succeeds or ctx is done.
	Connect(ctx context.Context) error

	// Events delivers decoded server events in arrival order.
	Events() <-chan event.ServerEvent

	// States delivers connection state transitions.
	States() <-chan State

	// Send encodes and writes one command.
	Send(cmd event.Command) error

	Close() error
}
