package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/parleychat/parley/internal/event"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second

	// readIdleTimeout must exceed the ping interval so a healthy but
	// quiet connection is never torn down between pings.
	pingInterval    = 30 * time.Second
	readIdleTimeout = 90 * time.Second

	reconnectMaxElapsed = 2 * time.Minute
)

// WS is the gorilla/websocket Transport implementation.
//
// Reconnection is automatic: when the read loop fails, the transport
// redials with exponential backoff and publishes StateReconnecting, then
// StateConnected once a new connection is live. The consumer is expected
// to request a stream resume on that transition; the transport itself
// replays nothing.
type WS struct {
	url    string
	header http.Header
	logger *slog.Logger

	// resumeLimit throttles resume requests so a flapping connection
	// cannot hammer the backend's replay endpoint.
	resumeLimit *rate.Limiter

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex

	events chan event.ServerEvent
	states chan State

	ctx    context.Context
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// WSOption configures a WS transport.
type WSOption func(*WS)

// WithAuthToken attaches a bearer token to the connection handshake.
func WithAuthToken(token string) WSOption {
	return func(w *WS) {
		if token != "" {
			w.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithResumeLimit overrides the resume request throttle.
func WithResumeLimit(l *rate.Limiter) WSOption {
	return func(w *WS) { w.resumeLimit = l }
}

// NewWS creates a WebSocket transport for url.
func NewWS(url string, logger *slog.Logger, opts ...WSOption) *WS {
	if logger == nil {
		logger = slog.Default()
	}
	w := &WS{
		url:         url,
		header:      http.Header{},
		logger:      logger,
		resumeLimit: rate.NewLimiter(rate.Every(2*time.Second), 1),
		events:      make(chan event.ServerEvent, 64),
		states:      make(chan State, 8),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WS) Events() <-chan event.ServerEvent { return w.events }
func (w *WS) States() <-chan State             { return w.states }

// Connect dials the backend, retrying with exponential backoff until the
// handshake succeeds or ctx is done, then starts the read loop.
func (w *WS) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.ctx == nil {
		w.ctx, w.cancel = context.WithCancel(context.Background())
	}
	w.mu.Unlock()

	w.publishState(StateConnecting)
	conn, err := w.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", w.url, err)
	}
	w.replaceConn(conn)
	w.publishState(StateConnected)

	w.done.Add(2)
	go w.readLoop()
	go w.pingLoop(conn)
	return nil
}

func (w *WS) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	var conn *websocket.Conn
	op := func() error {
		c, _, err := dialer.DialContext(ctx, w.url, w.header)
		if err != nil {
			w.logger.Debug("dial failed", "url", w.url, "error", err)
			return err
		}
		conn = c
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = reconnectMaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	})
	return conn, nil
}

// Send encodes and writes one command. Resume requests are throttled;
// a throttled resume is dropped silently because a fresh one will be
// issued on the next reconnect anyway.
func (w *WS) Send(cmd event.Command) error {
	if _, ok := cmd.(event.ResumeStream); ok {
		if !w.resumeLimit.Allow() {
			w.logger.Debug("resume request throttled")
			return nil
		}
	}

	w.mu.Lock()
	conn := w.conn
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	data, err := event.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// Close tears down the connection and closes the event and state
// channels once the loops have drained.
func (w *WS) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		w.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		_ = conn.Close()
	}

	w.done.Wait()
	close(w.events)
	close(w.states)
	return nil
}

// readLoop reads and decodes frames until the connection fails, then
// hands off to reconnect. It exits only when the transport is closed.
func (w *WS) readLoop() {
	defer w.done.Done()

	for {
		conn := w.currentConn()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if w.isClosed() {
				return
			}
			w.logger.Warn("read failed, reconnecting", "error", err)
			if !w.reconnect() {
				return
			}
			continue
		}

		ev, err := event.Decode(data)
		if err != nil {
			// Unknown or malformed frames are skipped so one bad frame
			// cannot stall the stream.
			w.logger.Debug("frame dropped", "error", err)
			continue
		}
		select {
		case w.events <- ev:
		case <-w.ctx.Done():
			return
		}
	}
}

// reconnect redials after a read failure. Returns false when the
// transport shut down instead.
func (w *WS) reconnect() bool {
	w.publishState(StateReconnecting)

	conn, err := w.dial(w.ctx)
	if err != nil {
		if !w.isClosed() {
			w.logger.Error("reconnect exhausted", "error", err)
			w.publishState(StateClosed)
		}
		return false
	}

	w.replaceConn(conn)
	w.publishState(StateConnected)

	w.done.Add(1)
	go w.pingLoop(conn)
	return true
}

// pingLoop keeps one connection alive. It exits when that connection is
// replaced or the transport closes; each new connection gets its own
// loop.
func (w *WS) pingLoop(conn *websocket.Conn) {
	defer w.done.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if w.currentConn() != conn {
				return
			}
			w.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *WS) currentConn() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

func (w *WS) replaceConn(conn *websocket.Conn) {
	w.mu.Lock()
	prev := w.conn
	w.conn = conn
	w.mu.Unlock()
	if prev != nil && prev != conn {
		_ = prev.Close()
	}
}

func (w *WS) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// publishState drops transitions the consumer has not drained rather
// than blocking the read loop.
func (w *WS) publishState(s State) {
	if w.isClosed() && s != StateClosed {
		return
	}
	select {
	case w.states <- s:
	default:
	}
}
