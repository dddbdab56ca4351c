package stream

import (
	"strings"
	"sync"
	"time"
)

// DefaultFlushInterval bounds content commits to roughly 20 per second.
// Upstream delivers content in small increments, sometimes character by
// character; committing each one to the store independently would be
// correct but wasteful.
const DefaultFlushInterval = 50 * time.Millisecond

// FlushFunc applies accumulated text to the target message in one store
// mutation. It may be invoked from the timer goroutine.
type FlushFunc func(text string)

// Aggregator buffers partial-content increments and flushes them on a
// debounce window: every Append re-arms the timer, so bursts coalesce and
// trailing content is never stranded longer than one window.
//
// The buffer is strictly append-only and flushed in arrival order, so the
// committed content is always the exact concatenation of appended chunks.
// Flush is callable synchronously (stream end, resume) and cancels any
// armed timer, so a stale timer can never fire an empty duplicate flush
// after the message has moved on.
type Aggregator struct {
	mu       sync.Mutex
	buf      strings.Builder
	timer    *time.Timer
	interval time.Duration
	flush    FlushFunc
	stopped  bool
}

// NewAggregator creates an Aggregator flushing through fn.
// A non-positive interval falls back to DefaultFlushInterval.
func NewAggregator(interval time.Duration, fn FlushFunc) *Aggregator {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Aggregator{
		interval: interval,
		flush:    fn,
	}
}

// Append concatenates text to the buffer and (re)arms the flush timer.
// Appending to a stopped aggregator is a no-op.
func (a *Aggregator) Append(text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	a.buf.WriteString(text)

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.interval, a.Flush)
}

// Flush synchronously takes the buffer, cancels any pending timer, and
// applies the accumulated text in one commit. An empty buffer flushes
// nothing. Holding the lock through the flush callback serializes commits
// so a timer firing concurrently with a forced flush cannot reorder
// content.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}

	if a.buf.Len() == 0 {
		return
	}
	text := a.buf.String()
	a.buf.Reset()

	a.flush(text)
}

// Stop cancels any pending timer and discards buffered content without
// flushing. The aggregator accepts no further appends. Idempotent.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.buf.Reset()
	a.stopped = true
}
