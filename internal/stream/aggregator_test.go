package stream

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// collector records flushed batches in order.
type collector struct {
	mu      sync.Mutex
	batches []string
}

func (c *collector) flush(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, text)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.batches...)
}

func (c *collector) joined() string {
	var out string
	for _, b := range c.snapshot() {
		out += b
	}
	return out
}

func TestAggregatorCoalescesBurst(t *testing.T) {
	var col collector
	agg := NewAggregator(30*time.Millisecond, col.flush)
	defer agg.Stop()

	agg.Append("Hel")
	agg.Append("lo, ")
	agg.Append("world")

	time.Sleep(150 * time.Millisecond)

	batches := col.snapshot()
	if len(batches) != 1 {
		t.Fatalf("batches = %v, want single coalesced flush", batches)
	}
	if batches[0] != "Hello, world" {
		t.Fatalf("flushed %q, want %q", batches[0], "Hello, world")
	}
}

func TestAggregatorPreservesOrderAcrossWindows(t *testing.T) {
	var col collector
	agg := NewAggregator(20*time.Millisecond, col.flush)
	defer agg.Stop()

	agg.Append("first ")
	time.Sleep(100 * time.Millisecond)
	agg.Append("second")
	time.Sleep(100 * time.Millisecond)

	if got := col.joined(); got != "first second" {
		t.Fatalf("joined = %q, want %q", got, "first second")
	}
	if n := len(col.snapshot()); n != 2 {
		t.Fatalf("got %d batches, want 2", n)
	}
}

func TestAggregatorForcedFlush(t *testing.T) {
	var col collector
	agg := NewAggregator(time.Hour, col.flush)
	defer agg.Stop()

	agg.Append("pending")
	agg.Flush()

	if got := col.joined(); got != "pending" {
		t.Fatalf("joined = %q, want %q", got, "pending")
	}

	// A later timer or repeat flush must not duplicate the content.
	agg.Flush()
	if n := len(col.snapshot()); n != 1 {
		t.Fatalf("got %d batches after duplicate flush, want 1", n)
	}
}

func TestAggregatorEmptyFlushIsNoop(t *testing.T) {
	var col collector
	agg := NewAggregator(10*time.Millisecond, col.flush)
	defer agg.Stop()

	agg.Flush()
	agg.Append("")
	time.Sleep(50 * time.Millisecond)

	if n := len(col.snapshot()); n != 0 {
		t.Fatalf("got %d batches, want none", n)
	}
}

func TestAggregatorStopDiscardsBuffer(t *testing.T) {
	var col collector
	agg := NewAggregator(10*time.Millisecond, col.flush)

	agg.Append("doomed")
	agg.Stop()
	time.Sleep(50 * time.Millisecond)

	if n := len(col.snapshot()); n != 0 {
		t.Fatalf("got %d batches after stop, want none", n)
	}

	agg.Append("late")
	agg.Flush()
	if n := len(col.snapshot()); n != 0 {
		t.Fatalf("stopped aggregator accepted appends: %v", col.snapshot())
	}
}

func TestAggregatorConcurrentAppends(t *testing.T) {
	var col collector
	agg := NewAggregator(10*time.Millisecond, col.flush)
	defer agg.Stop()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				agg.Append("x")
			}
		}()
	}
	wg.Wait()
	agg.Flush()

	if got := len(col.joined()); got != 200 {
		t.Fatalf("flushed %d bytes, want 200", got)
	}
}
