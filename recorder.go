package tracewire

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Recorder receives finished, sampled span snapshots. Implementations
// may block or perform I/O; the tracer never waits on them, and a
// panic inside RecordSpan is confined to the tracer's diagnostic
// logger.
type Recorder interface {
	RecordSpan(span Span)
}

// discardRecorder drops every span. Default when Config.Recorder is
// nil.
type discardRecorder struct{}

func (discardRecorder) RecordSpan(Span) {}

// Collector is an in-memory Recorder that buffers spans for batch
// export. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []Span
	spansCh      chan Span
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closed       atomic.Bool
	syncMode     bool // Bypass the channel for deterministic tests.
}

// NewCollector creates a collector with the specified name and buffer
// size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:    name,
		spans:   make([]Span, 0, 8),
		spansCh: make(chan Span, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving spans from the
// channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case span := <-c.spansCh:
					c.bufferSpan(span)
				default:
					return
				}
			}
		case span := <-c.spansCh:
			c.bufferSpan(span)
		}
	}
}

// Close shuts down the collector gracefully.
func (c *Collector) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
	case <-time.After(100 * time.Millisecond):
		// Timed out waiting for the drain; carry on.
	}
}

// RecordSpan buffers a span with backpressure protection. If the
// internal channel is full the span is dropped and the drop counter
// incremented. In sync mode spans are buffered directly, which makes
// tests deterministic.
func (c *Collector) RecordSpan(span Span) {
	// The tracer already hands over a deep copy; copy again so a
	// caller-owned span is safe too.
	spanCopy := span.snapshot()

	if c.syncMode {
		if c.closed.Load() {
			c.droppedCount.Add(1)
			return
		}
		c.bufferSpan(spanCopy)
		return
	}

	select {
	case c.spansCh <- spanCopy:
	default:
		c.droppedCount.Add(1)
	}
}

func (c *Collector) bufferSpan(span Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, span)
}

// Export returns a copy of all buffered spans and clears the internal
// buffer. The returned slice is safe to modify.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := make([]Span, len(c.spans))
	for i := range c.spans {
		result[i] = c.spans[i].snapshot()
	}

	// Shrink only when the buffer is badly oversized, to avoid
	// allocation churn.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		newCap := cap(c.spans) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.spans = make([]Span, 0, newCap)
	} else {
		c.spans = c.spans[:0]
	}

	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the total number of spans dropped due to
// backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous buffering for testing.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode = sync
}

// Reset clears all buffered spans and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = c.spans[:0]
	c.droppedCount.Store(0)
}

// LogRecorder exports each finished span as one structured log entry.
type LogRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder creates a recorder that writes spans to the given
// logger.
func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{logger: logger}
}

// RecordSpan logs the span's identity, timing, and sizes.
func (r *LogRecorder) RecordSpan(span Span) {
	fields := []zap.Field{
		zap.Uint64("trace_id", span.Context.TraceID),
		zap.Uint64("span_id", span.Context.SpanID),
		zap.String("operation", span.Operation),
		zap.Duration("duration", span.Duration),
	}
	if span.Context.ParentID != 0 {
		fields = append(fields, zap.Uint64("parent_id", span.Context.ParentID))
	}
	if len(span.Tags) > 0 {
		fields = append(fields, zap.Int("tags", len(span.Tags)))
	}
	if len(span.Logs) > 0 {
		fields = append(fields, zap.Int("logs", len(span.Logs)))
	}
	r.logger.Info("span finished", fields...)
}
