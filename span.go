package tracewire

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const bundleKey bundleKeyType = "tracewire"

// contextBundle holds both tracer and span to reduce context
// allocations.
type contextBundle struct {
	tracer *Tracer
	span   *ActiveSpan
}

// LogRecord is one timestamped event attached to a span. Records keep
// their append order.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload,omitempty"`
}

// Span is the serializable record of a single unit of work in a trace.
// Recorders receive Span values as immutable snapshots.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags       map[string]any `json:"tags,omitempty"`
	Logs       []LogRecord    `json:"logs,omitempty"`
	StartTime  time.Time      `json:"start_time"`
	FinishTime time.Time      `json:"finish_time,omitempty"`
	Duration   time.Duration  `json:"duration"`
	Operation  string         `json:"operation"`
	Context    SpanContext    `json:"context"`
}

// snapshot returns a deep copy that is safe to hand to a recorder
// while the original remains owned by the caller.
func (s *Span) snapshot() Span {
	out := *s
	if s.Tags != nil {
		out.Tags = make(map[string]any, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	if s.Logs != nil {
		out.Logs = make([]LogRecord, len(s.Logs))
		copy(out.Logs, s.Logs)
	}
	out.Context.Baggage = copyBaggage(s.Context.Baggage)
	return out
}

// ActiveSpan wraps an open Span with lifecycle management. An
// ActiveSpan is owned by the execution unit that started it and is NOT
// safe for concurrent use; mutating one span from multiple goroutines
// is a caller contract violation.
//
// A span is Open until Finish succeeds, then Finished. Every mutating
// operation on a finished span fails with ErrUseAfterFinish.
type ActiveSpan struct {
	span   *Span
	tracer *Tracer
}

func (a *ActiveSpan) finished() bool {
	return !a.span.FinishTime.IsZero()
}

// SetTag sets a string tag. Last write wins on a duplicate key.
func (a *ActiveSpan) SetTag(key, value string) error {
	return a.setTag(key, value)
}

// SetIntTag sets an integer tag.
func (a *ActiveSpan) SetIntTag(key string, value int64) error {
	return a.setTag(key, value)
}

// SetFloat64Tag sets a floating-point tag.
func (a *ActiveSpan) SetFloat64Tag(key string, value float64) error {
	return a.setTag(key, value)
}

// SetBoolTag sets a boolean tag.
func (a *ActiveSpan) SetBoolTag(key string, value bool) error {
	return a.setTag(key, value)
}

func (a *ActiveSpan) setTag(key string, value any) error {
	if a.finished() {
		return ErrUseAfterFinish
	}
	if a.span.Tags == nil {
		a.span.Tags = make(map[string]any)
	}
	a.span.Tags[key] = value
	return nil
}

// Tag retrieves a tag value by key.
func (a *ActiveSpan) Tag(key string) (any, bool) {
	if a.span.Tags == nil {
		return nil, false
	}
	value, ok := a.span.Tags[key]
	return value, ok
}

// Log appends a timestamped event with a payload.
func (a *ActiveSpan) Log(event string, payload any) error {
	if a.finished() {
		return ErrUseAfterFinish
	}
	a.span.Logs = append(a.span.Logs, LogRecord{
		Timestamp: a.tracer.clock.Now(),
		Event:     event,
		Payload:   payload,
	})
	return nil
}

// LogEvent appends a timestamped event without a payload.
func (a *ActiveSpan) LogEvent(event string) error {
	return a.Log(event, nil)
}

// SetBaggageItem stores a baggage pair on the span's context. The key
// is lowercased, then validated against [a-z0-9][-a-z0-9]*; on a
// mismatch the call fails with ErrInvalidBaggageKey and existing
// baggage is untouched. Baggage set here is inherited by children
// created afterwards; contexts copied earlier never see it.
func (a *ActiveSpan) SetBaggageItem(key, value string) error {
	if a.finished() {
		return ErrUseAfterFinish
	}
	key = strings.ToLower(key)
	if !validBaggageKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidBaggageKey, key)
	}
	a.span.Context = a.span.Context.WithBaggageItem(key, value)
	return nil
}

// BaggageItem looks up a baggage value case-insensitively.
func (a *ActiveSpan) BaggageItem(key string) (string, bool) {
	return a.span.Context.BaggageItem(key)
}

// Context returns a snapshot of the span's identity. The returned
// value owns its own baggage map.
func (a *ActiveSpan) Context() SpanContext {
	c := a.span.Context
	c.Baggage = copyBaggage(c.Baggage)
	return c
}

// TraceID returns the trace id of this span.
func (a *ActiveSpan) TraceID() uint64 {
	return a.span.Context.TraceID
}

// SpanID returns the span id of this span.
func (a *ActiveSpan) SpanID() uint64 {
	return a.span.Context.SpanID
}

// Operation returns the span's operation name.
func (a *ActiveSpan) Operation() string {
	return a.span.Operation
}

// Finish completes the span and hands it to the tracer for recording.
// The handoff is fire-and-forget: Finish never blocks on the recorder
// and recorder failures never reach the caller. A second Finish fails
// with ErrUseAfterFinish.
func (a *ActiveSpan) Finish() error {
	if a.finished() {
		return ErrUseAfterFinish
	}
	a.span.FinishTime = a.tracer.clock.Now()
	a.span.Duration = a.span.FinishTime.Sub(a.span.StartTime)
	a.tracer.record(a.span)
	return nil
}

// ContextWithSpan returns a context with the span embedded. The
// returned context can be used to start child spans.
func ContextWithSpan(ctx context.Context, span *ActiveSpan) context.Context {
	bundle := &contextBundle{tracer: span.tracer, span: span}
	return context.WithValue(ctx, bundleKey, bundle)
}

// SpanFromContext extracts the current span from a context. Returns
// nil if no span is present.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}
	return nil
}
