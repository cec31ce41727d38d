package tracewire

import (
	"regexp"
	"strings"
)

// SpanContext is the portable identity of a span plus its baggage:
// everything needed to continue a trace on the far side of a process
// boundary. A ParentID of zero means the span has no parent; valid ids
// are never zero.
//
// SpanContext values are passed and stored by value. Treat the Baggage
// map as immutable; use WithBaggageItem to derive an updated context.
type SpanContext struct {
	TraceID  uint64            `json:"trace_id"`
	SpanID   uint64            `json:"span_id"`
	ParentID uint64            `json:"parent_id,omitempty"`
	Sampled  bool              `json:"sampled"`
	Baggage  map[string]string `json:"baggage,omitempty"`
}

// Baggage keys are lowercased before matching.
var baggageKeyPattern = regexp.MustCompile(`^[a-z0-9][-a-z0-9]*$`)

func validBaggageKey(key string) bool {
	return baggageKeyPattern.MatchString(key)
}

// newRootContext builds the identity of a new trace. The sampling
// verdict is decided here, once, and inherited by every descendant.
func newRootContext(traceID, spanID uint64, sampled bool) SpanContext {
	return SpanContext{
		TraceID: traceID,
		SpanID:  spanID,
		Sampled: sampled,
	}
}

// newChildContext derives a child identity: same trace, fresh span id,
// parent's span id as ParentID, sampling verdict copied verbatim, and
// baggage deep-copied so parent and child never share a map.
func newChildContext(parent SpanContext, spanID uint64) SpanContext {
	return SpanContext{
		TraceID:  parent.TraceID,
		SpanID:   spanID,
		ParentID: parent.SpanID,
		Sampled:  parent.Sampled,
		Baggage:  copyBaggage(parent.Baggage),
	}
}

func copyBaggage(baggage map[string]string) map[string]string {
	if len(baggage) == 0 {
		return nil
	}
	out := make(map[string]string, len(baggage))
	for k, v := range baggage {
		out[k] = v
	}
	return out
}

// WithBaggageItem returns a new SpanContext carrying the given pair.
// Copy-on-write: the receiver and any previously derived contexts are
// unaffected. The key must already be a valid, lowercased baggage key;
// ActiveSpan.SetBaggageItem is the validating entry point.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	baggage := make(map[string]string, len(c.Baggage)+1)
	for k, v := range c.Baggage {
		baggage[k] = v
	}
	baggage[key] = value
	c.Baggage = baggage
	return c
}

// BaggageItem looks up a baggage value case-insensitively. Absence is
// reported through ok, never as an error.
func (c SpanContext) BaggageItem(key string) (value string, ok bool) {
	value, ok = c.Baggage[strings.ToLower(key)]
	return value, ok
}

// ForeachBaggageItem calls handler for each baggage pair until it
// returns false.
func (c SpanContext) ForeachBaggageItem(handler func(key, value string) bool) {
	for k, v := range c.Baggage {
		if !handler(k, v) {
			break
		}
	}
}
