package tracewire

import (
	"fmt"
	"strconv"
	"strings"
)

// TextMapCarrier is a plain string-to-string mapping, such as an HTTP
// header collection. Inject is additive: unrelated entries are never
// removed or overwritten. Reads are order-independent and key lookups
// are case-insensitive.
type TextMapCarrier map[string]string

const (
	// textMapFieldContext is the single identity entry written by the
	// text-map codec.
	textMapFieldContext = "trace-context"

	// textMapBaggagePrefix namespaces baggage entries so they cannot
	// collide with unrelated carrier keys.
	textMapBaggagePrefix = "trace-baggage-"

	textMapSampledTrue  = "1"
	textMapSampledFalse = "0"
)

// textMapCodec encodes a SpanContext as delimited strings. The
// identity entry is "traceid:spanid:parentid:sampled" with ids in
// zero-padded hex and a zero parentid standing for "no parent".
type textMapCodec struct{}

func (textMapCodec) inject(sc SpanContext, carrier TextMapCarrier) {
	sampled := textMapSampledFalse
	if sc.Sampled {
		sampled = textMapSampledTrue
	}
	carrier[textMapFieldContext] = fmt.Sprintf("%016x:%016x:%016x:%s",
		sc.TraceID, sc.SpanID, sc.ParentID, sampled)
	for k, v := range sc.Baggage {
		carrier[textMapBaggagePrefix+k] = v
	}
}

// extract returns nil when the carrier holds no usable identity entry;
// the caller falls back to starting a new root span. Baggage is
// recovered by stripping the namespace prefix; non-namespaced keys are
// ignored.
func (textMapCodec) extract(carrier TextMapCarrier) *SpanContext {
	var (
		sc      SpanContext
		found   bool
		baggage map[string]string
	)
	for k, v := range carrier {
		key := strings.ToLower(k)
		switch {
		case key == textMapFieldContext:
			parsed, ok := parseTraceContext(v)
			if !ok {
				return nil
			}
			sc = parsed
			found = true
		case strings.HasPrefix(key, textMapBaggagePrefix):
			if baggage == nil {
				baggage = make(map[string]string)
			}
			baggage[strings.TrimPrefix(key, textMapBaggagePrefix)] = v
		}
	}
	if !found {
		return nil
	}
	sc.Baggage = baggage
	return &sc
}

func parseTraceContext(value string) (SpanContext, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return SpanContext{}, false
	}
	traceID, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return SpanContext{}, false
	}
	spanID, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return SpanContext{}, false
	}
	parentID, err := strconv.ParseUint(parts[2], 16, 64)
	if err != nil {
		return SpanContext{}, false
	}
	var sampled bool
	switch parts[3] {
	case textMapSampledTrue:
		sampled = true
	case textMapSampledFalse:
		sampled = false
	default:
		return SpanContext{}, false
	}
	// Valid ids are never zero.
	if traceID == 0 || spanID == 0 {
		return SpanContext{}, false
	}
	return SpanContext{
		TraceID:  traceID,
		SpanID:   spanID,
		ParentID: parentID,
		Sampled:  sampled,
	}, true
}
