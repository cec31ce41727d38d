// Package tracewire implements distributed-trace context propagation.
//
// tracewire covers the identity model of a trace (TraceID, SpanID,
// SpanContext), the once-per-trace sampling decision, and the two wire
// encodings that carry a SpanContext across process boundaries: a
// human-readable text map (e.g. HTTP headers) and a compact binary
// layout. It is a library invoked in-process by instrumentation code;
// it is not a tracing backend.
//
// Core Components:
//   - Tracer: creates spans, decides sampling, dispatches codecs.
//   - Span: serializable snapshot of a single unit of work.
//   - ActiveSpan: live wrapper for an open span.
//   - SpanContext: portable identity plus baggage.
//   - Recorder: sink for finished, sampled spans.
//
// Basic Usage:
//
//	tracer := tracewire.New(tracewire.Config{
//	    Sampler:  tracewire.NewRateSampler(0.5),
//	    Recorder: tracewire.NewCollector("spans", 1024),
//	})
//	defer tracer.Close()
//
//	span, err := tracer.StartSpan("handle-request")
//	if err != nil {
//	    return err
//	}
//	defer span.Finish()
//
//	// Cross a process boundary.
//	carrier := tracewire.TextMapCarrier{}
//	_ = tracer.Inject(span, tracewire.FormatTextMap, carrier)
//
//	// On the receiving side.
//	child, _ := tracer.Extract("handle-downstream", tracewire.FormatTextMap, carrier)
//	defer child.Finish()
//
// Thread Safety:
//
// Tracer is safe for concurrent use by multiple goroutines. An
// ActiveSpan is owned by the execution unit that started it and is NOT
// safe for concurrent mutation; SpanContext values handed to children
// or codecs are copies, so a parent and its children never share
// mutable state.
//
// Sampling:
//
// The sampler is consulted exactly once, when a root span is created.
// Descendants inherit the verdict verbatim. Unsampled spans still run
// their full local lifecycle; they are dropped before the Recorder.
package tracewire

// Format selects the wire encoding used by Inject and Extract.
type Format int

const (
	// FormatTextMap propagates through a plain string-to-string
	// mapping such as an HTTP header collection.
	FormatTextMap Format = iota

	// FormatBinary propagates through a compact fixed-layout byte
	// buffer.
	FormatBinary
)

// String returns the format token's name for diagnostics.
func (f Format) String() string {
	switch f {
	case FormatTextMap:
		return "text-map"
	case FormatBinary:
		return "binary"
	default:
		return "unknown"
	}
}
