package tracewire

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test-collector", 100)
	defer collector.Close()

	if collector.Name() != "test-collector" {
		t.Errorf("Expected name test-collector, got %q", collector.Name())
	}
	if collector.Count() != 0 {
		t.Errorf("Expected 0 spans initially, got %d", collector.Count())
	}
	if collector.DroppedCount() != 0 {
		t.Errorf("Expected 0 dropped spans initially, got %d", collector.DroppedCount())
	}
}

func TestCollectorRecordAndExport(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true) // Deterministic buffering.
	defer collector.Close()

	span := Span{
		Operation: "test-operation",
		Context:   SpanContext{TraceID: 1, SpanID: 2, Sampled: true},
	}
	collector.RecordSpan(span)

	if collector.Count() != 1 {
		t.Errorf("Expected 1 span, got %d", collector.Count())
	}

	spans := collector.Export()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 exported span, got %d", len(spans))
	}
	if spans[0].Operation != "test-operation" {
		t.Errorf("Expected operation test-operation, got %q", spans[0].Operation)
	}
	if spans[0].Context.TraceID != 1 {
		t.Errorf("Expected trace id 1, got %d", spans[0].Context.TraceID)
	}

	// After export, the collector is empty.
	if collector.Count() != 0 {
		t.Errorf("Expected 0 spans after export, got %d", collector.Count())
	}
	if again := collector.Export(); again != nil {
		t.Errorf("Expected nil export when empty, got %d spans", len(again))
	}
}

func TestCollectorCopiesSpans(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	span := Span{
		Operation: "op",
		Tags:      map[string]any{"a": int64(1)},
		Context:   SpanContext{TraceID: 1, SpanID: 2},
	}
	collector.RecordSpan(span)

	exported := collector.Export()
	exported[0].Tags["b"] = int64(2)

	if _, ok := span.Tags["b"]; ok {
		t.Error("Exported span shares its tag map with the caller's span")
	}
}

func TestCollectorBackpressureConservation(t *testing.T) {
	collector := NewCollector("test", 2)
	defer collector.Close()

	const total = 50
	for i := 0; i < total; i++ {
		collector.RecordSpan(Span{
			Operation: "op",
			Context:   SpanContext{TraceID: 1, SpanID: uint64(i + 1)},
		})
	}

	// Every span is either buffered or counted as dropped.
	waitFor(t, func() bool {
		return collector.Count()+int(collector.DroppedCount()) == total
	})
}

func TestCollectorDropsWhenClosed(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	collector.Close()

	collector.RecordSpan(Span{Operation: "op"})

	if collector.DroppedCount() != 1 {
		t.Errorf("Expected 1 dropped span after close, got %d", collector.DroppedCount())
	}
	if collector.Count() != 0 {
		t.Errorf("Expected no buffered spans after close, got %d", collector.Count())
	}
}

func TestCollectorReset(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	collector.RecordSpan(Span{Operation: "op"})
	collector.Reset()

	if collector.Count() != 0 {
		t.Errorf("Expected 0 spans after reset, got %d", collector.Count())
	}
	if collector.DroppedCount() != 0 {
		t.Errorf("Expected 0 dropped after reset, got %d", collector.DroppedCount())
	}
}

func TestCollectorAsTracerRecorder(t *testing.T) {
	collector := NewCollector("spans", 64)
	collector.SetSyncMode(true)
	defer collector.Close()

	tracer := New(Config{Recorder: collector})
	defer tracer.Close()

	span, err := tracer.StartSpan("op-a")
	if err != nil {
		t.Fatalf("StartSpan: %v", err)
	}
	if err := span.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// The tracer hands off on a goroutine; wait for arrival.
	waitFor(t, func() bool { return collector.Count() == 1 })

	spans := collector.Export()
	if spans[0].Operation != "op-a" {
		t.Errorf("Expected operation op-a, got %q", spans[0].Operation)
	}
	if spans[0].Context.SpanID != span.SpanID() {
		t.Error("Expected the recorded snapshot to carry the span's id")
	}
}

func TestLogRecorder(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	recorder := NewLogRecorder(zap.New(core))

	recorder.RecordSpan(Span{
		Operation: "op-a",
		Tags:      map[string]any{"user": "alice"},
		Logs:      []LogRecord{{Event: "step"}},
		Context:   SpanContext{TraceID: 1, SpanID: 2, ParentID: 3, Sampled: true},
	})

	if logs.Len() != 1 {
		t.Fatalf("Expected 1 log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "span finished" {
		t.Errorf("Expected message 'span finished', got %q", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["trace_id"] != uint64(1) {
		t.Errorf("Expected trace_id=1, got %v", fields["trace_id"])
	}
	if fields["span_id"] != uint64(2) {
		t.Errorf("Expected span_id=2, got %v", fields["span_id"])
	}
	if fields["parent_id"] != uint64(3) {
		t.Errorf("Expected parent_id=3, got %v", fields["parent_id"])
	}
	if fields["operation"] != "op-a" {
		t.Errorf("Expected operation op-a, got %v", fields["operation"])
	}
	if fields["tags"] != int64(1) {
		t.Errorf("Expected tags=1, got %v", fields["tags"])
	}
}

func TestLogRecorderRootSpanOmitsParent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	recorder := NewLogRecorder(zap.New(core))

	recorder.RecordSpan(Span{
		Operation: "op",
		Context:   SpanContext{TraceID: 1, SpanID: 2, Sampled: true},
	})

	fields := logs.All()[0].ContextMap()
	if _, ok := fields["parent_id"]; ok {
		t.Error("Expected no parent_id field for a root span")
	}
}

func TestLogRecorderNilLogger(t *testing.T) {
	recorder := NewLogRecorder(nil)
	// Must not panic.
	recorder.RecordSpan(Span{Operation: "op"})
}
