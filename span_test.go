package tracewire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestSpanTags(t *testing.T) {
	tracer := New(Config{})
	defer tracer.Close()

	span, err := tracer.StartSpan("op")
	if err != nil {
		t.Fatalf("StartSpan: %v", err)
	}

	if err := span.SetTag("user", "alice"); err != nil {
		t.Errorf("SetTag: %v", err)
	}
	if err := span.SetIntTag("retries", 3); err != nil {
		t.Errorf("SetIntTag: %v", err)
	}
	if err := span.SetFloat64Tag("elapsed", 1.5); err != nil {
		t.Errorf("SetFloat64Tag: %v", err)
	}
	if err := span.SetBoolTag("cache-hit", true); err != nil {
		t.Errorf("SetBoolTag: %v", err)
	}

	if v, ok := span.Tag("user"); !ok || v != "alice" {
		t.Errorf("Expected user=alice, got %v (ok=%v)", v, ok)
	}
	if v, ok := span.Tag("retries"); !ok || v != int64(3) {
		t.Errorf("Expected retries=3, got %v (ok=%v)", v, ok)
	}
	if _, ok := span.Tag("missing"); ok {
		t.Error("Expected not to find missing tag")
	}

	// Last write wins on a duplicate key.
	if err := span.SetTag("user", "bob"); err != nil {
		t.Errorf("SetTag: %v", err)
	}
	if v, _ := span.Tag("user"); v != "bob" {
		t.Errorf("Expected user=bob after overwrite, got %v", v)
	}
}

func TestSpanLogs(t *testing.T) {
	clock := clockz.NewFakeClock()
	tracer := New(Config{Clock: clock})
	defer tracer.Close()

	span, err := tracer.StartSpan("op")
	if err != nil {
		t.Fatalf("StartSpan: %v", err)
	}

	if err := span.LogEvent("first"); err != nil {
		t.Errorf("LogEvent: %v", err)
	}
	clock.Advance(10 * time.Millisecond)
	if err := span.Log("second", map[string]int{"n": 1}); err != nil {
		t.Errorf("Log: %v", err)
	}

	logs := span.span.Logs
	if len(logs) != 2 {
		t.Fatalf("Expected 2 log records, got %d", len(logs))
	}
	if logs[0].Event != "first" || logs[1].Event != "second" {
		t.Errorf("Unexpected log order: %q, %q", logs[0].Event, logs[1].Event)
	}
	if got := logs[1].Timestamp.Sub(logs[0].Timestamp); got != 10*time.Millisecond {
		t.Errorf("Expected 10ms between records, got %v", got)
	}
}

func TestSpanUseAfterFinish(t *testing.T) {
	tracer := New(Config{})
	defer tracer.Close()

	span, err := tracer.StartSpan("op")
	if err != nil {
		t.Fatalf("StartSpan: %v", err)
	}
	if err := span.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	checks := map[string]error{
		"SetTag":        span.SetTag("k", "v"),
		"SetIntTag":     span.SetIntTag("k", 1),
		"SetFloat64Tag": span.SetFloat64Tag("k", 1.0),
		"SetBoolTag":    span.SetBoolTag("k", true),
		"Log":           span.Log("e", nil),
		"LogEvent":      span.LogEvent("e"),
		"SetBaggage":    span.SetBaggageItem("k", "v"),
		"Finish":        span.Finish(),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrUseAfterFinish) {
			t.Errorf("%s after Finish = %v, want ErrUseAfterFinish", name, err)
		}
	}

	// Reads stay available after Finish.
	if span.TraceID() == 0 {
		t.Error("Expected trace id to remain readable")
	}
	if _, ok := span.BaggageItem("k"); ok {
		t.Error("Rejected baggage write took effect")
	}
}

func TestSpanDurationUsesClock(t *testing.T) {
	clock := clockz.NewFakeClock()
	tracer := New(Config{Clock: clock})
	defer tracer.Close()

	span, err := tracer.StartSpan("op")
	if err != nil {
		t.Fatalf("StartSpan: %v", err)
	}
	clock.Advance(250 * time.Millisecond)
	if err := span.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if span.span.Duration != 250*time.Millisecond {
		t.Errorf("Expected 250ms duration, got %v", span.span.Duration)
	}
}

func TestSpanSnapshotIsolation(t *testing.T) {
	span := &Span{
		Operation: "op",
		Tags:      map[string]any{"a": int64(1)},
		Logs:      []LogRecord{{Event: "e"}},
		Context: SpanContext{TraceID: 1, SpanID: 2,
			Baggage: map[string]string{"k": "v"}},
	}

	snap := span.snapshot()

	span.Tags["b"] = int64(2)
	span.Logs[0].Event = "changed"
	span.Context.Baggage["k2"] = "v2"

	if _, ok := snap.Tags["b"]; ok {
		t.Error("Tag write visible in snapshot")
	}
	if snap.Logs[0].Event != "e" {
		t.Error("Log mutation visible in snapshot")
	}
	if _, ok := snap.Context.Baggage["k2"]; ok {
		t.Error("Baggage write visible in snapshot")
	}
}

func TestActiveSpanContextCopiesBaggage(t *testing.T) {
	tracer := New(Config{})
	defer tracer.Close()

	span, err := tracer.StartSpan("op")
	if err != nil {
		t.Fatalf("StartSpan: %v", err)
	}
	if err := span.SetBaggageItem("a", "1"); err != nil {
		t.Fatalf("SetBaggageItem: %v", err)
	}

	sc := span.Context()
	sc.Baggage["b"] = "2"

	if _, ok := span.BaggageItem("b"); ok {
		t.Error("Write to an exported context leaked back into the span")
	}
}

func TestContextWithSpan(t *testing.T) {
	tracer := New(Config{})
	defer tracer.Close()

	if SpanFromContext(nil) != nil {
		t.Error("Expected nil span from nil context")
	}
	if SpanFromContext(context.Background()) != nil {
		t.Error("Expected nil span from empty context")
	}

	span, err := tracer.StartSpan("op")
	if err != nil {
		t.Fatalf("StartSpan: %v", err)
	}
	ctx := ContextWithSpan(context.Background(), span)
	if got := SpanFromContext(ctx); got != span {
		t.Error("Expected to get the embedded span back")
	}
}
