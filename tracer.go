package tracewire

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Config is the explicit configuration a Tracer is built from. There
// is no process-wide default tracer; call sites hold a *Tracer.
type Config struct {
	// Sampler decides retention for new traces. Defaults to sampling
	// everything.
	Sampler Sampler

	// Recorder receives finished, sampled span snapshots. Defaults to
	// a recorder that discards them.
	Recorder Recorder

	// Clock provides timestamps. Defaults to the real clock; inject a
	// fake for deterministic tests.
	Clock clockz.Clock

	// Logger is the out-of-band diagnostic channel for recorder
	// failures. Defaults to a nop logger. Never used on hot paths.
	Logger *zap.Logger
}

// Tracer orchestrates span creation, sampling, codec dispatch, and the
// handoff of finished spans to the Recorder.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	sampler      Sampler
	recorder     Recorder
	clock        clockz.Clock
	logger       *zap.Logger
	workers      *workerPool
	traceIDPool  *IDPool
	spanIDPool   *IDPool
	idPoolOnce   sync.Once
	droppedSpans atomic.Uint64
}

// New creates a tracer from an explicit configuration. Zero-value
// fields get safe defaults.
func New(cfg Config) *Tracer {
	t := &Tracer{
		sampler:  cfg.Sampler,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	if t.sampler == nil {
		t.sampler = NewRateSampler(1)
	}
	if t.recorder == nil {
		t.recorder = discardRecorder{}
	}
	if t.clock == nil {
		t.clock = clockz.RealClock
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// ensureIDPools initializes id pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for contention balance.
		poolSize := runtime.NumCPU() * 100
		t.traceIDPool = NewIDPool(poolSize, t.newID)
		t.spanIDPool = NewIDPool(poolSize, t.newID)
	})
}

// newID generates a nonzero random 64-bit id.
func (t *Tracer) newID() uint64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// Fallback to a clock-derived id if crypto/rand fails.
			// The low bit keeps it nonzero.
			return uint64(t.clock.Now().UnixNano()) | 1
		}
		if id := binary.BigEndian.Uint64(buf[:]); id != 0 {
			return id
		}
	}
}

// SpanOption configures StartSpan.
type SpanOption func(*spanOptions)

// spanOptions carries the resolved options. parentSpan and parentCtx
// form a tagged union: at most one is set, and startSpan matches on
// them exhaustively.
type spanOptions struct {
	parentSpan *ActiveSpan
	parentCtx  *SpanContext
	startTime  time.Time
	tags       map[string]any
}

// ChildOf parents the new span on a live span.
func ChildOf(parent *ActiveSpan) SpanOption {
	return func(o *spanOptions) {
		o.parentSpan = parent
		o.parentCtx = nil
	}
}

// ChildOfContext parents the new span on a propagated SpanContext,
// typically one recovered by Extract.
func ChildOfContext(parent SpanContext) SpanOption {
	return func(o *spanOptions) {
		o.parentCtx = &parent
		o.parentSpan = nil
	}
}

// WithStartTime overrides the clock-provided start time.
func WithStartTime(ts time.Time) SpanOption {
	return func(o *spanOptions) {
		o.startTime = ts
	}
}

// WithTags sets initial tags. Values must be strings, booleans, or
// numbers; anything else fails StartSpan with ErrUnsupportedTagValue.
func WithTags(tags map[string]any) SpanOption {
	return func(o *spanOptions) {
		o.tags = tags
	}
}

func validTagValue(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// StartSpan creates a new span in the Open state. Without a parent
// option it starts a new trace: fresh trace id, and the sampler is
// consulted exactly once. With ChildOf or ChildOfContext the new span
// joins the parent's trace and inherits its sampling verdict.
func (t *Tracer) StartSpan(operation string, opts ...SpanOption) (*ActiveSpan, error) {
	if operation == "" {
		return nil, ErrEmptyOperation
	}
	var o spanOptions
	for _, opt := range opts {
		opt(&o)
	}

	for k, v := range o.tags {
		if !validTagValue(v) {
			return nil, fmt.Errorf("%w: tag %q has type %T", ErrUnsupportedTagValue, k, v)
		}
	}

	t.ensureIDPools()

	var sc SpanContext
	switch {
	case o.parentSpan != nil:
		sc = newChildContext(o.parentSpan.span.Context, t.spanIDPool.Get())
	case o.parentCtx != nil:
		sc = newChildContext(*o.parentCtx, t.spanIDPool.Get())
	default:
		traceID := t.traceIDPool.Get()
		sc = newRootContext(traceID, t.spanIDPool.Get(), t.sampler.IsSampled(traceID))
	}

	start := o.startTime
	if start.IsZero() {
		start = t.clock.Now()
	}

	span := &Span{
		Operation: operation,
		StartTime: start,
		Context:   sc,
	}
	if len(o.tags) > 0 {
		span.Tags = make(map[string]any, len(o.tags))
		for k, v := range o.tags {
			span.Tags[k] = v
		}
	}
	return &ActiveSpan{span: span, tracer: t}, nil
}

// StartSpanFromContext starts a span parented on the span embedded in
// ctx, if any, and returns a context carrying the new span.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operation string, opts ...SpanOption) (context.Context, *ActiveSpan, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if parent := SpanFromContext(ctx); parent != nil {
		opts = append(opts, ChildOf(parent))
	}
	span, err := t.StartSpan(operation, opts...)
	if err != nil {
		return ctx, nil, err
	}
	return ContextWithSpan(ctx, span), span, nil
}

// Inject writes the span's context into the carrier using the codec
// selected by format.
func (t *Tracer) Inject(span *ActiveSpan, format Format, carrier any) error {
	if span == nil {
		return errors.New("tracewire: nil span")
	}
	return t.InjectContext(span.Context(), format, carrier)
}

// InjectContext writes a SpanContext into the carrier using the codec
// selected by format.
func (t *Tracer) InjectContext(sc SpanContext, format Format, carrier any) error {
	switch format {
	case FormatTextMap:
		m, ok := asTextMapCarrier(carrier)
		if !ok {
			return fmt.Errorf("%w: text-map format needs a TextMapCarrier, got %T", ErrInvalidCarrier, carrier)
		}
		textMapCodec{}.inject(sc, m)
		return nil
	case FormatBinary:
		b, ok := carrier.(*BinaryCarrier)
		if !ok || b == nil {
			return fmt.Errorf("%w: binary format needs a *BinaryCarrier, got %T", ErrInvalidCarrier, carrier)
		}
		binaryCodec{}.inject(sc, b)
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// Extract reads a propagated context from the carrier and starts a
// span continuing that trace. A text-map carrier with no usable
// context yields a fresh root span rather than an error, so a service
// tolerates missing or corrupt inbound trace data gracefully. A
// malformed binary carrier fails with ErrMalformedCarrier; the caller
// is expected to start a new root span instead.
func (t *Tracer) Extract(operation string, format Format, carrier any) (*ActiveSpan, error) {
	switch format {
	case FormatTextMap:
		m, ok := asTextMapCarrier(carrier)
		if !ok {
			return nil, fmt.Errorf("%w: text-map format needs a TextMapCarrier, got %T", ErrInvalidCarrier, carrier)
		}
		sc := textMapCodec{}.extract(m)
		if sc == nil {
			return t.StartSpan(operation)
		}
		return t.StartSpan(operation, ChildOfContext(*sc))
	case FormatBinary:
		b, ok := carrier.(*BinaryCarrier)
		if !ok || b == nil {
			return nil, fmt.Errorf("%w: binary format needs a *BinaryCarrier, got %T", ErrInvalidCarrier, carrier)
		}
		sc, err := binaryCodec{}.extract(b)
		if err != nil {
			return nil, err
		}
		return t.StartSpan(operation, ChildOfContext(sc))
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

func asTextMapCarrier(carrier any) (TextMapCarrier, bool) {
	switch c := carrier.(type) {
	case TextMapCarrier:
		return c, c != nil
	case map[string]string:
		return c, c != nil
	}
	return nil, false
}

// record forwards a finished span to the recorder iff it is sampled.
// Unsampled spans keep their local lifecycle; the snapshot is dropped
// before the recorder. The handoff never blocks and recorder panics
// are confined to the diagnostic logger.
func (t *Tracer) record(span *Span) {
	if !span.Context.Sampled {
		return
	}
	snapshot := span.snapshot()
	if t.workers != nil {
		t.workers.submit(func() {
			t.safeRecord(snapshot)
		})
		return
	}
	go t.safeRecord(snapshot)
}

func (t *Tracer) safeRecord(span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("recorder panic",
				zap.Uint64("trace_id", span.Context.TraceID),
				zap.Uint64("span_id", span.Context.SpanID),
				zap.String("operation", span.Operation),
				zap.Any("panic", r),
			)
		}
	}()
	t.recorder.RecordSpan(span)
}

// EnableWorkerPool creates a bounded worker pool for recorder
// handoffs. Without it, each sampled span is recorded on its own
// goroutine; with it, spans beyond the queue are dropped and counted.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedSpans,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedSpans returns the number of spans dropped due to a full
// worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
func (t *Tracer) Close() {
	if t.workers != nil {
		t.workers.shutdown()
		t.workers = nil
	}
	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}

// workerPool manages a fixed number of workers for recorder handoffs.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
