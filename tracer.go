// Package tracepipe is a distributed-tracing client: it assembles spans
// into traces, propagates trace context between goroutines and across
// process boundaries, and ships finished traces to a collection agent
// from a background writer that never blocks instrumented code.
//
// Most programs start the package-level tracer once at boot:
//
//	if err := tracepipe.Start(tracepipe.WithServiceName("checkout")); err != nil {
//		log.Fatal(err)
//	}
//	defer tracepipe.Stop()
//
// and then create spans wherever work happens:
//
//	span, ctx := tracepipe.StartSpanFromContext(ctx, "db.query",
//		tracepipe.ResourceName("SELECT FROM users"))
//	defer span.Finish()
package tracepipe

import (
	"context"
	"sync"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/tracepipe/tracepipe/logging"
	"github.com/tracepipe/tracepipe/propagation"
	"github.com/tracepipe/tracepipe/ratelimit"
	"github.com/tracepipe/tracepipe/trace"
	"github.com/tracepipe/tracepipe/writer"
)

// Tracer ties the core components together: the context provider, the
// sampler and its rate limiter, and the background writer. One Tracer
// per process is the expected shape, held behind the package-level
// functions, but nothing stops tests from running several.
type Tracer struct {
	cfg        Config
	runtimeID  string
	provider   trace.Provider
	writer     *writer.TraceWriter
	transport  writer.Transport
	sampler    Sampler
	limiter    *ratelimit.Limiter
	propagator propagation.HTTPPropagator
	baseLogger *logrus.Logger
	log        *logging.RateLimited
	statsd     *statsd.Client
	stopOnce   sync.Once
}

// New constructs and starts a Tracer. The returned tracer is live: its
// writer goroutine is running and spans it starts will be shipped.
func New(opts ...Option) (*Tracer, error) {
	t := &Tracer{cfg: defaultConfig()}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	flushInterval, err := t.cfg.flushInterval()
	if err != nil {
		return nil, err
	}
	logInterval, err := t.cfg.logRateInterval()
	if err != nil {
		return nil, err
	}

	if t.baseLogger == nil {
		t.baseLogger = logrus.New()
	}
	if t.cfg.Debug {
		t.baseLogger.SetLevel(logrus.DebugLevel)
	}
	t.log = logging.New(t.baseLogger, logInterval)

	id, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "generating runtime id")
	}
	t.runtimeID = id.String()

	if t.statsd == nil && t.cfg.StatsAddress != "" {
		t.statsd, err = statsd.New(t.cfg.StatsAddress)
		if err != nil {
			return nil, errors.Wrap(err, "connecting statsd client")
		}
	}

	if t.provider == nil {
		t.provider = trace.NewGlobalProvider()
	}
	if t.sampler == nil {
		t.sampler = NewRateSampler(t.cfg.SampleRate)
	}
	t.limiter = ratelimit.New(t.cfg.TraceRateLimit)

	if t.transport == nil {
		t.transport = writer.NewHTTPTransport(t.cfg.AgentAddress, t.runtimeID, nil)
	}
	t.writer = writer.New(writer.Config{
		Transport:     t.transport,
		FlushInterval: flushInterval,
		MaxQueued:     t.cfg.MaxQueuedTraces,
		BatchSize:     t.cfg.BatchSize,
		Log:           t.log,
		Statsd:        t.statsd,
	})
	return t, nil
}

// StartSpan starts a span. With no ChildOf option, the parent is the
// provider's active context when one has been activated; otherwise the
// span roots a new trace, and the sampling decision for the whole trace
// is made here.
func (t *Tracer) StartSpan(name string, opts ...SpanOption) *trace.Span {
	cfg := trace.StartSpanConfig{
		Service: t.cfg.ServiceName,
		Sink:    t.writer,
		Logger:  t.log,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Parent == nil && t.provider.HasActive() {
		cfg.Parent = t.provider.Active()
	}

	span := trace.StartSpan(name, cfg)

	if span.ParentID == 0 {
		if _, decided := span.Context().SamplingPriority(); !decided {
			if t.sampler.Sample(span.TraceID) && t.limiter.Allowed() {
				span.SetSamplingPriority(1)
			} else {
				span.SetSamplingPriority(0)
			}
		}
	}
	return span
}

// StartSpanFromContext starts a span whose parent is the span carried
// by ctx, if any, and returns a derived context carrying the new span.
func (t *Tracer) StartSpanFromContext(ctx context.Context, name string, opts ...SpanOption) (*trace.Span, context.Context) {
	if parent, ok := trace.SpanFromContext(ctx); ok {
		opts = append([]SpanOption{ChildOf(parent.Context())}, opts...)
	}
	span := t.StartSpan(name, opts...)
	if ctx == nil {
		ctx = context.Background()
	}
	return span, trace.ContextWithSpan(ctx, span)
}

// Inject writes a span context into a carrier for propagation to
// another process.
func (t *Tracer) Inject(ctx *trace.SpanContext, carrier propagation.TextMapWriter) error {
	return t.propagator.Inject(ctx, carrier)
}

// Extract reads a span context from an inbound carrier. Starting a span
// as ChildOf the result continues the remote trace locally.
func (t *Tracer) Extract(carrier propagation.TextMapReader) (*trace.SpanContext, error) {
	return t.propagator.Extract(carrier)
}

// Provider returns the tracer's fallback context provider.
func (t *Tracer) Provider() trace.Provider {
	return t.provider
}

// RuntimeID identifies this tracer instance to the agent.
func (t *Tracer) RuntimeID() string {
	return t.runtimeID
}

// Stats returns the writer's throughput and data-loss counters.
func (t *Tracer) Stats() writer.Stats {
	return t.writer.Stats()
}

// Flush ships everything buffered so far and waits for delivery to be
// attempted. Useful before process exit in short-lived commands.
func (t *Tracer) Flush() {
	t.writer.Flush()
}

// Stop drains and stops the background writer and resets the provider.
// Safe to call more than once and from any goroutine.
func (t *Tracer) Stop() {
	t.stopOnce.Do(func() {
		t.writer.Stop()
		t.provider.Reset()
	})
}

var (
	defaultMu     sync.RWMutex
	defaultTracer *Tracer
)

// Start installs the package-level tracer. Calling Start again replaces
// the previous tracer after stopping it.
func Start(opts ...Option) error {
	t, err := New(opts...)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	prev := defaultTracer
	defaultTracer = t
	defaultMu.Unlock()
	if prev != nil {
		prev.Stop()
	}
	return nil
}

// Stop stops the package-level tracer, flushing what it can.
func Stop() {
	defaultMu.Lock()
	t := defaultTracer
	defaultTracer = nil
	defaultMu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// StartSpan starts a span on the package-level tracer. Before Start (or
// after Stop) the span is still usable but is never shipped anywhere,
// so instrumentation does not have to care whether tracing is on.
func StartSpan(name string, opts ...SpanOption) *trace.Span {
	defaultMu.RLock()
	t := defaultTracer
	defaultMu.RUnlock()
	if t == nil {
		cfg := trace.StartSpanConfig{}
		for _, opt := range opts {
			opt(&cfg)
		}
		return trace.StartSpan(name, cfg)
	}
	return t.StartSpan(name, opts...)
}

// StartSpanFromContext starts a span on the package-level tracer with
// the parent taken from ctx.
func StartSpanFromContext(ctx context.Context, name string, opts ...SpanOption) (*trace.Span, context.Context) {
	defaultMu.RLock()
	t := defaultTracer
	defaultMu.RUnlock()
	if t == nil {
		if parent, ok := trace.SpanFromContext(ctx); ok {
			opts = append([]SpanOption{ChildOf(parent.Context())}, opts...)
		}
		span := StartSpan(name, opts...)
		if ctx == nil {
			ctx = context.Background()
		}
		return span, trace.ContextWithSpan(ctx, span)
	}
	return t.StartSpanFromContext(ctx, name, opts...)
}

// Flush flushes the package-level tracer, if one is running.
func Flush() {
	defaultMu.RLock()
	t := defaultTracer
	defaultMu.RUnlock()
	if t != nil {
		t.Flush()
	}
}
