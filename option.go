package tracepipe

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/sirupsen/logrus"

	"github.com/tracepipe/tracepipe/trace"
	"github.com/tracepipe/tracepipe/writer"
)

// Option configures a Tracer at construction time.
type Option func(*Tracer) error

// WithConfig replaces the whole configuration. Options applied after it
// still take effect.
func WithConfig(c Config) Option {
	return func(t *Tracer) error {
		t.cfg = c
		return nil
	}
}

// WithServiceName sets the default service name recorded on spans.
func WithServiceName(name string) Option {
	return func(t *Tracer) error {
		t.cfg.ServiceName = name
		return nil
	}
}

// WithAgentAddress points the default transport at a collection agent.
func WithAgentAddress(addr string) Option {
	return func(t *Tracer) error {
		t.cfg.AgentAddress = addr
		return nil
	}
}

// WithTransport substitutes the delivery mechanism, bypassing the
// default HTTP agent transport.
func WithTransport(tr writer.Transport) Option {
	return func(t *Tracer) error {
		t.transport = tr
		return nil
	}
}

// WithLogger routes internal diagnostics to the given logrus logger.
func WithLogger(l *logrus.Logger) Option {
	return func(t *Tracer) error {
		t.baseLogger = l
		return nil
	}
}

// WithProvider substitutes the fallback provider of the active context.
func WithProvider(p trace.Provider) Option {
	return func(t *Tracer) error {
		t.provider = p
		return nil
	}
}

// WithSampler substitutes the trace sampler.
func WithSampler(s Sampler) Option {
	return func(t *Tracer) error {
		t.sampler = s
		return nil
	}
}

// WithSampleRate keeps the given fraction of traces.
func WithSampleRate(rate float64) Option {
	return func(t *Tracer) error {
		t.cfg.SampleRate = rate
		return nil
	}
}

// WithFlushInterval overrides how often buffered traces are shipped.
func WithFlushInterval(d time.Duration) Option {
	return func(t *Tracer) error {
		t.cfg.FlushInterval = d.String()
		return nil
	}
}

// WithQueueSize bounds the writer queue.
func WithQueueSize(n int) Option {
	return func(t *Tracer) error {
		t.cfg.MaxQueuedTraces = n
		return nil
	}
}

// WithBatchSize sets the early-flush watermark.
func WithBatchSize(n int) Option {
	return func(t *Tracer) error {
		t.cfg.BatchSize = n
		return nil
	}
}

// WithStatsdClient mirrors writer health counters to dogstatsd.
func WithStatsdClient(c *statsd.Client) Option {
	return func(t *Tracer) error {
		t.statsd = c
		return nil
	}
}

// SpanOption configures one StartSpan call.
type SpanOption func(*trace.StartSpanConfig)

// ChildOf makes the new span a child of the given context.
func ChildOf(ctx *trace.SpanContext) SpanOption {
	return func(cfg *trace.StartSpanConfig) {
		cfg.Parent = ctx
	}
}

// ServiceName overrides the tracer's service name for one span.
func ServiceName(name string) SpanOption {
	return func(cfg *trace.StartSpanConfig) {
		cfg.Service = name
	}
}

// ResourceName names the resource the span works on (a URL route, a
// query, a queue).
func ResourceName(name string) SpanOption {
	return func(cfg *trace.StartSpanConfig) {
		cfg.Resource = name
	}
}

// SpanType classifies the span (web, db, cache, custom).
func SpanType(typ string) SpanOption {
	return func(cfg *trace.StartSpanConfig) {
		cfg.Type = typ
	}
}

// StartTime overrides the span's wall-clock start.
func StartTime(ts time.Time) SpanOption {
	return func(cfg *trace.StartSpanConfig) {
		cfg.StartTime = ts
	}
}

// Tag sets a tag on the span at start.
func Tag(key, value string) SpanOption {
	return func(cfg *trace.StartSpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = map[string]string{}
		}
		cfg.Tags[key] = value
	}
}
