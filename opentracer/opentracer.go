// Package opentracer exposes a tracepipe Tracer through the
// opentracing-go API, so code instrumented against opentracing "just
// works":
//
//	t, _ := tracepipe.New(tracepipe.WithServiceName("checkout"))
//	opentracing.SetGlobalTracer(opentracer.New(t))
package opentracer

import (
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"
	otlog "github.com/opentracing/opentracing-go/log"

	"github.com/tracepipe/tracepipe"
	"github.com/tracepipe/tracepipe/propagation"
	"github.com/tracepipe/tracepipe/trace"
)

// New wraps t in an opentracing-compatible tracer.
func New(t *tracepipe.Tracer) opentracing.Tracer {
	return &otTracer{t: t}
}

type otTracer struct {
	t *tracepipe.Tracer
}

var _ opentracing.Tracer = (*otTracer)(nil)

func (o *otTracer) StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span {
	var sso opentracing.StartSpanOptions
	for _, opt := range opts {
		opt.Apply(&sso)
	}

	var spanOpts []tracepipe.SpanOption
	for _, ref := range sso.References {
		if ref.Type != opentracing.ChildOfRef && ref.Type != opentracing.FollowsFromRef {
			continue
		}
		if parent, ok := ref.ReferencedContext.(*spanContext); ok {
			spanOpts = append(spanOpts, tracepipe.ChildOf(parent.ctx))
			break
		}
	}
	if !sso.StartTime.IsZero() {
		spanOpts = append(spanOpts, tracepipe.StartTime(sso.StartTime))
	}

	span := o.t.StartSpan(operationName, spanOpts...)
	s := &otSpan{span: span, tracer: o}
	for k, v := range sso.Tags {
		s.SetTag(k, v)
	}
	return s
}

func (o *otTracer) Inject(sm opentracing.SpanContext, format interface{}, carrier interface{}) error {
	sc, ok := sm.(*spanContext)
	if !ok {
		return opentracing.ErrInvalidSpanContext
	}
	switch format {
	case opentracing.TextMap, opentracing.HTTPHeaders:
		w, ok := carrier.(opentracing.TextMapWriter)
		if !ok {
			return opentracing.ErrInvalidCarrier
		}
		return o.t.Inject(sc.ctx, writerAdapter{w})
	}
	return opentracing.ErrUnsupportedFormat
}

func (o *otTracer) Extract(format interface{}, carrier interface{}) (opentracing.SpanContext, error) {
	switch format {
	case opentracing.TextMap, opentracing.HTTPHeaders:
		r, ok := carrier.(opentracing.TextMapReader)
		if !ok {
			return nil, opentracing.ErrInvalidCarrier
		}
		ctx, err := o.t.Extract(readerAdapter{r})
		if err == propagation.ErrSpanContextNotFound {
			return nil, opentracing.ErrSpanContextNotFound
		}
		if err == propagation.ErrSpanContextCorrupted {
			return nil, opentracing.ErrSpanContextCorrupted
		}
		if err != nil {
			return nil, err
		}
		return &spanContext{ctx: ctx}, nil
	}
	return nil, opentracing.ErrUnsupportedFormat
}

// writerAdapter bridges opentracing's TextMapWriter to the propagation
// package's identically shaped interface.
type writerAdapter struct {
	w opentracing.TextMapWriter
}

func (a writerAdapter) Set(key, value string) {
	a.w.Set(key, value)
}

type readerAdapter struct {
	r opentracing.TextMapReader
}

func (a readerAdapter) ForeachKey(handler func(key, value string) error) error {
	return a.r.ForeachKey(handler)
}

// spanContext wraps an immutable trace.SpanContext.
type spanContext struct {
	ctx *trace.SpanContext
}

var _ opentracing.SpanContext = (*spanContext)(nil)

func (c *spanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	c.ctx.ForeachBaggageItem(handler)
}

// otSpan adapts a trace.Span to the opentracing.Span interface.
type otSpan struct {
	span   *trace.Span
	tracer *otTracer
}

var _ opentracing.Span = (*otSpan)(nil)

func (s *otSpan) Finish() {
	s.span.Finish()
}

func (s *otSpan) FinishWithOptions(opts opentracing.FinishOptions) {
	if opts.FinishTime.IsZero() {
		s.span.Finish()
		return
	}
	s.span.FinishWithTime(opts.FinishTime)
}

func (s *otSpan) Context() opentracing.SpanContext {
	return &spanContext{ctx: s.span.Context()}
}

func (s *otSpan) SetOperationName(operationName string) opentracing.Span {
	// Operation names are fixed at start; record the intent as the
	// resource instead.
	s.span.SetTag("operation.rename", operationName)
	return s
}

func (s *otSpan) SetTag(key string, value interface{}) opentracing.Span {
	switch v := value.(type) {
	case string:
		s.span.SetTag(key, v)
	case bool:
		if key == "error" && v {
			s.span.SetError(fmt.Errorf("error"))
		} else {
			s.span.SetTag(key, fmt.Sprintf("%t", v))
		}
	case float64:
		s.span.SetMetric(key, v)
	case float32:
		s.span.SetMetric(key, float64(v))
	case int:
		s.span.SetMetric(key, float64(v))
	case int64:
		s.span.SetMetric(key, float64(v))
	case uint64:
		s.span.SetMetric(key, float64(v))
	case fmt.Stringer:
		s.span.SetTag(key, v.String())
	case error:
		s.span.SetError(v)
	default:
		s.span.SetTag(key, fmt.Sprintf("%v", value))
	}
	return s
}

func (s *otSpan) LogFields(fields ...otlog.Field) {
	for _, f := range fields {
		s.span.SetTag("log."+f.Key(), fmt.Sprintf("%v", f.Value()))
	}
}

func (s *otSpan) LogKV(alternatingKeyValues ...interface{}) {
	fields, err := otlog.InterleavedKVToFields(alternatingKeyValues...)
	if err != nil {
		return
	}
	s.LogFields(fields...)
}

func (s *otSpan) SetBaggageItem(restrictedKey, value string) opentracing.Span {
	s.span.SetBaggageItem(restrictedKey, value)
	return s
}

func (s *otSpan) BaggageItem(restrictedKey string) string {
	return s.span.Context().BaggageItem(restrictedKey)
}

func (s *otSpan) Tracer() opentracing.Tracer {
	return s.tracer
}

// LogEvent is deprecated in opentracing and ignored here.
func (s *otSpan) LogEvent(event string) {}

// LogEventWithPayload is deprecated in opentracing and ignored here.
func (s *otSpan) LogEventWithPayload(event string, payload interface{}) {}

// Log is deprecated in opentracing and ignored here.
func (s *otSpan) Log(data opentracing.LogData) {}
