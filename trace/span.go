// Package trace holds the core span and context types of the tracer:
// immutable span contexts, the span state machine, per-trace buffering,
// and the pluggable provider of the active context.
package trace

import (
	"fmt"
	"sync"
	"time"
)

// Tag keys recognized by collection agents for error reporting.
const (
	errorMsgKey  = "error.msg"
	errorTypeKey = "error.type"
)

// keySamplingPriority is the metric under which the sampling decision
// travels with the root span.
const keySamplingPriority = "_sampling_priority_v1"

// Logger receives internal diagnostics from the trace package. It is
// satisfied by logging.RateLimited.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Span is one timed unit of work in a trace. A span is mutable only
// between its start and Finish, and only by the goroutine owning it;
// after Finish it is read-only and owned by the sink.
type Span struct {
	Name     string             `json:"name"`
	Service  string             `json:"service"`
	Resource string             `json:"resource"`
	Type     string             `json:"type,omitempty"`
	Start    int64              `json:"start"`
	Duration int64              `json:"duration"`
	Meta     map[string]string  `json:"meta,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	SpanID   uint64             `json:"span_id"`
	TraceID  uint64             `json:"trace_id"`
	ParentID uint64             `json:"parent_id"`
	Error    int32              `json:"error"`

	mu       sync.Mutex
	finished bool
	context  *SpanContext
	buffer   *spanBuffer
	log      Logger
}

// StartSpanConfig collects everything needed to start a span. The zero
// value starts a root span with no sink, which is useful in tests.
type StartSpanConfig struct {
	// Parent is the context the new span descends from. Nil, or a
	// lazily materialized context with a zero trace ID, starts a new
	// trace.
	Parent *SpanContext

	Service  string
	Resource string
	Type     string

	// StartTime overrides the wall-clock start when non-zero.
	StartTime time.Time

	// Sink receives the trace once every one of its spans finished.
	// Ignored when Parent already belongs to a local trace.
	Sink Sink

	// Logger receives diagnostics about misuse (tagging a finished
	// span). Nil silences them.
	Logger Logger

	// Tags are set on the span before it is returned.
	Tags map[string]string
}

// StartSpan starts a span and registers it with its trace. A span
// started without a usable parent becomes the root of a new trace and
// carries a freshly generated trace ID.
func StartSpan(name string, cfg StartSpanConfig) *Span {
	start := cfg.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	spanID := randomID()
	parent := cfg.Parent

	var traceID, parentID uint64
	var buffer *spanBuffer
	if parent == nil || parent.traceID == 0 {
		// Root span: the trace inherits its ID.
		traceID = spanID
	} else {
		traceID = parent.traceID
		parentID = parent.spanID
		buffer = parent.trace
	}
	if buffer == nil {
		buffer = newSpanBuffer(cfg.Sink)
	}

	ctx := &SpanContext{
		traceID: traceID,
		spanID:  spanID,
		trace:   buffer,
	}
	if parent != nil {
		// Copy-on-branch: the child owns its baggage.
		if parent.priority != nil {
			p := *parent.priority
			ctx.priority = &p
		}
		ctx.origin = parent.origin
		if len(parent.baggage) > 0 {
			ctx.baggage = make(map[string]string, len(parent.baggage))
			for k, v := range parent.baggage {
				ctx.baggage[k] = v
			}
		}
	}

	resource := cfg.Resource
	if resource == "" {
		resource = name
	}

	s := &Span{
		Name:     name,
		Service:  cfg.Service,
		Resource: resource,
		Type:     cfg.Type,
		Start:    start.UnixNano(),
		SpanID:   spanID,
		TraceID:  traceID,
		ParentID: parentID,
		context:  ctx,
		buffer:   buffer,
		log:      cfg.Logger,
	}
	if ctx.priority != nil {
		s.setMetric(keySamplingPriority, float64(*ctx.priority))
	}
	for k, v := range cfg.Tags {
		s.setTag(k, v)
	}

	buffer.register(s)
	return s
}

// Context returns the span's context, suitable for starting children or
// injecting into a carrier.
func (s *Span) Context() *SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// SetTag sets a tag on the span. After Finish it is a no-op.
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead("SetTag", key) {
		return
	}
	s.setTag(key, value)
}

// SetMetric sets a numeric metric on the span. After Finish it is a
// no-op.
func (s *Span) SetMetric(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead("SetMetric", key) {
		return
	}
	s.setMetric(key, value)
}

// SetError marks the span as errored and records the error message and
// type as tags. A nil error clears the flag.
func (s *Span) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead("SetError", "") {
		return
	}
	if err == nil {
		s.Error = 0
		return
	}
	s.Error = 1
	s.setTag(errorMsgKey, err.Error())
	s.setTag(errorTypeKey, fmt.Sprintf("%T", err))
}

// SetBaggageItem records a baggage item that children started from this
// span's context will inherit. Siblings that already branched keep
// their own copy.
func (s *Span) SetBaggageItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead("SetBaggageItem", key) {
		return
	}
	s.context = s.context.WithBaggageItem(key, value)
}

// SetSamplingPriority records the sampling decision on the span and its
// context so it propagates to children and across process boundaries.
func (s *Span) SetSamplingPriority(priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead("SetSamplingPriority", "") {
		return
	}
	s.context = s.context.WithSamplingPriority(priority)
	s.setMetric(keySamplingPriority, float64(priority))
}

// Finish closes the span at the current time. Finishing twice is safe;
// the second call changes nothing and the trace is handed to the sink
// exactly once.
func (s *Span) Finish() {
	s.finish(time.Now())
}

// FinishWithTime closes the span at an explicit timestamp.
func (s *Span) FinishWithTime(t time.Time) {
	s.finish(t)
}

// Finished reports whether the span has been closed.
func (s *Span) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *Span) finish(t time.Time) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		if s.log != nil {
			s.log.Debugf("span %q finished more than once", s.Name)
		}
		return
	}
	s.finished = true
	if d := t.UnixNano() - s.Start; d > 0 {
		s.Duration = d
	}
	s.mu.Unlock()

	s.buffer.finish()
}

// dead reports whether the span has finished, logging the attempted
// mutation. Callers must hold s.mu.
func (s *Span) dead(op, key string) bool {
	if !s.finished {
		return false
	}
	if s.log != nil {
		s.log.Debugf("%s(%q) on finished span %q ignored", op, key, s.Name)
	}
	return true
}

func (s *Span) setTag(key, value string) {
	if s.Meta == nil {
		s.Meta = make(map[string]string, 1)
	}
	s.Meta[key] = value
}

func (s *Span) setMetric(key string, value float64) {
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64, 1)
	}
	s.Metrics[key] = value
}
