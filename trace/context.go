package trace

// SpanContext carries the identifiers and baggage that follow a trace
// across goroutine and process boundaries: the trace and span IDs, the
// sampling priority, the origin of the trace, and arbitrary key/value
// baggage.
//
// A SpanContext is immutable. Deriving a variant (extra baggage, a
// sampling decision) returns a copy, so concurrent branches of a call
// tree can never observe each other's writes.
type SpanContext struct {
	traceID  uint64
	spanID   uint64
	priority *int
	origin   string
	baggage  map[string]string

	// All spans of one local trace share the same buffer through their
	// contexts. A context extracted from a carrier has none; the first
	// local span under it starts a fresh one.
	trace *spanBuffer
}

// NewSpanContext returns a context for the given trace and span IDs.
// It is primarily useful to propagation code reconstructing a context
// from a carrier.
func NewSpanContext(traceID, spanID uint64) *SpanContext {
	return &SpanContext{traceID: traceID, spanID: spanID}
}

// TraceID returns the trace ID, or zero for an empty root context that
// has not yet had a span started under it.
func (c *SpanContext) TraceID() uint64 { return c.traceID }

// SpanID returns the ID of the span this context describes.
func (c *SpanContext) SpanID() uint64 { return c.spanID }

// SamplingPriority returns the sampling priority and whether one has
// been decided.
func (c *SpanContext) SamplingPriority() (int, bool) {
	if c.priority == nil {
		return 0, false
	}
	return *c.priority, true
}

// Origin returns the origin of the trace ("synthetics" and the like),
// or the empty string.
func (c *SpanContext) Origin() string { return c.origin }

// BaggageItem returns the value of a baggage item, or the empty string.
func (c *SpanContext) BaggageItem(key string) string {
	return c.baggage[key]
}

// ForeachBaggageItem calls handler for every baggage item. Iteration
// stops early if handler returns false.
func (c *SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			return
		}
	}
}

// WithBaggageItem returns a copy of the context with the baggage item
// set. The receiver is left untouched.
func (c *SpanContext) WithBaggageItem(key, value string) *SpanContext {
	d := c.clone()
	if d.baggage == nil {
		d.baggage = make(map[string]string, 1)
	}
	d.baggage[key] = value
	return d
}

// WithSamplingPriority returns a copy of the context carrying the given
// sampling priority.
func (c *SpanContext) WithSamplingPriority(p int) *SpanContext {
	d := c.clone()
	d.priority = &p
	return d
}

// WithOrigin returns a copy of the context carrying the given origin.
func (c *SpanContext) WithOrigin(origin string) *SpanContext {
	d := c.clone()
	d.origin = origin
	return d
}

// clone copies the context, including its baggage map. The trace buffer
// reference is shared: a derived context still belongs to the same
// logical trace.
func (c *SpanContext) clone() *SpanContext {
	d := &SpanContext{
		traceID: c.traceID,
		spanID:  c.spanID,
		origin:  c.origin,
		trace:   c.trace,
	}
	if c.priority != nil {
		p := *c.priority
		d.priority = &p
	}
	if c.baggage != nil {
		d.baggage = make(map[string]string, len(c.baggage))
		for k, v := range c.baggage {
			d.baggage[k] = v
		}
	}
	return d
}
