package trace

import (
	"context"
	"sync"
)

// Provider stores and retrieves the active SpanContext for code that
// has no context.Context flowing through it. The preferred strategy in
// Go is explicit propagation via ContextWithSpan / SpanFromContext; a
// Provider is the fallback for instrumentation that crosses API
// boundaries without one.
type Provider interface {
	// Active returns the active context, materializing an empty root if
	// none has been activated. It never returns nil.
	Active() *SpanContext

	// Activate replaces the active context. It affects only subsequent
	// Active calls through this provider, never contexts that other
	// goroutines already hold.
	Activate(*SpanContext)

	// HasActive reports whether a context has been activated or
	// materialized and not since reset.
	HasActive() bool

	// Reset discards all provider state. Meant for worker and process
	// boundaries, and for test isolation.
	Reset()
}

// globalProvider keeps one process-wide active context under a lock.
// It is the moral equivalent of thread-local storage for runtimes that
// do not expose any: correct for single-threaded and fork-per-request
// shapes, and explicitly a best effort elsewhere.
type globalProvider struct {
	mu  sync.RWMutex
	ctx *SpanContext
}

// NewGlobalProvider returns a Provider backed by a single process-wide
// slot.
func NewGlobalProvider() Provider {
	return &globalProvider{}
}

func (p *globalProvider) Active() *SpanContext {
	p.mu.RLock()
	ctx := p.ctx
	p.mu.RUnlock()
	if ctx != nil {
		return ctx
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		// Lazily materialized root: ids are assigned by the first span
		// started under it.
		p.ctx = &SpanContext{}
	}
	return p.ctx
}

func (p *globalProvider) Activate(ctx *SpanContext) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
}

func (p *globalProvider) HasActive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ctx != nil
}

func (p *globalProvider) Reset() {
	p.mu.Lock()
	p.ctx = nil
	p.mu.Unlock()
}

type activeSpanKey struct{}

// ContextWithSpan returns a copy of ctx carrying the span. This is the
// task-local propagation strategy: every goroutine or request handler
// that receives the returned context observes the span as its parent,
// and sibling branches cannot interfere with one another.
func ContextWithSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, activeSpanKey{}, s)
}

// SpanFromContext returns the span carried by ctx, if any.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(activeSpanKey{}).(*Span)
	return s, ok
}
