package trace

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSink collects submitted traces for inspection.
type recordSink struct {
	mu     sync.Mutex
	traces [][]*Span
}

func (r *recordSink) SubmitTrace(spans []*Span) {
	r.mu.Lock()
	r.traces = append(r.traces, spans)
	r.mu.Unlock()
}

func (r *recordSink) all() [][]*Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.traces
}

func TestStartSpanRoot(t *testing.T) {
	s := StartSpan("web.request", StartSpanConfig{Service: "shop", Resource: "GET /"})

	assert.NotZero(t, s.TraceID)
	assert.Equal(t, s.TraceID, s.SpanID)
	assert.Zero(t, s.ParentID)
	assert.Equal(t, "shop", s.Service)
	assert.Equal(t, "GET /", s.Resource)
	assert.Equal(t, s.TraceID, s.Context().TraceID())
	assert.Equal(t, s.SpanID, s.Context().SpanID())
}

func TestStartSpanDefaultResource(t *testing.T) {
	s := StartSpan("db.query", StartSpanConfig{})
	assert.Equal(t, "db.query", s.Resource)
}

func TestStartSpanChild(t *testing.T) {
	root := StartSpan("parent", StartSpanConfig{})
	child := StartSpan("child", StartSpanConfig{Parent: root.Context()})

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
}

func TestStartSpanFromEmptyContext(t *testing.T) {
	// A lazily materialized root context has no ids yet; the first span
	// under it starts a brand new trace but keeps the baggage.
	empty := (&SpanContext{}).WithBaggageItem("tenant", "acme")
	s := StartSpan("op", StartSpanConfig{Parent: empty})

	assert.NotZero(t, s.TraceID)
	assert.Zero(t, s.ParentID)
	assert.Equal(t, "acme", s.Context().BaggageItem("tenant"))
}

func TestStartSpanFromRemoteParent(t *testing.T) {
	sink := &recordSink{}
	remote := NewSpanContext(1234, 5678).WithSamplingPriority(2).WithOrigin("synthetics")
	s := StartSpan("handler", StartSpanConfig{Parent: remote, Sink: sink})

	assert.Equal(t, uint64(1234), s.TraceID)
	assert.Equal(t, uint64(5678), s.ParentID)
	p, ok := s.Context().SamplingPriority()
	require.True(t, ok)
	assert.Equal(t, 2, p)
	assert.Equal(t, "synthetics", s.Context().Origin())
	assert.Equal(t, float64(2), s.Metrics["_sampling_priority_v1"])

	s.Finish()
	require.Len(t, sink.all(), 1)
}

func TestFinishSubmitsWhenAllSpansDone(t *testing.T) {
	sink := &recordSink{}
	root := StartSpan("root", StartSpanConfig{Sink: sink})
	child := StartSpan("child", StartSpanConfig{Parent: root.Context()})

	child.Finish()
	assert.Empty(t, sink.all(), "trace must not flush while the root is open")

	root.Finish()
	traces := sink.all()
	require.Len(t, traces, 1)
	assert.Len(t, traces[0], 2)
}

func TestFinishIdempotent(t *testing.T) {
	sink := &recordSink{}
	s := StartSpan("once", StartSpanConfig{Sink: sink})

	start := time.Unix(100, 0)
	s.FinishWithTime(start.Add(time.Second))
	d := s.Duration
	s.Finish()
	s.Finish()

	assert.Equal(t, d, s.Duration)
	assert.Len(t, sink.all(), 1, "double finish must not duplicate the trace")
}

func TestSetAfterFinishIgnored(t *testing.T) {
	s := StartSpan("late", StartSpanConfig{})
	s.Finish()

	s.SetTag("k", "v")
	s.SetMetric("m", 1)
	s.SetError(errors.New("boom"))

	assert.NotContains(t, s.Meta, "k")
	assert.NotContains(t, s.Metrics, "m")
	assert.Zero(t, s.Error)
}

func TestSetError(t *testing.T) {
	s := StartSpan("err", StartSpanConfig{})
	s.SetError(errors.New("connection reset"))

	assert.EqualValues(t, 1, s.Error)
	assert.Equal(t, "connection reset", s.Meta["error.msg"])
	assert.Equal(t, "*errors.errorString", s.Meta["error.type"])

	s.SetError(nil)
	assert.Zero(t, s.Error)
}

func TestConcurrentChildrenShareTrace(t *testing.T) {
	sink := &recordSink{}
	root := StartSpan("root", StartSpanConfig{Sink: sink})

	var wg sync.WaitGroup
	ids := make(chan uint64, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := StartSpan("child", StartSpanConfig{Parent: root.Context()})
			ids <- c.SpanID
			assert.Equal(t, root.TraceID, c.TraceID)
			c.Finish()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "span ids must be unique within a trace")
		seen[id] = true
	}

	root.Finish()
	traces := sink.all()
	require.Len(t, traces, 1)
	assert.Len(t, traces[0], 11)
}

func TestFinishedSpanDurationNeverNegative(t *testing.T) {
	s := StartSpan("clock-skew", StartSpanConfig{StartTime: time.Unix(200, 0)})
	s.FinishWithTime(time.Unix(100, 0))
	assert.Zero(t, s.Duration)
}
