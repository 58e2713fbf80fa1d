package trace

import "sync"

// Sink receives completed traces. The background writer implements it;
// tests substitute channel-backed fakes.
type Sink interface {
	// SubmitTrace hands over a finished trace. Implementations must not
	// block the caller and must not mutate the spans.
	SubmitTrace(spans []*Span)
}

// spanBuffer accumulates the spans of one local trace. When every
// registered span has finished, the whole trace is pushed to the sink
// in one piece. Buffering per trace keeps parent/child linkage intact
// in the output at the cost of holding unfinished traces in memory.
type spanBuffer struct {
	mu       sync.Mutex
	sink     Sink
	spans    []*Span
	finished int
}

func newSpanBuffer(sink Sink) *spanBuffer {
	return &spanBuffer{sink: sink}
}

// register adds a newly started span to the trace.
func (b *spanBuffer) register(s *Span) {
	b.mu.Lock()
	b.spans = append(b.spans, s)
	b.mu.Unlock()
}

// finish records that a span has completed. The trace is submitted once
// all registered spans are done; spans started afterwards (a long-lived
// context being reused) begin a new generation of the same trace.
func (b *spanBuffer) finish() {
	b.mu.Lock()
	b.finished++
	if b.finished < len(b.spans) {
		b.mu.Unlock()
		return
	}
	done := b.spans
	b.spans = nil
	b.finished = 0
	sink := b.sink
	b.mu.Unlock()

	if sink != nil && len(done) > 0 {
		sink.SubmitTrace(done)
	}
}
