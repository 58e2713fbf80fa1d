// Package writer moves finished traces from instrumented code to the
// collection agent. Producers enqueue without ever blocking; a single
// background goroutine batches, serializes and ships, and failures stay
// on that goroutine as rate-limited log lines.
package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/datadog-go/statsd"

	"github.com/tracepipe/tracepipe/logging"
	"github.com/tracepipe/tracepipe/trace"
)

const (
	// DefaultFlushInterval is how often buffered traces are shipped.
	DefaultFlushInterval = 2 * time.Second

	// DefaultMaxQueuedTraces bounds how many finished traces may wait
	// for the next flush before new ones are dropped.
	DefaultMaxQueuedTraces = 1000

	// DefaultBatchSize triggers an early flush once this many traces
	// are buffered, ahead of the ticker.
	DefaultBatchSize = 200

	// DefaultStopTimeout bounds how long Stop waits for the final
	// drain before giving up on buffered data.
	DefaultStopTimeout = 5 * time.Second

	// flushTimeout bounds a single delivery attempt.
	flushTimeout = 10 * time.Second
)

// Stats are the writer's data-loss and throughput counters.
type Stats struct {
	// TracesFlushed counts traces successfully handed to the transport.
	TracesFlushed uint64
	// TracesDropped counts traces lost to queue overflow or shutdown.
	TracesDropped uint64
	// FlushErrors counts failed delivery attempts (whole batches).
	FlushErrors uint64
}

// Config configures a TraceWriter. The zero value of every field is
// replaced by the corresponding default.
type Config struct {
	Transport     Transport
	FlushInterval time.Duration
	MaxQueued     int
	BatchSize     int
	StopTimeout   time.Duration
	Log           *logging.RateLimited

	// Statsd optionally mirrors the writer's counters to dogstatsd.
	Statsd *statsd.Client
}

// TraceWriter buffers finished traces and flushes them to a Transport
// on a fixed interval, or earlier when a batch-size watermark is hit.
type TraceWriter struct {
	in        chan []*trace.Span
	flushReq  chan chan struct{}
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	stopped   int32
	transport Transport
	interval  time.Duration
	batchSize int
	stopWait  time.Duration
	log       *logging.RateLimited
	statsd    *statsd.Client

	flushed     uint64
	dropped     uint64
	flushErrors uint64
}

var _ trace.Sink = (*TraceWriter)(nil)

// New starts a TraceWriter and its background flush loop.
func New(cfg Config) *TraceWriter {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = DefaultMaxQueuedTraces
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Log == nil {
		cfg.Log = logging.New(nil, logging.DefaultInterval)
	}
	w := &TraceWriter{
		in:        make(chan []*trace.Span, cfg.MaxQueued),
		flushReq:  make(chan chan struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		transport: cfg.Transport,
		interval:  cfg.FlushInterval,
		batchSize: cfg.BatchSize,
		stopWait:  cfg.StopTimeout,
		log:       cfg.Log,
		statsd:    cfg.Statsd,
	}
	go w.run()
	return w
}

// SubmitTrace enqueues a finished trace. It never blocks: when the
// queue is full or the writer is stopped, the trace is dropped and the
// dropped counter incremented.
func (w *TraceWriter) SubmitTrace(spans []*trace.Span) {
	if len(spans) == 0 {
		return
	}
	if atomic.LoadInt32(&w.stopped) != 0 {
		w.drop(1)
		return
	}
	select {
	case w.in <- spans:
	default:
		w.drop(1)
		w.log.Warnf("trace queue full, dropping trace of %d spans", len(spans))
	}
}

// Flush forces a flush of everything buffered so far and waits for the
// cycle to complete. It is mainly useful in tests and short-lived
// processes.
func (w *TraceWriter) Flush() {
	ack := make(chan struct{})
	select {
	case w.flushReq <- ack:
		<-ack
	case <-w.done:
	}
}

// Stop drains the writer best-effort within the stop timeout and shuts
// the flush loop down. It is safe to call from any goroutine and more
// than once.
func (w *TraceWriter) Stop() {
	w.stopOnce.Do(func() {
		atomic.StoreInt32(&w.stopped, 1)
		close(w.stop)
		select {
		case <-w.done:
		case <-time.After(w.stopWait):
			w.log.Warnf("writer did not drain within %v, discarding buffered traces", w.stopWait)
		}
	})
}

// Stats returns a snapshot of the writer's counters.
func (w *TraceWriter) Stats() Stats {
	return Stats{
		TracesFlushed: atomic.LoadUint64(&w.flushed),
		TracesDropped: atomic.LoadUint64(&w.dropped),
		FlushErrors:   atomic.LoadUint64(&w.flushErrors),
	}
}

func (w *TraceWriter) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var pending [][]*trace.Span
	for {
		select {
		case spans := <-w.in:
			pending = append(pending, spans)
			if len(pending) >= w.batchSize {
				pending = w.flush(pending)
			}
		case <-ticker.C:
			pending = w.flush(pending)
		case ack := <-w.flushReq:
			pending = w.flush(w.drain(pending))
			close(ack)
		case <-w.stop:
			w.flush(w.drain(pending))
			return
		}
	}
}

// drain empties the inbound queue into pending without blocking.
func (w *TraceWriter) drain(pending [][]*trace.Span) [][]*trace.Span {
	for {
		select {
		case spans := <-w.in:
			pending = append(pending, spans)
		default:
			return pending
		}
	}
}

// flush ships one batch. The batch is never retried: on failure it is
// counted, logged and discarded, and the next cycle starts clean.
func (w *TraceWriter) flush(batch [][]*trace.Span) [][]*trace.Span {
	if len(batch) == 0 {
		return nil
	}
	if w.transport == nil {
		w.drop(len(batch))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := w.transport.SendTraces(ctx, batch); err != nil {
		atomic.AddUint64(&w.flushErrors, 1)
		w.drop(len(batch))
		w.count("tracepipe.writer.flush_errors", 1)
		w.log.Errorf("flushing %d traces: %v", len(batch), err)
		return nil
	}
	atomic.AddUint64(&w.flushed, uint64(len(batch)))
	w.count("tracepipe.writer.traces_flushed", int64(len(batch)))
	return nil
}

func (w *TraceWriter) drop(n int) {
	atomic.AddUint64(&w.dropped, uint64(n))
	w.count("tracepipe.writer.traces_dropped", int64(n))
}

func (w *TraceWriter) count(name string, value int64) {
	if w.statsd == nil {
		return
	}
	// Best effort; statsd errors are not worth a log line.
	_ = w.statsd.Count(name, value, nil, 1)
}
