// Package logging provides the tracer's internal diagnostic logger. It
// wraps logrus with per-call-site rate limiting so a hot instrumented
// path cannot flood the host application's logs.
package logging

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
)

// DefaultInterval allows one record per call site every 60 seconds.
const DefaultInterval = 60 * time.Second

// bucket tracks the last emission for one call site and how many
// records were suppressed since.
type bucket struct {
	lastEmit time.Time
	skipped  uint64
}

// RateLimited emits at most one record per call site per interval.
// Suppressed records are counted and reported as a ", N additional
// messages skipped" suffix the next time the call site logs.
type RateLimited struct {
	logger   *logrus.Logger
	interval time.Duration
	clock    clockz.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New returns a rate-limited logger wrapping logger. An interval of
// zero (or less) disables limiting entirely.
func New(logger *logrus.Logger, interval time.Duration) *RateLimited {
	return NewWithClock(logger, interval, clockz.RealClock)
}

// NewWithClock is like New but reads time from the supplied clock.
func NewWithClock(logger *logrus.Logger, interval time.Duration, clock clockz.Clock) *RateLimited {
	if logger == nil {
		logger = logrus.New()
	}
	return &RateLimited{
		logger:   logger,
		interval: interval,
		clock:    clock,
		buckets:  map[string]*bucket{},
	}
}

// Logger returns the underlying logrus logger, for callers that need
// unlimited output (startup errors and the like).
func (l *RateLimited) Logger() *logrus.Logger {
	return l.logger
}

// Debugf logs a debug record, subject to rate limiting.
func (l *RateLimited) Debugf(format string, args ...interface{}) {
	l.handle(logrus.DebugLevel, format, args)
}

// Warnf logs a warning record, subject to rate limiting.
func (l *RateLimited) Warnf(format string, args ...interface{}) {
	l.handle(logrus.WarnLevel, format, args)
}

// Errorf logs an error record, subject to rate limiting.
func (l *RateLimited) Errorf(format string, args ...interface{}) {
	l.handle(logrus.ErrorLevel, format, args)
}

// handle must be called directly from one of the leveled methods above
// so that the call-site key lands on the caller of that method.
func (l *RateLimited) handle(level logrus.Level, format string, args []interface{}) {
	if l.interval <= 0 {
		l.logger.Logf(level, format, args...)
		return
	}

	// One record per file:line:level per interval. Keying on the call
	// site means every distinct message still gets through at least
	// once per interval.
	file, line := "unknown", 0
	if _, f, n, ok := runtime.Caller(2); ok {
		file, line = f, n
	}
	key := fmt.Sprintf("%s:%d:%d", file, line, level)
	now := l.clock.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	} else if now.Sub(b.lastEmit) < l.interval {
		b.skipped++
		l.mu.Unlock()
		return
	}
	skipped := b.skipped
	b.lastEmit = now
	b.skipped = 0
	l.mu.Unlock()

	if skipped > 0 {
		format = fmt.Sprintf("%s, %d additional messages skipped", format, skipped)
	}
	l.logger.Logf(level, format, args...)
}
