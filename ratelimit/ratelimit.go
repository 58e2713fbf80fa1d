// Package ratelimit implements the token-bucket admission check used to
// bound how often the tracer emits diagnostics and samples traces.
package ratelimit

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Disabled is the rate at which a Limiter denies every request.
const Disabled float64 = 0

// Unlimited is the conventional rate at which a Limiter allows every
// request. Any negative rate behaves the same way.
const Unlimited float64 = -1

// Limiter is a token bucket with continuous refill. Tokens accrue at
// the configured rate up to a burst capacity equal to that rate, and
// every allowed request consumes one token.
//
// A zero rate denies everything and a negative rate allows everything;
// both are valid configurations rather than errors.
type Limiter struct {
	mu         sync.Mutex
	rate       float64
	maxTokens  float64
	tokens     float64
	lastUpdate time.Time
	clock      clockz.Clock
}

// New returns a Limiter admitting rate requests per second, with a
// burst capacity of the same size.
func New(rate float64) *Limiter {
	return NewWithClock(rate, clockz.RealClock)
}

// NewWithClock is like New but reads time from the supplied clock.
func NewWithClock(rate float64, clock clockz.Clock) *Limiter {
	return &Limiter{
		rate:       rate,
		maxTokens:  rate,
		tokens:     rate,
		lastUpdate: clock.Now(),
		clock:      clock,
	}
}

// Allowed reports whether one more request may proceed now. It is safe
// to call from any number of goroutines at any frequency.
func (l *Limiter) Allowed() bool {
	if l.rate < 0 {
		return true
	}
	if l.rate == 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// refill adds tokens for the time elapsed since the last update,
// clamped to the burst capacity. Callers must hold l.mu.
func (l *Limiter) refill() {
	now := l.clock.Now()
	// The clock may not have advanced between two checks; never refill
	// twice for the same instant.
	if !now.After(l.lastUpdate) {
		return
	}
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.tokens += elapsed * l.rate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastUpdate = now
}

// Rate returns the configured rate.
func (l *Limiter) Rate() float64 {
	return l.rate
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens
}
