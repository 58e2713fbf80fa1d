package tracepipe

import "math"

// knuthFactor spreads sequential trace IDs uniformly over the uint64
// range for rate-based sampling.
const knuthFactor uint64 = 1111111111111111111

// Sampler decides whether a new trace should be kept. The decision is
// recorded as the trace's sampling priority; spans are still assembled
// and shipped either way so the collector can honor the priority.
type Sampler interface {
	Sample(traceID uint64) bool
}

// AllSampler keeps everything.
type AllSampler struct{}

// Sample implements Sampler.
func (AllSampler) Sample(uint64) bool { return true }

// RateSampler keeps a uniform fraction of traces, deterministically by
// trace ID so every process samples the same traces.
type RateSampler struct {
	rate float64
}

// NewRateSampler returns a sampler keeping the given fraction of
// traces. Rates outside [0, 1] are clamped.
func NewRateSampler(rate float64) *RateSampler {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &RateSampler{rate: rate}
}

// Rate returns the configured keep fraction.
func (s *RateSampler) Rate() float64 { return s.rate }

// Sample implements Sampler.
func (s *RateSampler) Sample(traceID uint64) bool {
	if s.rate == 1 {
		return true
	}
	if s.rate == 0 {
		return false
	}
	return traceID*knuthFactor < uint64(s.rate*math.MaxUint64)
}
