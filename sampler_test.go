package tracepipe

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllSampler(t *testing.T) {
	s := AllSampler{}
	for i := 0; i < 100; i++ {
		assert.True(t, s.Sample(rand.Uint64()))
	}
}

func TestRateSamplerBounds(t *testing.T) {
	assert.Equal(t, float64(0), NewRateSampler(-3).Rate())
	assert.Equal(t, float64(1), NewRateSampler(7).Rate())

	always := NewRateSampler(1)
	never := NewRateSampler(0)
	for i := 0; i < 100; i++ {
		id := rand.Uint64()
		assert.True(t, always.Sample(id))
		assert.False(t, never.Sample(id))
	}
}

func TestRateSamplerApproximation(t *testing.T) {
	const n = 100000
	rates := []float64{0.1, 0.25, 0.5, 0.9}
	for _, rate := range rates {
		s := NewRateSampler(rate)
		kept := 0
		for i := 0; i < n; i++ {
			if s.Sample(rand.Uint64()) {
				kept++
			}
		}
		got := float64(kept) / n
		assert.InDelta(t, rate, got, 0.02, "rate %v sampled %v", rate, got)
	}
}

func TestRateSamplerDeterministic(t *testing.T) {
	a := NewRateSampler(0.5)
	b := NewRateSampler(0.5)
	for i := 0; i < 1000; i++ {
		id := rand.Uint64()
		assert.Equal(t, a.Sample(id), b.Sample(id), "same id must sample identically everywhere")
	}
}
