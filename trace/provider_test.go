package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalProviderLazyRoot(t *testing.T) {
	p := NewGlobalProvider()

	assert.False(t, p.HasActive())
	ctx := p.Active()
	require.NotNil(t, ctx, "Active must always materialize a context")
	assert.True(t, p.HasActive())

	// Idempotent: the same materialized root is returned again.
	assert.Same(t, ctx, p.Active())
}

func TestGlobalProviderActivateAndReset(t *testing.T) {
	p := NewGlobalProvider()
	remote := NewSpanContext(7, 8)

	p.Activate(remote)
	assert.Same(t, remote, p.Active())

	p.Reset()
	assert.False(t, p.HasActive())
	fresh := p.Active()
	assert.NotSame(t, remote, fresh)
	assert.Zero(t, fresh.TraceID())
}

func TestContextWithSpanRoundTrip(t *testing.T) {
	s := StartSpan("op", StartSpanConfig{})
	ctx := ContextWithSpan(context.Background(), s)

	got, ok := SpanFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = SpanFromContext(context.Background())
	assert.False(t, ok)
	_, ok = SpanFromContext(nil)
	assert.False(t, ok)
}
