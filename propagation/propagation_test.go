package propagation

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracepipe/tracepipe/trace"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	ctx := trace.NewSpanContext(1234, 5678).
		WithSamplingPriority(2).
		WithOrigin("synthetics").
		WithBaggageItem("user", "alice").
		WithBaggageItem("tenant", "acme")

	carrier := TextMapCarrier{}
	var prop HTTPPropagator
	require.NoError(t, prop.Inject(ctx, carrier))

	got, err := prop.Extract(carrier)
	require.NoError(t, err)

	assert.Equal(t, uint64(1234), got.TraceID())
	assert.Equal(t, uint64(5678), got.SpanID())
	p, ok := got.SamplingPriority()
	require.True(t, ok)
	assert.Equal(t, 2, p)
	assert.Equal(t, "synthetics", got.Origin())
	assert.Equal(t, "alice", got.BaggageItem("user"))
	assert.Equal(t, "acme", got.BaggageItem("tenant"))
}

func TestInjectWritesExpectedHeaders(t *testing.T) {
	ctx := trace.NewSpanContext(42, 84).WithSamplingPriority(1)
	carrier := TextMapCarrier{}
	require.NoError(t, HTTPPropagator{}.Inject(ctx, carrier))

	assert.Equal(t, "42", carrier[TraceIDHeader])
	assert.Equal(t, "84", carrier[ParentIDHeader])
	assert.Equal(t, "1", carrier[SamplingPriorityHeader])
	assert.NotContains(t, carrier, OriginHeader)
}

func TestExtractCaseInsensitive(t *testing.T) {
	carrier := TextMapCarrier{
		"X-Tracepipe-Trace-Id":  "1234",
		"X-TRACEPIPE-PARENT-ID": "5678",
		"X-Tracepipe-Baggage-Team": "infra",
	}
	got, err := HTTPPropagator{}.Extract(carrier)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), got.TraceID())
	assert.Equal(t, uint64(5678), got.SpanID())
	assert.Equal(t, "infra", got.BaggageItem("team"))
}

func TestExtractHTTPHeadersCarrier(t *testing.T) {
	h := http.Header{}
	h.Set(TraceIDHeader, "7")
	h.Set(ParentIDHeader, "8")
	h.Set(OriginHeader, "rum")

	got, err := HTTPPropagator{}.Extract(HTTPHeadersCarrier(h))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.TraceID())
	assert.Equal(t, uint64(8), got.SpanID())
	assert.Equal(t, "rum", got.Origin())
}

func TestInjectIntoHTTPHeadersRoundTrip(t *testing.T) {
	// net/http canonicalizes header names; extraction must not care.
	ctx := trace.NewSpanContext(99, 100).WithBaggageItem("k", "v")
	h := http.Header{}
	require.NoError(t, HTTPPropagator{}.Inject(ctx, HTTPHeadersCarrier(h)))

	got, err := HTTPPropagator{}.Extract(HTTPHeadersCarrier(h))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), got.TraceID())
	assert.Equal(t, "v", got.BaggageItem("k"))
}

func TestExtractMissing(t *testing.T) {
	_, err := HTTPPropagator{}.Extract(TextMapCarrier{})
	assert.Equal(t, ErrSpanContextNotFound, err)

	_, err = HTTPPropagator{}.Extract(TextMapCarrier{TraceIDHeader: "1"})
	assert.Equal(t, ErrSpanContextNotFound, err)
}

func TestExtractCorrupted(t *testing.T) {
	carrier := TextMapCarrier{
		TraceIDHeader:  "not-a-number",
		ParentIDHeader: "5678",
	}
	_, err := HTTPPropagator{}.Extract(carrier)
	assert.Equal(t, ErrSpanContextCorrupted, err)

	carrier = TextMapCarrier{
		TraceIDHeader:          "1",
		ParentIDHeader:         "2",
		SamplingPriorityHeader: "high",
	}
	_, err = HTTPPropagator{}.Extract(carrier)
	assert.Equal(t, ErrSpanContextCorrupted, err)
}

func TestInjectNilOrEmptyContext(t *testing.T) {
	assert.Equal(t, ErrSpanContextNotFound, HTTPPropagator{}.Inject(nil, TextMapCarrier{}))
	assert.Equal(t, ErrSpanContextNotFound, HTTPPropagator{}.Inject(&trace.SpanContext{}, TextMapCarrier{}))
}
