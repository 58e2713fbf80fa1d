// Package propagation moves span contexts across process boundaries
// through header-like carriers. Header names are a convention shared
// with the collection side; extraction is case-insensitive so carriers
// with canonicalizing header tables (net/http among them) round-trip
// cleanly.
package propagation

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tracepipe/tracepipe/trace"
)

// Header names used on the wire.
const (
	TraceIDHeader          = "x-tracepipe-trace-id"
	ParentIDHeader         = "x-tracepipe-parent-id"
	SamplingPriorityHeader = "x-tracepipe-sampling-priority"
	OriginHeader           = "x-tracepipe-origin"

	// BaggagePrefix precedes every baggage key on the wire.
	BaggagePrefix = "x-tracepipe-baggage-"
)

// ErrSpanContextNotFound means the carrier held no trace identifiers.
var ErrSpanContextNotFound = errors.New("no span context found in carrier")

// ErrSpanContextCorrupted means identifiers were present but unusable.
var ErrSpanContextCorrupted = errors.New("span context in carrier is corrupted")

// TextMapWriter is the write half of a carrier.
type TextMapWriter interface {
	Set(key, value string)
}

// TextMapReader is the read half of a carrier. Handlers returning an
// error terminate iteration and surface that error.
type TextMapReader interface {
	ForeachKey(handler func(key, value string) error) error
}

// TextMapCarrier adapts a plain map to both carrier halves.
type TextMapCarrier map[string]string

// Set implements TextMapWriter.
func (c TextMapCarrier) Set(key, value string) {
	c[key] = value
}

// ForeachKey implements TextMapReader.
func (c TextMapCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeadersCarrier adapts an http.Header to both carrier halves.
type HTTPHeadersCarrier http.Header

// Set implements TextMapWriter.
func (c HTTPHeadersCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// ForeachKey implements TextMapReader.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, vs := range c {
		for _, v := range vs {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// HTTPPropagator injects and extracts span contexts using the
// x-tracepipe-* header convention.
type HTTPPropagator struct{}

// Inject writes the context's identifiers, sampling decision, origin
// and baggage into the carrier.
func (HTTPPropagator) Inject(ctx *trace.SpanContext, carrier TextMapWriter) error {
	if ctx == nil || ctx.TraceID() == 0 || ctx.SpanID() == 0 {
		return ErrSpanContextNotFound
	}
	carrier.Set(TraceIDHeader, strconv.FormatUint(ctx.TraceID(), 10))
	carrier.Set(ParentIDHeader, strconv.FormatUint(ctx.SpanID(), 10))
	if p, ok := ctx.SamplingPriority(); ok {
		carrier.Set(SamplingPriorityHeader, strconv.Itoa(p))
	}
	if o := ctx.Origin(); o != "" {
		carrier.Set(OriginHeader, o)
	}
	ctx.ForeachBaggageItem(func(k, v string) bool {
		carrier.Set(BaggagePrefix+k, v)
		return true
	})
	return nil
}

// Extract reads a span context back out of the carrier. Key matching is
// case-insensitive. Returns ErrSpanContextNotFound when neither trace
// nor parent ID is present, and ErrSpanContextCorrupted when they are
// present but not parseable as unsigned integers.
func (HTTPPropagator) Extract(carrier TextMapReader) (*trace.SpanContext, error) {
	var (
		traceID, parentID uint64
		priority          *int
		origin            string
		baggage           map[string]string
		sawID, corrupted  bool
	)

	err := carrier.ForeachKey(func(key, value string) error {
		switch k := strings.ToLower(key); {
		case k == TraceIDHeader:
			sawID = true
			id, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				corrupted = true
				return nil
			}
			traceID = id
		case k == ParentIDHeader:
			sawID = true
			id, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				corrupted = true
				return nil
			}
			parentID = id
		case k == SamplingPriorityHeader:
			p, err := strconv.Atoi(value)
			if err != nil {
				corrupted = true
				return nil
			}
			priority = &p
		case k == OriginHeader:
			origin = value
		case strings.HasPrefix(k, BaggagePrefix):
			if baggage == nil {
				baggage = map[string]string{}
			}
			baggage[strings.TrimPrefix(k, BaggagePrefix)] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if corrupted {
		return nil, ErrSpanContextCorrupted
	}
	if !sawID || traceID == 0 || parentID == 0 {
		return nil, ErrSpanContextNotFound
	}

	ctx := trace.NewSpanContext(traceID, parentID)
	if priority != nil {
		ctx = ctx.WithSamplingPriority(*priority)
	}
	if origin != "" {
		ctx = ctx.WithOrigin(origin)
	}
	for k, v := range baggage {
		ctx = ctx.WithBaggageItem(k, v)
	}
	return ctx, nil
}
