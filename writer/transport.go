package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/tracepipe/tracepipe/trace"
)

// Transport delivers a batch of traces to a collector. Implementations
// may fail; the writer treats any error as the loss of that batch and
// never re-submits it.
type Transport interface {
	SendTraces(ctx context.Context, traces [][]*trace.Span) error
}

// DefaultAgentAddress is where a collection agent on the same host is
// expected to listen.
const DefaultAgentAddress = "localhost:8126"

const tracesPath = "/v0.4/traces"

// Request headers identifying the payload and its producer.
const (
	traceCountHeader = "X-Tracepipe-Trace-Count"
	runtimeIDHeader  = "X-Tracepipe-Runtime-Id"
)

// HTTPTransport ships traces to an agent as a JSON array of arrays of
// spans, one POST per batch.
type HTTPTransport struct {
	url       string
	runtimeID string
	client    *http.Client
}

// NewHTTPTransport returns a transport posting to the agent at addr
// (host:port). runtimeID identifies this tracer instance to the agent
// and may be empty.
func NewHTTPTransport(addr, runtimeID string, client *http.Client) *HTTPTransport {
	if addr == "" {
		addr = DefaultAgentAddress
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTransport{
		url:       fmt.Sprintf("http://%s%s", addr, tracesPath),
		runtimeID: runtimeID,
		client:    client,
	}
}

// SendTraces implements Transport.
func (t *HTTPTransport) SendTraces(ctx context.Context, traces [][]*trace.Span) error {
	body, err := json.Marshal(traces)
	if err != nil {
		return errors.Wrap(err, "encoding trace payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building agent request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(traceCountHeader, strconv.Itoa(len(traces)))
	if t.runtimeID != "" {
		req.Header.Set(runtimeIDHeader, t.runtimeID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting traces to agent")
	}
	defer resp.Body.Close()
	// Drain so the connection is reusable.
	_, _ = io.Copy(ioutil.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return errors.Errorf("agent returned %s", resp.Status)
	}
	return nil
}
