package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBody caps how much of a response body is kept for logging.
const maxResponseBody = 512

// Request is one delivery attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is what the endpoint answered.
type Response struct {
	StatusCode int
	Body       string
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Transport sends a request and returns the endpoint's response.
// Cancellation and per-attempt deadlines arrive through ctx.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the Transport backed by net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client. A nil client uses a fresh http.Client;
// timeouts are applied per attempt by the engine.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = new(http.Client)
	}

	return &HTTPTransport{
		client: client,
	}
}

// Send performs the HTTP request and reads at most maxResponseBody bytes of the answer.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header = req.Header.Clone()

	resp, err := t.client.Do(httpReq) //nolint:gosec // Endpoint comes from trusted configuration.
	if err != nil {
		return nil, fmt.Errorf("post alarm: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}, nil
}
