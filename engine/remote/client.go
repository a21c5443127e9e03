package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultEndpoint is the public Piston execute endpoint
const DefaultEndpoint = "https://emkc.org/api/v2/piston/execute"

const maxResponseBytes = 4 << 20

// ErrHTTPStatus is returned when the execution API answers with a 4xx/5xx status
var ErrHTTPStatus = errors.New("execution API returned an error status")

// Client sends one execution request to the execution API
type Client interface {
	Execute(ctx context.Context, req PistonRequest) (PistonResponse, error)
}

// HTTPClient implements Client over HTTP
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

// HTTPClientOption defines a functional option for HTTPClient
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// NewHTTPClient creates a client posting to endpoint with the given transport timeout
func NewHTTPClient(endpoint string, timeout time.Duration, opts ...HTTPClientOption) *HTTPClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	c := &HTTPClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Execute posts the request and decodes the reply
func (c *HTTPClient) Execute(ctx context.Context, req PistonRequest) (PistonResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return PistonResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return PistonResponse{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return PistonResponse{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return PistonResponse{}, fmt.Errorf("reading response: %w", err)
	}

	var out PistonResponse
	if resp.StatusCode >= http.StatusBadRequest {
		// error bodies are {"message": "..."}; fall back to the status text
		if json.Unmarshal(raw, &out) == nil && out.Message != "" {
			return out, fmt.Errorf("%w: %d: %s", ErrHTTPStatus, resp.StatusCode, out.Message)
		}
		return out, fmt.Errorf("%w: %d: %s", ErrHTTPStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return PistonResponse{}, fmt.Errorf("decoding response: %w", err)
	}

	return out, nil
}
