package load

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is what an invocation consumes from the target: status and timing.
type Response struct {
	Status   int
	Duration time.Duration
}

// Transport sends one JSON payload to the target.
type Transport interface {
	Post(ctx context.Context, url string, body []byte, headers map[string]string) (Response, error)
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// TransportOptions configures the HTTP transport.
type TransportOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// HTTPTransport posts payloads with net/http. It never retries.
type HTTPTransport struct {
	client HTTPClient
	now    func() time.Time
}

// NewHTTPTransport creates a transport with its own connection pool.
func NewHTTPTransport(opts TransportOptions) *HTTPTransport {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}
	transport.MaxIdleConnsPerHost = 100
	return &HTTPTransport{
		client: &http.Client{Timeout: opts.Timeout, Transport: transport},
		now:    time.Now,
	}
}

// NewHTTPTransportWithClient wraps an existing client.
func NewHTTPTransportWithClient(c HTTPClient) *HTTPTransport {
	return &HTTPTransport{client: c, now: time.Now}
}

// Post sends body with Content-Type application/json. The response body is
// drained and discarded.
func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	start := t.now()
	resp, err := t.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return Response{Status: resp.StatusCode, Duration: t.now().Sub(start)}, nil
}
