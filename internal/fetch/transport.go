package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Request describes a single logical outbound call.
type Request struct {
	Method  string
	URL     string
	Payload []byte
	Headers map[string]string
}

// Response is the materialized result of a completed call.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Transport performs one network attempt. Implementations must honor the
// context and the per-call proxy (empty string means direct connection).
type Transport interface {
	RoundTrip(ctx context.Context, req Request, proxyURL string) (*Response, error)
}

// HTTPTransport is the default Transport built on net/http. It keeps one
// client per proxy so keep-alive pools are reused across attempts.
type HTTPTransport struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewHTTPTransport creates an HTTPTransport with a per-attempt timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		timeout: timeout,
		clients: make(map[string]*http.Client),
	}
}

// RoundTrip executes the request through the given proxy.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req Request, proxyURL string) (*Response, error) {
	client, err := t.client(proxyURL)
	if err != nil {
		return nil, err
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Payload) > 0 {
		body = bytes.NewReader(req.Payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read body: %w", err)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Headers:    resp.Header,
	}, nil
}

func (t *HTTPTransport) client(proxyURL string) (*http.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[proxyURL]; ok {
		return c, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url %q: %w", proxyURL, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	c := &http.Client{Transport: transport}
	t.clients[proxyURL] = c
	return c, nil
}
