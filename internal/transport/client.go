// Package transport supplies the generic HTTP send capability used by every
// HTTP-based dispatcher. Dispatchers never touch net/http directly: they hand
// a method, URL, headers and body to a Client and get back a Reply or a
// transport error that they convert into a synthetic per-endpoint outcome.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout is used for both the connect and the total response timeout
// when the caller supplies none.
const DefaultTimeout = 15 * time.Second

// Options configures one send. Both timeouts are always finite: zero values
// are replaced by DefaultTimeout.
type Options struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultTimeout
	}
	return o
}

// Reply is the provider's unmodified answer to one request.
type Reply struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is the outbound HTTP collaborator.
type Client interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte, opts Options) (*Reply, error)
}

// Func adapts a plain function to the Client interface. Used heavily in tests.
type Func func(ctx context.Context, method, url string, headers map[string]string, body []byte, opts Options) (*Reply, error)

func (f Func) Do(ctx context.Context, method, url string, headers map[string]string, body []byte, opts Options) (*Reply, error) {
	return f(ctx, method, url, headers, body, opts)
}

// HTTPClient implements Client on net/http with per-request timeouts. The
// underlying http.Client is built once per connect timeout and reused, so
// connections are pooled across sends.
type HTTPClient struct {
	provider string

	mu      sync.Mutex
	clients map[time.Duration]*http.Client
}

// NewHTTPClient returns a Client whose metrics are labeled with the given
// provider name.
func NewHTTPClient(provider string) *HTTPClient {
	return &HTTPClient{
		provider: provider,
		clients:  make(map[time.Duration]*http.Client),
	}
}

// client returns the pooled http.Client for one connect timeout, creating it
// on first use. The total response timeout rides on the request context, so
// it needs no client of its own.
func (c *HTTPClient) client(connectTimeout time.Duration) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[connectTimeout]; ok {
		return cl
	}
	cl := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
	c.clients[connectTimeout] = cl
	return cl
}

func (c *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string, body []byte, opts Options) (*Reply, error) {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client(opts.ConnectTimeout).Do(req)
	observe(c.provider, start, resp, err)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Reply{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}

// IsTimeout reports whether a transport error is a timeout as opposed to a
// generic network failure. Callers surface timeouts as a retryable outcome.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
