package wns

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-push-dispatch/internal/auth"
	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// Dispatcher sends notifications through WNS, one HTTP POST per channel URI.
// Endpoints are the full channel URIs issued to the app by Windows.
type Dispatcher struct {
	client  transport.Client
	logger  *slog.Logger
	opts    dispatch.Options
	timeout transport.Options

	tokens *auth.TokenSource
}

func NewDispatcher(client transport.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "WNSDispatcher"),
	}
}

// SetCredential configures the Live Connect application identity used to
// obtain OAuth bearer tokens, fetched lazily and cached until expiry.
func (d *Dispatcher) SetCredential(clientID, clientSecret string) *Dispatcher {
	d.tokens = auth.NewTokenSource(auth.LiveConnectFetch(clientID, clientSecret, d.client), d.logger)
	return d
}

// SetTokenSource replaces the bearer token source.
func (d *Dispatcher) SetTokenSource(ts *auth.TokenSource) *Dispatcher {
	d.tokens = ts
	return d
}

// SetTimeouts overrides the connect and total response timeouts.
func (d *Dispatcher) SetTimeouts(opts transport.Options) *Dispatcher {
	d.timeout = opts
	return d
}

// SetOptions bounds the per-endpoint fan-out concurrency.
func (d *Dispatcher) SetOptions(opts dispatch.Options) *Dispatcher {
	d.opts = opts
	return d
}

// Push sends the payload to every channel URI of the batch.
func (d *Dispatcher) Push(ctx context.Context, payload *Payload, endpoints []string) (*Response, error) {
	if payload == nil {
		return nil, dispatch.ErrNilPayload
	}
	if len(endpoints) == 0 {
		return nil, dispatch.ErrEmptyBatch
	}

	var token string
	if d.tokens != nil {
		token = d.tokens.Token(ctx)
	}

	if token == "" {
		d.logger.Warn("Tried to push WNS notification but wasn't authenticated", "endpoint", endpoints[0])
		return newFailedResponse(endpoints, http.StatusUnauthorized), nil
	}

	headers := map[string]string{
		"Content-Type":           payload.ContentType(),
		"X-WNS-Type":             string(payload.Kind()),
		"X-WNS-RequestForStatus": "true",
		"Authorization":          "Bearer " + token,
	}
	body := payload.Marshal()

	results := make([]endpointResult, len(endpoints))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Limit())

	for i, endpoint := range endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			var res endpointResult
			if err := gctx.Err(); err != nil {
				res = endpointResult{err: err, timeout: transport.IsTimeout(err)}
			} else {
				res = d.send(gctx, endpoint, headers, body)
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return newResponse(endpoints, results), nil
}

func (d *Dispatcher) send(ctx context.Context, endpoint string, headers map[string]string, body []byte) endpointResult {
	reply, err := d.client.Do(ctx, http.MethodPost, endpoint, headers, body, d.timeout)
	if err != nil {
		d.logger.Warn("Dispatching WNS notification failed", "endpoint", endpoint, "message", err.Error())
		return endpointResult{err: err, timeout: transport.IsTimeout(err)}
	}
	return endpointResult{reply: reply}
}

func newFailedResponse(endpoints []string, code int) *Response {
	results := make([]endpointResult, len(endpoints))
	for i := range results {
		results[i] = endpointResult{reply: &transport.Reply{StatusCode: code}}
	}
	return newResponse(endpoints, results)
}
