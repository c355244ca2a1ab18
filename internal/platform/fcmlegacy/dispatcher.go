package fcmlegacy

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// SendURL is the legacy FCM send endpoint.
const SendURL = "https://fcm.googleapis.com/fcm/send"

// Dispatcher sends notifications through the legacy FCM HTTP API. One HTTP
// request is issued per registration id: the API accepts a `to` field with a
// single target, so the batch is fanned out inside Push.
type Dispatcher struct {
	client  transport.Client
	logger  *slog.Logger
	opts    dispatch.Options
	timeout transport.Options

	serverKey string
}

func NewDispatcher(client transport.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMLegacyDispatcher"),
	}
}

// SetServerKey sets the static server key used in the Authorization header.
func (d *Dispatcher) SetServerKey(key string) *Dispatcher {
	d.serverKey = key
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

// Push sends the payload to every registration id of the batch.
func (d *Dispatcher) Push(ctx context.Context, payload *Payload, endpoints []string) (*Response, error) {
	if payload == nil {
		return nil, dispatch.ErrNilPayload
	}
	if len(endpoints) == 0 {
		return nil, dispatch.ErrEmptyBatch
	}

	if d.serverKey == "" {
		d.logger.Warn("Tried to push FCM notification but no server key is configured", "endpoint", endpoints[0])
		return newFailedResponse(endpoints, http.StatusUnauthorized), nil
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "key=" + d.serverKey,
	}

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
				res = d.send(gctx, headers, payload, endpoint)
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

func (d *Dispatcher) send(ctx context.Context, headers map[string]string, payload *Payload, endpoint string) endpointResult {
	body, err := payload.marshalTo(endpoint, false)
	if err != nil {
		d.logger.Warn("Serializing FCM notification failed", "message", err.Error())
		return endpointResult{err: err}
	}

	reply, err := d.client.Do(ctx, http.MethodPost, SendURL, headers, body, d.timeout)
	if err != nil {
		d.logger.Warn("Dispatching FCM notification(s) failed", "message", err.Error())
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
