package fcm

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

// SendURL is the project-scoped v1 send endpoint prefix.
const SendURL = "https://fcm.googleapis.com/v1/projects/"

// Dispatcher sends notifications through the FCM v1 API. The v1 API is unary:
// even though Push accepts a batch, one HTTP request is issued per endpoint.
type Dispatcher struct {
	client  transport.Client
	logger  *slog.Logger
	opts    dispatch.Options
	timeout transport.Options

	tokens    *auth.TokenSource
	projectID string
}

// NewDispatcher creates an FCM v1 dispatcher on the given transport.
func NewDispatcher(client transport.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// SetProjectID sets the FCM project whose messages:send endpoint is targeted.
func (d *Dispatcher) SetProjectID(projectID string) *Dispatcher {
	d.projectID = projectID
	return d
}

// SetCredential configures the service account used to obtain OAuth bearer
// tokens. It fails fast on a malformed private key; the token itself is
// fetched lazily on the first Push and cached until expiry.
func (d *Dispatcher) SetCredential(iss string, privateKeyPEM []byte) error {
	cred, err := auth.ParseGoogleCredential(iss, privateKeyPEM)
	if err != nil {
		return err
	}
	d.tokens = auth.NewTokenSource(auth.GoogleFetch(cred, d.client), d.logger)
	return nil
}

// SetTokenSource replaces the bearer token source. Useful when tokens are
// managed outside the dispatcher.
func (d *Dispatcher) SetTokenSource(ts *auth.TokenSource) *Dispatcher {
	d.tokens = ts
	return d
}

// SetTimeouts overrides the connect and total response timeouts for each
// wire request.
func (d *Dispatcher) SetTimeouts(opts transport.Options) *Dispatcher {
	d.timeout = opts
	return d
}

// SetOptions bounds the per-endpoint fan-out concurrency.
func (d *Dispatcher) SetOptions(opts dispatch.Options) *Dispatcher {
	d.opts = opts
	return d
}

// Push sends the payload to every endpoint of the batch and returns one
// Response covering all of them. Only nil payloads and empty batches fail
// synchronously; every other failure is absorbed into the Response.
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
		d.logger.Warn("Tried to push FCM notification but wasn't authenticated", "endpoint", endpoints[0])
		return newFailedResponse(endpoints, http.StatusUnauthorized), nil
	}

	if d.projectID == "" {
		d.logger.Warn("Tried to push FCM notification but project id is not provided", "endpoint", endpoints[0])
		return newFailedResponse(endpoints, http.StatusBadRequest), nil
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + token,
	}
	url := SendURL + d.projectID + "/messages:send"

	// Topic and condition sends target a routing expression rather than the
	// individual endpoints, so a single wire request covers the whole batch.
	if payload.HasTopic() || payload.HasCondition() {
		field, value := "topic", ""
		if v, ok := payload.elements["topic"].(string); ok {
			value = v
		}
		if payload.HasCondition() {
			field = "condition"
			if v, ok := payload.elements["condition"].(string); ok {
				value = v
			}
		}
		res := d.send(ctx, url, headers, payload, field, value)
		results := make([]endpointResult, len(endpoints))
		for i := range results {
			results[i] = res
		}
		return newResponse(endpoints, results), nil
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
				// Cancelled before this send started. Completed siblings
				// keep their results.
				res = endpointResult{err: err, timeout: transport.IsTimeout(err)}
			} else {
				res = d.send(gctx, url, headers, payload, "token", endpoint)
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

func (d *Dispatcher) send(ctx context.Context, url string, headers map[string]string, payload *Payload, field, value string) endpointResult {
	body, err := payload.marshalWithTarget(field, value, false)
	if err != nil {
		d.logger.Warn("Serializing FCM notification failed", "message", err.Error())
		return endpointResult{err: err}
	}

	reply, err := d.client.Do(ctx, http.MethodPost, url, headers, body, d.timeout)
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
