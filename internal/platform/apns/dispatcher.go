package apns

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Dispatcher sends notifications through the APNS HTTP/2 API. The API is
// unary, so the batch is fanned out into one request per device token.
type Dispatcher struct {
	client APNSClient
	topic  string
	logger *slog.Logger
	opts   dispatch.Options
}

// TokenConfig holds the credentials required to sign APNS provider tokens.
type TokenConfig struct {
	KeyID  string
	TeamID string
	// BundleID is the app bundle id used as the apns-topic header.
	BundleID string
	// P8KeyContent is the raw content of the .p8 signing key file.
	P8KeyContent string
}

// NewTokenDispatcher creates a dispatcher authenticating with a signed
// provider token. It parses the P8 key immediately to fail fast on bad
// credentials.
func NewTokenDispatcher(cfg TokenConfig, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})

	return NewDispatcher(client, cfg.BundleID, logger), nil
}

// NewCertificateDispatcher creates a dispatcher authenticating with a TLS
// client certificate.
func NewCertificateDispatcher(cert tls.Certificate, bundleID string, logger *slog.Logger) *Dispatcher {
	return NewDispatcher(apns2.NewClient(cert), bundleID, logger)
}

// NewDispatcher wires an existing client, typically an *apns2.Client.
func NewDispatcher(client APNSClient, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// SetOptions bounds the per-endpoint fan-out concurrency.
func (d *Dispatcher) SetOptions(opts dispatch.Options) *Dispatcher {
	d.opts = opts
	return d
}

// Push sends the payload to every device token of the batch and returns one
// Response covering all of them.
func (d *Dispatcher) Push(ctx context.Context, payload *Payload, endpoints []string) (*Response, error) {
	if payload == nil {
		return nil, dispatch.ErrNilPayload
	}
	if len(endpoints) == 0 {
		return nil, dispatch.ErrEmptyBatch
	}

	if d.client == nil {
		d.logger.Warn("Tried to push APNS notification but no client is configured", "endpoint", endpoints[0])
		return newFailedResponse(endpoints, &apns2.Response{
			StatusCode: http.StatusForbidden,
			Reason:     apns2.ReasonMissingProviderToken,
		}), nil
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
				res = endpointResult{err: err}
			} else {
				res = d.send(gctx, payload, endpoint)
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

func (d *Dispatcher) send(ctx context.Context, payload *Payload, endpoint string) endpointResult {
	n := &apns2.Notification{
		DeviceToken: endpoint,
		Topic:       d.topic,
		CollapseID:  payload.collapseID,
		Priority:    payload.priority,
		Payload:     payload.aps,
	}
	if payload.expiration > 0 {
		n.Expiration = time.Unix(payload.expiration, 0)
	}

	res, err := d.client.PushWithContext(ctx, n)
	if err != nil {
		d.logger.Warn("Dispatching APNS notification failed", "endpoint", endpoint, "message", err.Error())
		return endpointResult{err: err}
	}
	return endpointResult{res: res}
}

func newFailedResponse(endpoints []string, res *apns2.Response) *Response {
	results := make([]endpointResult, len(endpoints))
	for i := range results {
		results[i] = endpointResult{res: res}
	}
	return newResponse(endpoints, results)
}
