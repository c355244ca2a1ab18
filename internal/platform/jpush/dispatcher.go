package jpush

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

const (
	// SendURL accepts the whole batch in one request.
	SendURL = "https://api.jpush.cn/v3/push"
	// ReportURL answers per-registration-id delivery status for a msg id.
	ReportURL = "https://report.jpush.cn/v3/status/message"
)

// Dispatcher sends notifications through JPush. Unlike the unary providers,
// the full endpoint batch travels in a single wire request.
type Dispatcher struct {
	client  transport.Client
	logger  *slog.Logger
	timeout transport.Options

	appKey       string
	masterSecret string
}

func NewDispatcher(client transport.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "JPushDispatcher"),
	}
}

// SetCredentials sets the static application key and master secret used for
// basic authentication.
func (d *Dispatcher) SetCredentials(appKey, masterSecret string) *Dispatcher {
	d.appKey = appKey
	d.masterSecret = masterSecret
	return d
}

// SetTimeouts overrides the connect and total response timeouts.
func (d *Dispatcher) SetTimeouts(opts transport.Options) *Dispatcher {
	d.timeout = opts
	return d
}

// Push sends the payload to the whole batch in one request and returns a
// BatchResponse that demultiplexes per-endpoint outcomes.
func (d *Dispatcher) Push(ctx context.Context, payload *Payload, endpoints []string) (*BatchResponse, error) {
	if payload == nil {
		return nil, dispatch.ErrNilPayload
	}
	if len(endpoints) == 0 {
		return nil, dispatch.ErrEmptyBatch
	}

	if d.appKey == "" || d.masterSecret == "" {
		d.logger.Warn("Tried to push JPush notification but credentials are not configured", "endpoint", endpoints[0])
		return newBatchResponse(d, endpoints, &transport.Reply{StatusCode: http.StatusUnauthorized}, nil, false), nil
	}

	body, err := payload.marshalAudience(endpoints, false)
	if err != nil {
		d.logger.Warn("Serializing JPush notification failed", "message", err.Error())
		return newBatchResponse(d, endpoints, nil, err, false), nil
	}

	reply, err := d.client.Do(ctx, http.MethodPost, SendURL, d.headers(), body, d.timeout)
	if err != nil {
		d.logger.Warn("Dispatching JPush notification failed", "endpoint", endpoints[0], "message", err.Error())
		return newBatchResponse(d, endpoints, nil, err, transport.IsTimeout(err)), nil
	}

	return d.response(ctx, endpoints, reply), nil
}

func (d *Dispatcher) headers() map[string]string {
	basic := base64.StdEncoding.EncodeToString([]byte(d.appKey + ":" + d.masterSecret))
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Basic " + basic,
	}
}
