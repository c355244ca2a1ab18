// Package email implements the generic email fallback: endpoints are email
// addresses, the mail engine itself is an injected collaborator.
package email

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

// Mailer is the outbound mail collaborator.
type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Payload accumulates the subject and body of one notification email.
type Payload struct {
	elements map[string]string
}

func NewPayload() *Payload {
	return &Payload{elements: map[string]string{}}
}

// SetSubject sets the email subject.
func (p *Payload) SetSubject(subject string) *Payload {
	p.elements["subject"] = subject
	return p
}

// SetBody sets the email body.
func (p *Payload) SetBody(body string) *Payload {
	p.elements["body"] = body
	return p
}

// Marshal serializes the payload fields.
func (p *Payload) Marshal() ([]byte, error) {
	return json.Marshal(p.elements)
}

// Dispatcher sends one email per endpoint through the Mailer.
type Dispatcher struct {
	mailer Mailer
	from   string
	logger *slog.Logger
	opts   dispatch.Options
}

func NewDispatcher(mailer Mailer, from string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mailer: mailer,
		from:   from,
		logger: logger.With("component", "EmailDispatcher"),
	}
}

// SetOptions bounds the per-endpoint fan-out concurrency.
func (d *Dispatcher) SetOptions(opts dispatch.Options) *Dispatcher {
	d.opts = opts
	return d
}

// Push sends the payload to every address of the batch.
func (d *Dispatcher) Push(ctx context.Context, payload *Payload, endpoints []string) (*Response, error) {
	if payload == nil {
		return nil, dispatch.ErrNilPayload
	}
	if len(endpoints) == 0 {
		return nil, dispatch.ErrEmptyBatch
	}

	if d.mailer == nil {
		d.logger.Warn("Tried to push email notification but no mailer is configured", "endpoint", endpoints[0])
		return newFailedResponse(endpoints), nil
	}

	subject := payload.elements["subject"]
	body := payload.elements["body"]

	errs := make([]error, len(endpoints))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Limit())

	for i, endpoint := range endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			var sendErr error
			if err := gctx.Err(); err != nil {
				sendErr = err
			} else if sendErr = d.mailer.Send(gctx, d.from, endpoint, subject, body); sendErr != nil {
				d.logger.Warn("Sending email notification failed", "endpoint", endpoint, "message", sendErr.Error())
			}
			mu.Lock()
			errs[i] = sendErr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return newResponse(endpoints, errs), nil
}

// Response resolves the canonical status per address of one batch.
type Response struct {
	endpoints []string
	errs      map[string]error
	failed    bool
}

func newResponse(endpoints []string, errs []error) *Response {
	byEndpoint := make(map[string]error, len(endpoints))
	for i, e := range endpoints {
		byEndpoint[e] = errs[i]
	}
	return &Response{endpoints: endpoints, errs: byEndpoint}
}

func newFailedResponse(endpoints []string) *Response {
	return &Response{endpoints: endpoints, failed: true}
}

func (r *Response) Endpoints() []string {
	return r.endpoints
}

// Status reports the delivery outcome for one address.
func (r *Response) Status(endpoint string) status.Status {
	if r.failed {
		for _, e := range r.endpoints {
			if e == endpoint {
				return status.Error
			}
		}
		return status.Unknown
	}
	err, ok := r.errs[endpoint]
	if !ok {
		return status.Unknown
	}
	if err != nil {
		return status.Error
	}
	return status.Success
}
