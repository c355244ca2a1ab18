// Package dispatch contains the public contracts shared by every provider
// dispatcher: the per-batch Response interface, the synchronous error
// conditions, and the fan-out options.
package dispatch

import (
	"errors"

	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

// ErrEmptyBatch is returned by Push when no endpoints are given.
var ErrEmptyBatch = errors.New("no endpoints provided")

// ErrNilPayload is returned by Push when the payload is nil. Passing a
// payload built for a different provider is impossible: each dispatcher's
// Push accepts only its own payload type.
var ErrNilPayload = errors.New("nil payload")

// Response is the per-batch result of one Push call. Implementations own the
// raw provider reply and resolve the canonical status per endpoint without
// recomputation drift: repeated queries for the same endpoint always return
// the same value.
type Response interface {
	// Status reports the delivery outcome for one endpoint of the batch.
	// Querying an endpoint that was not part of the batch returns
	// status.Unknown, never panics.
	Status(endpoint string) status.Status

	// Endpoints lists the batch in the order it was given to Push.
	Endpoints() []string
}

// Options bounds the per-endpoint fan-out of a single Push call.
type Options struct {
	// MaxConcurrency limits how many per-endpoint requests are in flight at
	// once for providers that fan a batch out into one request per endpoint.
	// Zero or negative means sequential.
	MaxConcurrency int
}

// Limit normalizes MaxConcurrency for errgroup.SetLimit.
func (o Options) Limit() int {
	if o.MaxConcurrency < 1 {
		return 1
	}
	return o.MaxConcurrency
}
