package apnsbinary

import (
	"errors"
	"sync"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

var errNotConfigured = errors.New("no gateway connection configured")

// Mapping from the error frame status byte to the canonical status.
var statusCodes = map[byte]status.Status{
	StatusNoError:          status.Success,
	StatusProcessingError:  status.TemporaryError,
	StatusMissingToken:     status.Error,
	StatusMissingTopic:     status.Error,
	StatusMissingPayload:   status.Error,
	StatusInvalidTokenSize: status.InvalidEndpoint,
	StatusInvalidTopicSize: status.Error,
	StatusInvalidPayload:   status.Error,
	StatusInvalidToken:     status.InvalidEndpoint,
	StatusShutdown:         status.TemporaryError,
}

// endpointResult captures one frame's outcome: the gateway status byte when
// the frame was written, or the transport error that prevented it.
type endpointResult struct {
	sent bool
	code byte
	err  error
}

// Response resolves the canonical status per device token of one batch.
type Response struct {
	endpoints []string
	results   map[string]endpointResult

	mu       sync.Mutex
	statuses map[string]status.Status
}

func newResponse(endpoints []string, results []endpointResult) *Response {
	byEndpoint := make(map[string]endpointResult, len(endpoints))
	for i, e := range endpoints {
		byEndpoint[e] = results[i]
	}
	return &Response{
		endpoints: endpoints,
		results:   byEndpoint,
		statuses:  make(map[string]status.Status, len(endpoints)),
	}
}

func newFailedResponse(endpoints []string, err error) *Response {
	results := make([]endpointResult, len(endpoints))
	for i := range results {
		results[i] = endpointResult{err: err}
	}
	return newResponse(endpoints, results)
}

func (r *Response) Endpoints() []string {
	return r.endpoints
}

// Status reports the delivery outcome for one device token.
func (r *Response) Status(endpoint string) status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.statuses[endpoint]; ok {
		return s
	}

	res, ok := r.results[endpoint]
	if !ok {
		return status.Unknown
	}

	s := resolve(res)
	r.statuses[endpoint] = s
	return s
}

func resolve(res endpointResult) status.Status {
	if !res.sent {
		if transport.IsTimeout(res.err) {
			return status.TemporaryError
		}
		return status.Error
	}
	if s, ok := statusCodes[res.code]; ok {
		return s
	}
	return status.Unknown
}
