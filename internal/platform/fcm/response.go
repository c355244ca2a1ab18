package fcm

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

// Coarse mapping from HTTP status class to a default delivery status. The
// machine-readable error status in the body refines it when recognized.
var httpStatuses = map[int]status.Status{
	http.StatusOK:                  status.Success,
	http.StatusBadRequest:          status.InvalidEndpoint,
	http.StatusUnauthorized:        status.Error,
	http.StatusForbidden:           status.Error,
	http.StatusNotFound:            status.InvalidEndpoint,
	http.StatusTooManyRequests:     status.TemporaryError,
	http.StatusInternalServerError: status.TemporaryError,
	http.StatusBadGateway:          status.TemporaryError,
	http.StatusServiceUnavailable:  status.TemporaryError,
}

// Refinement keyed by the google.rpc error status echoed in the body. A
// recognized reason overrides the coarse result; anything else keeps it.
var errorStatuses = map[string]status.Status{
	"UNREGISTERED":           status.InvalidEndpoint,
	"INVALID_ARGUMENT":       status.InvalidEndpoint,
	"NOT_FOUND":              status.InvalidEndpoint,
	"UNAVAILABLE":            status.TemporaryError,
	"INTERNAL":               status.TemporaryError,
	"QUOTA_EXCEEDED":         status.TemporaryError,
	"RESOURCE_EXHAUSTED":     status.TemporaryError,
	"SENDER_ID_MISMATCH":     status.Error,
	"PERMISSION_DENIED":      status.Error,
	"UNAUTHENTICATED":        status.Error,
	"THIRD_PARTY_AUTH_ERROR": status.Error,
}

// endpointResult is the raw outcome of one wire request: either the
// provider's reply or the transport error that replaced it.
type endpointResult struct {
	reply   *transport.Reply
	err     error
	timeout bool
}

// Response resolves the canonical status per endpoint of one FCM v1 batch.
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

// Endpoints lists the batch in dispatch order.
func (r *Response) Endpoints() []string {
	return r.endpoints
}

// Status reports the delivery outcome for one endpoint. The status is
// computed lazily from the raw reply and cached; repeated queries never
// recompute differently. Unknown endpoints resolve to status.Unknown.
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
	if res.err != nil {
		if res.timeout {
			return status.TemporaryError
		}
		return status.Error
	}

	coarse, ok := httpStatuses[res.reply.StatusCode]
	if !ok {
		coarse = status.Unknown
	}
	if coarse == status.Success {
		return coarse
	}

	if reason := errorStatus(res.reply.Body); reason != "" {
		if refined, ok := errorStatuses[reason]; ok {
			return refined
		}
	}
	return coarse
}

func errorStatus(body []byte) string {
	var parsed struct {
		Error struct {
			Status string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Error.Status
}
