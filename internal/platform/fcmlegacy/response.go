package fcmlegacy

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

var httpStatuses = map[int]status.Status{
	http.StatusOK:                  status.Success,
	http.StatusBadRequest:          status.Error,
	http.StatusUnauthorized:        status.Error,
	http.StatusTooManyRequests:     status.TemporaryError,
	http.StatusInternalServerError: status.TemporaryError,
	http.StatusBadGateway:          status.TemporaryError,
	http.StatusServiceUnavailable:  status.TemporaryError,
}

// Error strings reported per result in the legacy response body. A
// recognized error refines the HTTP-level result; anything else keeps it.
var resultErrors = map[string]status.Status{
	"MissingRegistration":       status.InvalidEndpoint,
	"InvalidRegistration":       status.InvalidEndpoint,
	"NotRegistered":             status.InvalidEndpoint,
	"Unavailable":               status.TemporaryError,
	"InternalServerError":       status.TemporaryError,
	"DeviceMessageRateExceeded": status.TemporaryError,
	"TopicsMessageRateExceeded": status.TemporaryError,
	"MismatchSenderId":          status.Error,
	"InvalidPackageName":        status.Error,
	"MessageTooBig":             status.Error,
	"InvalidDataKey":            status.Error,
	"InvalidTtl":                status.Error,
}

type endpointResult struct {
	reply   *transport.Reply
	err     error
	timeout bool
}

// Response resolves the canonical status per registration id of one batch.
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

func (r *Response) Endpoints() []string {
	return r.endpoints
}

// Status reports the delivery outcome for one registration id, computed
// lazily from its raw reply and cached.
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
	if coarse != status.Success {
		return coarse
	}

	// A 200 reply still reports per-message failure inside the body.
	if reason := resultError(res.reply.Body); reason != "" {
		if refined, ok := resultErrors[reason]; ok {
			return refined
		}
		return status.Unknown
	}
	return status.Success
}

func resultError(body []byte) string {
	var parsed struct {
		Results []struct {
			Error string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if len(parsed.Results) == 0 {
		return ""
	}
	return parsed.Results[0].Error
}
