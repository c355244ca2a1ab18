package wns

import (
	"net/http"
	"strings"
	"sync"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

// Coarse mapping from HTTP status to a default delivery status. 410 Gone
// means the channel has expired for good, WNS's "forget this device" signal,
// kept distinct from an ordinary invalid channel.
var httpStatuses = map[int]status.Status{
	http.StatusOK:                  status.Success,
	http.StatusBadRequest:          status.Error,
	http.StatusUnauthorized:        status.Error,
	http.StatusForbidden:           status.Error,
	http.StatusNotFound:            status.InvalidEndpoint,
	http.StatusNotAcceptable:       status.TemporaryError,
	http.StatusGone:                status.FeedbackDeleted,
	http.StatusPreconditionFailed:  status.TemporaryError,
	http.StatusInternalServerError: status.TemporaryError,
	http.StatusBadGateway:          status.TemporaryError,
	http.StatusServiceUnavailable:  status.TemporaryError,
}

// Refinement keyed by the X-WNS-Status header: a 200 reply may still report
// that the notification was dropped or the channel throttled.
var wnsStatuses = map[string]status.Status{
	"received":         status.Success,
	"dropped":          status.Error,
	"channelthrottled": status.TemporaryError,
}

type endpointResult struct {
	reply   *transport.Reply
	err     error
	timeout bool
}

// Response resolves the canonical status per channel URI of one batch.
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

// Status reports the delivery outcome for one channel URI.
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

	if res.reply.Header != nil {
		wnsStatus := strings.ToLower(res.reply.Header.Get("X-WNS-Status"))
		if refined, ok := wnsStatuses[wnsStatus]; ok && coarse == status.Success {
			return refined
		}
	}
	return coarse
}
