package apns

import (
	"net/http"
	"sync"

	"github.com/sideshow/apns2"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

// Coarse mapping from HTTP status to a default delivery status. The HTTP
// status alone is ambiguous (one 403 can mean five different things); the
// reason string refines it when recognized.
var httpStatuses = map[int]status.Status{
	http.StatusOK:              status.Success,
	http.StatusBadRequest:      status.InvalidEndpoint,
	http.StatusGone:            status.InvalidEndpoint,
	http.StatusTooManyRequests: status.TemporaryError,
}

// Refinement keyed by the response reason. A recognized reason overrides the
// coarse result; anything else keeps it. Unregistered is APNS telling us the device registration is gone for good,
// the HTTP/2 successor of a feedback service entry. It is surfaced distinctly
// so callers delete the registration instead of retrying it.
var reasonStatuses = map[string]status.Status{
	apns2.ReasonTopicDisallowed:           status.Error,
	apns2.ReasonBadCertificate:            status.Error,
	apns2.ReasonBadCertificateEnvironment: status.Error,
	apns2.ReasonInvalidProviderToken:      status.Error,
	apns2.ReasonMissingProviderToken:      status.Error,
	apns2.ReasonIdleTimeout:               status.TemporaryError,
	apns2.ReasonExpiredProviderToken:      status.TemporaryError,
	apns2.ReasonBadDeviceToken:            status.InvalidEndpoint,
	apns2.ReasonDeviceTokenNotForTopic:    status.InvalidEndpoint,
	apns2.ReasonUnregistered:              status.FeedbackDeleted,
}

type endpointResult struct {
	res *apns2.Response
	err error
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

func (r *Response) Endpoints() []string {
	return r.endpoints
}

// Status reports the delivery outcome for one device token, computed lazily
// and cached.
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
		if transport.IsTimeout(res.err) {
			return status.TemporaryError
		}
		return status.Error
	}

	coarse, ok := httpStatuses[res.res.StatusCode]
	if !ok {
		coarse = status.Unknown
	}
	if coarse == status.Success {
		return coarse
	}

	if refined, ok := reasonStatuses[res.res.Reason]; ok {
		return refined
	}
	return coarse
}
