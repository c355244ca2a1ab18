package pap

import (
	"encoding/xml"
	"net/http"
	"sync"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

var httpStatuses = map[int]status.Status{
	http.StatusOK:                  status.Success,
	http.StatusBadRequest:          status.Error,
	http.StatusUnauthorized:        status.Error,
	http.StatusForbidden:           status.Error,
	http.StatusInternalServerError: status.TemporaryError,
	http.StatusServiceUnavailable:  status.TemporaryError,
}

// PAP response-result codes. A 200 reply still carries the real outcome in
// the result code of the XML fault document.
var resultCodes = map[string]status.Status{
	"1000": status.Success,
	"1001": status.Success,
	"2000": status.Error,
	"2001": status.Error,
	"2002": status.InvalidEndpoint,
	"2004": status.Error,
	"3000": status.Error,
	"4000": status.TemporaryError,
	"4001": status.TemporaryError,
	"4002": status.TemporaryError,
}

type endpointResult struct {
	reply   *transport.Reply
	err     error
	timeout bool
}

// Response resolves the canonical status per endpoint of one PAP batch.
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

// Status reports the delivery outcome for one endpoint.
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

	code := resultCode(res.reply.Body)
	if code == "" {
		return status.Unknown
	}
	if s, ok := resultCodes[code]; ok {
		return s
	}
	return status.Unknown
}

// resultCode extracts the response-result code attribute from the reply XML.
func resultCode(body []byte) string {
	var parsed struct {
		PushResponse struct {
			ResponseResult struct {
				Code string `xml:"code,attr"`
			} `xml:"response-result"`
		} `xml:"push-response"`
	}
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.PushResponse.ResponseResult.Code
}
