package jpush

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

var httpStatuses = map[int]status.Status{
	http.StatusBadRequest:          status.Error,
	http.StatusUnauthorized:        status.Error,
	http.StatusForbidden:           status.Error,
	http.StatusTooManyRequests:     status.TemporaryError,
	http.StatusInternalServerError: status.TemporaryError,
	http.StatusServiceUnavailable:  status.TemporaryError,
}

// JPush API error codes refining a rejected batch.
var errorCodes = map[int]status.Status{
	1003: status.Error,           // invalid parameter
	1004: status.Error,           // verification failed
	1008: status.Error,           // invalid app key
	1011: status.InvalidEndpoint, // no target satisfies the audience
	1030: status.TemporaryError,  // internal service timeout
}

// Per-registration-id status codes of the report service.
var reportStatuses = map[int]status.Status{
	0: status.Success,
	1: status.Unknown, // not yet received, no verdict
	2: status.InvalidEndpoint,
	3: status.InvalidEndpoint,
	4: status.TemporaryError,
}

// BatchResponse demultiplexes one JPush reply into per-endpoint outcomes.
// An accepted batch only yields a msg id; the per-endpoint verdicts are
// fetched from the report service on first status query.
type BatchResponse struct {
	dispatcher *Dispatcher
	endpoints  []string

	reply   *transport.Reply
	err     error
	timeout bool

	mu       sync.Mutex
	fetched  bool
	report   map[string]int
	statuses map[string]status.Status
}

func newBatchResponse(d *Dispatcher, endpoints []string, reply *transport.Reply, err error, timeout bool) *BatchResponse {
	return &BatchResponse{
		dispatcher: d,
		endpoints:  endpoints,
		reply:      reply,
		err:        err,
		timeout:    timeout,
		statuses:   make(map[string]status.Status, len(endpoints)),
	}
}

// accepted reports whether the push endpoint took the batch. JPush answers
// 200, or 202 when the batch is queued for asynchronous delivery.
func accepted(code int) bool {
	return code == http.StatusOK || code == http.StatusAccepted
}

func (d *Dispatcher) response(ctx context.Context, endpoints []string, reply *transport.Reply) *BatchResponse {
	resp := newBatchResponse(d, endpoints, reply, nil, false)
	if accepted(reply.StatusCode) {
		resp.fetchReport(ctx)
	}
	return resp
}

// fetchReport asks the report service for the per-registration-id verdicts
// of the accepted batch.
func (r *BatchResponse) fetchReport(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetched {
		return
	}
	r.fetched = true

	var accepted struct {
		MsgID json.Number `json:"msg_id"`
	}
	if err := json.Unmarshal(r.reply.Body, &accepted); err != nil || accepted.MsgID == "" {
		r.dispatcher.logger.Warn("Parsing JPush response failed", "endpoint", r.endpoints[0], "message", "no msg_id in the response body")
		return
	}

	query, err := json.Marshal(map[string]any{
		"msg_id":           accepted.MsgID.String(),
		"registration_ids": r.endpoints,
	})
	if err != nil {
		return
	}

	reply, err := r.dispatcher.client.Do(ctx, http.MethodPost, ReportURL, r.dispatcher.headers(), query, r.dispatcher.timeout)
	if err != nil {
		r.dispatcher.logger.Warn("Fetching JPush delivery report failed", "endpoint", r.endpoints[0], "message", err.Error())
		return
	}

	var report map[string]struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(reply.Body, &report); err != nil {
		r.dispatcher.logger.Warn("Parsing JPush delivery report failed", "endpoint", r.endpoints[0], "message", err.Error())
		return
	}

	r.report = make(map[string]int, len(report))
	for endpoint, res := range report {
		r.report[endpoint] = res.Status
	}
}

func (r *BatchResponse) Endpoints() []string {
	return r.endpoints
}

// Status reports the delivery outcome for one registration id of the batch.
func (r *BatchResponse) Status(endpoint string) status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.statuses[endpoint]; ok {
		return s
	}

	known := false
	for _, e := range r.endpoints {
		if e == endpoint {
			known = true
			break
		}
	}
	if !known {
		return status.Unknown
	}

	s := r.resolve(endpoint)
	r.statuses[endpoint] = s
	return s
}

func (r *BatchResponse) resolve(endpoint string) status.Status {
	if r.err != nil {
		if r.timeout {
			return status.TemporaryError
		}
		return status.Error
	}

	if !accepted(r.reply.StatusCode) {
		coarse, ok := httpStatuses[r.reply.StatusCode]
		if !ok {
			coarse = status.Unknown
		}
		if code := apiErrorCode(r.reply.Body); code != 0 {
			if refined, ok := errorCodes[code]; ok {
				return refined
			}
		}
		return coarse
	}

	if r.report == nil {
		// Batch accepted but no report available: delivery unconfirmed.
		return status.Unknown
	}
	code, ok := r.report[endpoint]
	if !ok {
		return status.Unknown
	}
	if s, ok := reportStatuses[code]; ok {
		return s
	}
	return status.Unknown
}

func apiErrorCode(body []byte) int {
	var parsed struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0
	}
	return parsed.Error.Code
}
