package pap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// controlXML is the PAP control document wrapping one push-message. The
// placeholders are push-id, source-reference, deliver-before-timestamp and
// the target address.
const controlXML = `<?xml version="1.0"?>
<!DOCTYPE pap PUBLIC "-//WAPFORUM//DTD PAP 2.1//EN" "http://www.openmobilealliance.org/tech/DTD/pap_2.1.dtd">
<pap>
<push-message push-id="%s" source-reference="%s" deliver-before-timestamp="%s">
<address address-value="%s"/>
<quality-of-service delivery-method="confirmed"/>
</push-message>
</pap>
`

// Dispatcher sends notifications through a BlackBerry PAP gateway, one
// multipart request per endpoint.
type Dispatcher struct {
	client  transport.Client
	logger  *slog.Logger
	opts    dispatch.Options
	timeout transport.Options

	authToken string
	password  string
	cid       string

	now func() time.Time
}

func NewDispatcher(client transport.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "PAPDispatcher"),
		now:    time.Now,
	}
}

// SetCredentials sets the static gateway credentials: the source auth token
// and password plus the content provider id addressed in the gateway host.
func (d *Dispatcher) SetCredentials(authToken, password, cid string) *Dispatcher {
	d.authToken = authToken
	d.password = password
	d.cid = cid
	return d
}

// SetTimeouts overrides the connect and total response timeouts.
func (d *Dispatcher) SetTimeouts(opts transport.Options) *Dispatcher {
	d.timeout = opts
	return d
}

// SetOptions bounds the per-endpoint fan-out concurrency.
func (d *Dispatcher) SetOptions(opts dispatch.Options) *Dispatcher {
	d.opts = opts
	return d
}

func (d *Dispatcher) url() string {
	return "https://cp" + d.cid + ".pushapi.eval.blackberry.com/mss/PD_pushRequest"
}

// Push sends the payload to every endpoint of the batch, one multipart
// request each.
func (d *Dispatcher) Push(ctx context.Context, payload *Payload, endpoints []string) (*Response, error) {
	if payload == nil {
		return nil, dispatch.ErrNilPayload
	}
	if len(endpoints) == 0 {
		return nil, dispatch.ErrEmptyBatch
	}

	if d.authToken == "" || d.cid == "" {
		d.logger.Warn("Tried to push PAP notification but credentials are not configured", "endpoint", endpoints[0])
		return newFailedResponse(endpoints, http.StatusUnauthorized), nil
	}

	body, err := payload.Marshal(false)
	if err != nil {
		d.logger.Warn("Serializing PAP notification failed", "message", err.Error())
		return newFailedResponse(endpoints, http.StatusBadRequest), nil
	}

	results := make([]endpointResult, len(endpoints))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Limit())

	for i, endpoint := range endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			var res endpointResult
			if err := gctx.Err(); err != nil {
				res = endpointResult{err: err, timeout: transport.IsTimeout(err)}
			} else {
				res = d.send(gctx, payload, endpoint, body)
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return newResponse(endpoints, results), nil
}

func (d *Dispatcher) send(ctx context.Context, payload *Payload, endpoint string, body []byte) endpointResult {
	boundary := "pap-" + uuid.NewString()
	request := d.multipart(payload, endpoint, body, boundary)

	basic := base64.StdEncoding.EncodeToString([]byte(d.authToken + ":" + d.password))
	headers := map[string]string{
		"Content-Type":  `multipart/related; boundary=` + boundary + `; type="application/xml"`,
		"Authorization": "Basic " + basic,
	}

	reply, err := d.client.Do(ctx, http.MethodPost, d.url(), headers, request, d.timeout)
	if err != nil {
		d.logger.Warn("Dispatching PAP notification failed", "endpoint", endpoint, "message", err.Error())
		return endpointResult{err: err, timeout: transport.IsTimeout(err)}
	}
	return endpointResult{reply: reply}
}

// multipart assembles the control XML part and the message data part. The
// push-id is the endpoint suffixed with the current time in microseconds.
func (d *Dispatcher) multipart(payload *Payload, endpoint string, body []byte, boundary string) []byte {
	pushID := endpoint + strconv.FormatInt(d.now().UnixMicro(), 10)
	control := fmt.Sprintf(controlXML, xmlEscape(pushID), xmlEscape(d.authToken), payload.DeliverBefore(), xmlEscape(endpoint))

	var buf bytes.Buffer
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString("Content-Type: application/xml; charset=UTF-8\r\n\r\n")
	buf.WriteString(control)
	buf.WriteString("\r\n--" + boundary + "\r\n")
	buf.WriteString("Content-Type: text/plain\r\n\r\n")
	buf.Write(body)
	buf.WriteString("\r\n--" + boundary + "--\r\n")
	return buf.Bytes()
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func newFailedResponse(endpoints []string, code int) *Response {
	results := make([]endpointResult, len(endpoints))
	for i := range results {
		results[i] = endpointResult{reply: &transport.Reply{StatusCode: code}}
	}
	return newResponse(endpoints, results)
}
