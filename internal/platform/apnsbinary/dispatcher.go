package apnsbinary

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tinywideclouds/go-push-dispatch/internal/platform/apns"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// Gateway addresses of the binary protocol.
const (
	ProductionGateway = "gateway.push.apple.com:2195"
	SandboxGateway    = "gateway.sandbox.push.apple.com:2195"
)

// errorFrameWait is how long to wait for an error frame after writing one
// notification. The gateway is silent on success.
const errorFrameWait = 200 * time.Millisecond

// Dialer supplies the authenticated stream to the gateway. TLS and the
// client certificate are the dialer's concern.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Dispatcher writes one binary frame per device token over a persistent
// connection shared across the frames of one push. Pushes are serialized:
// the gateway speaks one stream, so concurrent Push calls take turns on it.
type Dispatcher struct {
	dialer  Dialer
	addr    string
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

func NewDispatcher(dialer Dialer, addr string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		dialer:  dialer,
		addr:    addr,
		logger:  logger.With("component", "APNSBinaryDispatcher"),
		timeout: 15 * time.Second,
	}
}

// SetTimeout overrides the write deadline per frame.
func (d *Dispatcher) SetTimeout(timeout time.Duration) *Dispatcher {
	d.timeout = timeout
	return d
}

// Push serializes the payload once and writes one frame per device token.
// Frames share one connection, so they are sent sequentially.
func (d *Dispatcher) Push(ctx context.Context, payload *apns.Payload, endpoints []string) (*Response, error) {
	if payload == nil {
		return nil, dispatch.ErrNilPayload
	}
	if len(endpoints) == 0 {
		return nil, dispatch.ErrEmptyBatch
	}

	if d.dialer == nil {
		d.logger.Warn("Tried to push APNS notification but no connection is configured", "endpoint", endpoints[0])
		return newFailedResponse(endpoints, errNotConfigured), nil
	}

	body, err := payload.Marshal()
	if err != nil {
		d.logger.Warn("Serializing APNS notification failed", "message", err.Error())
		return newFailedResponse(endpoints, err), nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	results := make([]endpointResult, len(endpoints))
	for i, endpoint := range endpoints {
		if ctx.Err() != nil {
			results[i] = endpointResult{err: ctx.Err()}
			continue
		}
		results[i] = d.send(ctx, uint32(i), payload.Expiration(), endpoint, body)
	}

	return newResponse(endpoints, results), nil
}

func (d *Dispatcher) send(ctx context.Context, identifier uint32, expiry int64, endpoint string, body []byte) endpointResult {
	frame, err := encodeFrame(identifier, uint32(expiry), endpoint, body)
	if err != nil {
		// Token is not valid hex of the right size. No point sending.
		return endpointResult{sent: true, code: StatusInvalidToken}
	}

	conn, err := d.connect(ctx)
	if err != nil {
		d.logger.Warn("Connecting to APNS gateway failed", "endpoint", endpoint, "message", err.Error())
		return endpointResult{err: err}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(d.timeout))
	if _, err := conn.Write(frame); err != nil {
		d.logger.Warn("Writing APNS frame failed", "endpoint", endpoint, "message", err.Error())
		d.close()
		return endpointResult{err: err}
	}

	// The gateway only answers on failure. Wait briefly for an error frame;
	// a read timeout means the frame was accepted. Frames are written
	// sequentially, so the echoed identifier always names the frame just sent.
	_ = conn.SetReadDeadline(time.Now().Add(errorFrameWait))
	code, _, err := readErrorFrame(conn)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return endpointResult{sent: true, code: StatusNoError}
		}
		d.close()
		return endpointResult{sent: true, code: StatusUnknown}
	}

	// An error frame terminates the stream.
	d.close()
	return endpointResult{sent: true, code: code}
}

func (d *Dispatcher) connect(ctx context.Context) (net.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := d.dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

func (d *Dispatcher) close() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}

// Close releases the persistent gateway connection.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
