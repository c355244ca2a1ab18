package apnsbinary

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

// Feedback service addresses.
const (
	ProductionFeedback = "feedback.push.apple.com:2196"
	SandboxFeedback    = "feedback.sandbox.push.apple.com:2196"
)

// FeedbackEntry is one record of the feedback service: a device token whose
// registration no longer exists, and when Apple learned that. Callers must
// remove the registration; resolving such an endpoint against a
// FeedbackResponse yields status.FeedbackDeleted.
type FeedbackEntry struct {
	Timestamp time.Time
	Endpoint  string
}

// ParseFeedback decodes the feedback stream: per entry a big-endian unix
// time, token length and token bytes.
func ParseFeedback(r io.Reader) ([]FeedbackEntry, error) {
	var entries []FeedbackEntry
	for {
		var header struct {
			Time     uint32
			TokenLen uint16
		}
		if err := binary.Read(r, binary.BigEndian, &header); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, err
		}

		token := make([]byte, header.TokenLen)
		if _, err := io.ReadFull(r, token); err != nil {
			return entries, err
		}

		entries = append(entries, FeedbackEntry{
			Timestamp: time.Unix(int64(header.Time), 0),
			Endpoint:  hex.EncodeToString(token),
		})
	}
}

// FeedbackResponse presents a drained feedback run as a batch response:
// every listed endpoint resolves to status.FeedbackDeleted.
type FeedbackResponse struct {
	endpoints []string
	listed    map[string]struct{}
}

func NewFeedbackResponse(entries []FeedbackEntry) *FeedbackResponse {
	resp := &FeedbackResponse{listed: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		resp.endpoints = append(resp.endpoints, e.Endpoint)
		resp.listed[e.Endpoint] = struct{}{}
	}
	return resp
}

func (r *FeedbackResponse) Endpoints() []string {
	return r.endpoints
}

func (r *FeedbackResponse) Status(endpoint string) status.Status {
	if _, ok := r.listed[endpoint]; ok {
		return status.FeedbackDeleted
	}
	return status.Unknown
}

// Feedback connects to the feedback service and drains it. Apple closes the
// stream once all pending entries are sent.
func (d *Dispatcher) Feedback(ctx context.Context, addr string) ([]FeedbackEntry, error) {
	conn, err := d.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(d.timeout))
	entries, err := ParseFeedback(conn)
	if err != nil {
		d.logger.Warn("Reading APNS feedback service failed", "message", err.Error())
	}
	return entries, err
}
