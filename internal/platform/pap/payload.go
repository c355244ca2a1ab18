// Package pap implements dispatch through the BlackBerry Push Access
// Protocol: an XML control document plus the message body wrapped in one
// multipart request per endpoint.
package pap

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

var priorities = map[string]struct{}{
	"high":   {},
	"medium": {},
	"low":    {},
}

// Payload accumulates the message data and the push-message control headers
// (deliver-before timestamp, priority).
type Payload struct {
	elements map[string]any

	deliverBefore string
	priority      string
}

func NewPayload() *Payload {
	return &Payload{elements: map[string]any{}}
}

// SetData sets the custom key-value data of the message.
func (p *Payload) SetData(data map[string]string) *Payload {
	p.elements["data"] = data
	return p
}

// SetMessage sets the user-visible message text.
func (p *Payload) SetMessage(message string) *Payload {
	p.elements["message"] = message
	return p
}

// SetDeliverBefore sets the timestamp after which delivery is abandoned,
// carried as the deliver-before-timestamp control attribute.
func (p *Payload) SetDeliverBefore(t time.Time) *Payload {
	p.deliverBefore = t.UTC().Format("2006-01-02T15:04:05Z")
	return p
}

// SetPriority sets the delivery priority. Unrecognized values are ignored.
func (p *Payload) SetPriority(priority string) *Payload {
	lower := strings.ToLower(priority)
	if _, ok := priorities[lower]; ok {
		p.priority = lower
	}
	return p
}

// DeliverBefore returns the deliver-before-timestamp attribute value.
func (p *Payload) DeliverBefore() string {
	return p.deliverBefore
}

// Priority returns the configured delivery priority, empty when unset.
func (p *Payload) Priority() string {
	return p.priority
}

// Marshal serializes the message data part. escapeHTML controls escaping of
// HTML-significant characters without altering stored state.
func (p *Payload) Marshal(escapeHTML bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(escapeHTML)
	if err := enc.Encode(p.elements); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
