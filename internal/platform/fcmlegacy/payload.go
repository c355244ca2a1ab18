// Package fcmlegacy implements dispatch through the legacy FCM HTTP API
// (fcm.googleapis.com/fcm/send). The legacy API authenticates with a static
// server key and targets one registration id per request via the top-level
// `to` field.
package fcmlegacy

import (
	"bytes"
	"encoding/json"
	"strings"
)

var priorities = map[string]struct{}{
	"normal": {},
	"high":   {},
}

// Payload accumulates the top-level fields of a legacy FCM message.
type Payload struct {
	elements map[string]any
}

func NewPayload() *Payload {
	return &Payload{elements: map[string]any{}}
}

// SetCollapseKey sets the offline collapse group of the message.
func (p *Payload) SetCollapseKey(key string) *Payload {
	p.elements["collapse_key"] = key
	return p
}

// SetData sets the custom key-value data of the message.
func (p *Payload) SetData(data map[string]string) *Payload {
	p.elements["data"] = data
	return p
}

// SetNotification sets the user-visible title and body.
func (p *Payload) SetNotification(title, body string) *Payload {
	p.elements["notification"] = map[string]any{
		"title": title,
		"body":  body,
	}
	return p
}

// SetTimeToLive sets the message lifetime in seconds.
func (p *Payload) SetTimeToLive(seconds int) *Payload {
	p.elements["time_to_live"] = seconds
	return p
}

// SetPriority sets the message priority. The legacy API knows "normal" and
// "high"; anything else is ignored.
func (p *Payload) SetPriority(priority string) *Payload {
	lower := strings.ToLower(priority)
	if _, ok := priorities[lower]; ok {
		p.elements["priority"] = lower
	}
	return p
}

// SetContentAvailable marks the notification as providing content.
func (p *Payload) SetContentAvailable(val bool) *Payload {
	p.elements["content_available"] = val
	return p
}

// SetMutableContent marks the notification as mutable.
func (p *Payload) SetMutableContent(mutable bool) *Payload {
	p.elements["mutable_content"] = mutable
	return p
}

// Marshal serializes the message body. escapeHTML controls escaping of
// HTML-significant characters without altering stored state.
func (p *Payload) Marshal(escapeHTML bool) ([]byte, error) {
	return encode(p.elements, escapeHTML)
}

// marshalTo serializes the body with the `to` field set to one registration
// id, leaving the payload untouched.
func (p *Payload) marshalTo(endpoint string, escapeHTML bool) ([]byte, error) {
	merged := make(map[string]any, len(p.elements)+1)
	for k, v := range p.elements {
		merged[k] = v
	}
	merged["to"] = endpoint
	return encode(merged, escapeHTML)
}

func encode(v any, escapeHTML bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(escapeHTML)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
