// Package jpush implements dispatch through the JPush API. JPush natively
// accepts a registration id array, so one wire request covers the whole
// batch; per-endpoint outcomes are demultiplexed afterwards through the
// report service.
package jpush

import (
	"bytes"
	"encoding/json"
)

// Payload accumulates one JPush message. The audience block is injected at
// dispatch time from the endpoint batch.
type Payload struct {
	elements map[string]any
}

// NewPayload returns an empty payload targeting both mobile platforms.
func NewPayload() *Payload {
	p := &Payload{elements: map[string]any{}}
	p.elements["platform"] = []string{"ios", "android"}
	return p
}

func (p *Payload) section(path ...string) map[string]any {
	cur := p.elements
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	return cur
}

// SetPlatform restricts the target platforms, e.g. []string{"android"}.
func (p *Payload) SetPlatform(platforms []string) *Payload {
	p.elements["platform"] = platforms
	return p
}

// SetNotification sets the user-visible alert text.
func (p *Payload) SetNotification(alert string) *Payload {
	p.section("notification")["alert"] = alert
	return p
}

// SetMessage sets the in-app message content.
func (p *Payload) SetMessage(content string) *Payload {
	p.section("message")["msg_content"] = content
	return p
}

// SetData sets the custom extras delivered with the notification.
func (p *Payload) SetData(data map[string]string) *Payload {
	p.section("notification", "android")["extras"] = data
	p.section("notification", "ios")["extras"] = data
	return p
}

// SetSound sets the notification sound on both platforms.
func (p *Payload) SetSound(sound string) *Payload {
	p.section("notification", "android")["sound"] = sound
	p.section("notification", "ios")["sound"] = sound
	return p
}

// SetTimeToLive sets how long in seconds the message is kept for offline
// devices.
func (p *Payload) SetTimeToLive(seconds int) *Payload {
	p.section("options")["time_to_live"] = seconds
	return p
}

// SetCollapseKey sets the override msg id used to collapse alike messages.
func (p *Payload) SetCollapseKey(id int64) *Payload {
	p.section("options")["override_msg_id"] = id
	return p
}

// SetAPNSProduction selects the production APNS environment for the iOS leg.
func (p *Payload) SetAPNSProduction(production bool) *Payload {
	p.section("options")["apns_production"] = production
	return p
}

// Marshal serializes the message body. escapeHTML controls escaping of
// HTML-significant characters without altering stored state.
func (p *Payload) Marshal(escapeHTML bool) ([]byte, error) {
	return encode(p.elements, escapeHTML)
}

// marshalAudience serializes the body with the registration id audience
// injected, leaving the payload untouched.
func (p *Payload) marshalAudience(endpoints []string, escapeHTML bool) ([]byte, error) {
	merged := make(map[string]any, len(p.elements)+1)
	for k, v := range p.elements {
		merged[k] = v
	}
	merged["audience"] = map[string]any{"registration_id": endpoints}
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
