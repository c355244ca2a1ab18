// Package fcm implements dispatch through the Firebase Cloud Messaging v1
// HTTP API. FCM is a meta-gateway: one payload carries an Android-specific
// block and an APNS-specific block side by side, and several setters fan one
// logical field out into both.
package fcm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Android message priorities recognized by SetPriority. Anything else is
// ignored and the previous value kept.
var androidPriorities = map[string]struct{}{
	"NORMAL": {},
	"HIGH":   {},
}

// APNS priority header values keyed by the shared priority name.
var apnsPriorities = map[string]string{
	"HIGH":   "10",
	"NORMAL": "5",
	"LOW":    "5",
}

// Payload accumulates the fields of one notification in the nested shape of
// the v1 `message` object. Built incrementally via chained setters and
// serialized once per dispatch attempt.
type Payload struct {
	elements map[string]any
}

// NewPayload returns an empty payload with the Android priority defaulted to
// HIGH, matching the delivery behavior expected of notification pushes.
func NewPayload() *Payload {
	p := &Payload{elements: map[string]any{}}
	p.section("android")["priority"] = "HIGH"
	return p
}

// section returns the nested object at the given key path, creating every
// level on the way down.
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

// SetCollapseKey sets the key used to collapse a group of alike messages while
// the device is offline, for both the Android and the APNS leg.
func (p *Payload) SetCollapseKey(key string) *Payload {
	p.section("android")["collapse_key"] = key
	p.section("apns", "headers")["apns-collapse-id"] = key
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

// SetTimeToLive sets how long in seconds the message is kept for an offline
// Android device.
func (p *Payload) SetTimeToLive(seconds int) *Payload {
	p.section("android")["ttl"] = strconv.Itoa(seconds) + "s"
	return p
}

// SetContentAvailable marks the notification as providing content.
func (p *Payload) SetContentAvailable(val bool) *Payload {
	p.section("apns", "payload", "aps")["content-available"] = boolToInt(val)
	return p
}

// SetMutableContent marks the notification as mutable.
func (p *Payload) SetMutableContent(mutable bool) *Payload {
	p.section("apns", "payload", "aps")["mutable-content"] = boolToInt(mutable)
	return p
}

// SetTopic sets the topic name to send the message to.
func (p *Payload) SetTopic(topic string) *Payload {
	p.elements["topic"] = topic
	return p
}

// SetCondition sets a topic condition expression such as
// "'TopicA' in topics && 'TopicB' in topics".
func (p *Payload) SetCondition(condition string) *Payload {
	p.elements["condition"] = condition
	return p
}

// HasTopic reports whether a topic target is set.
func (p *Payload) HasTopic() bool {
	_, ok := p.elements["topic"]
	return ok
}

// HasCondition reports whether a condition target is set.
func (p *Payload) HasCondition() bool {
	_, ok := p.elements["condition"]
	return ok
}

// SetPriority sets the message priority for both legs. Unrecognized values
// are ignored, keeping the previous or default priority.
func (p *Payload) SetPriority(priority string) *Payload {
	upper := strings.ToUpper(priority)
	if _, ok := androidPriorities[upper]; ok {
		p.section("android")["priority"] = upper
	}
	if v, ok := apnsPriorities[upper]; ok {
		p.section("apns", "headers")["apns-priority"] = v
	}
	return p
}

// SetOptions sets an additional value in the fcm_options block.
func (p *Payload) SetOptions(key, value string) *Payload {
	p.section("fcm_options")[key] = value
	return p
}

// SetCategory sets the click action / interaction category on both legs.
func (p *Payload) SetCategory(category string) *Payload {
	p.section("android", "notification")["click_action"] = category
	p.section("apns", "payload", "aps")["category"] = category
	return p
}

// SetTag sets the Android notification tag.
func (p *Payload) SetTag(tag string) *Payload {
	p.section("android", "notification")["tag"] = tag
	return p
}

// SetColor sets the Android notification color.
func (p *Payload) SetColor(color string) *Payload {
	p.section("android", "notification")["color"] = color
	return p
}

// SetIcon sets the Android notification icon.
func (p *Payload) SetIcon(icon string) *Payload {
	p.section("android", "notification")["icon"] = icon
	return p
}

// SetSound sets the notification sound on both legs.
func (p *Payload) SetSound(sound string) *Payload {
	p.section("android", "notification")["sound"] = sound
	p.section("apns", "payload", "aps")["sound"] = sound
	return p
}

// Marshal serializes the payload as the v1 `{"message": {...}}` envelope.
// escapeHTML controls whether HTML-significant characters are escaped in the
// output; stored state is never altered. Serialization is deterministic for a
// given sequence of setter calls since object keys are emitted sorted.
func (p *Payload) Marshal(escapeHTML bool) ([]byte, error) {
	return encode(map[string]any{"message": p.elements}, escapeHTML)
}

// marshalWithTarget serializes the envelope with the given targeting field
// (token, topic or condition) merged into the message, leaving the payload
// itself untouched.
func (p *Payload) marshalWithTarget(field, value string, escapeHTML bool) ([]byte, error) {
	merged := make(map[string]any, len(p.elements)+1)
	for k, v := range p.elements {
		merged[k] = v
	}
	merged[field] = value
	return encode(map[string]any{"message": merged}, escapeHTML)
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
