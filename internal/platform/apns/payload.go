// Package apns provides dispatch through the Apple Push Notification service
// HTTP/2 API.
package apns

import (
	"github.com/sideshow/apns2/payload"
)

// Priority values for the apns-priority header.
const (
	PriorityLow  = 5
	PriorityHigh = 10
)

var priorities = map[string]int{
	"LOW":    PriorityLow,
	"NORMAL": PriorityLow,
	"HIGH":   PriorityHigh,
}

// Payload accumulates the aps dictionary plus the per-notification headers
// (collapse id, priority, expiration) that ride alongside it.
type Payload struct {
	aps *payload.Payload

	collapseID string
	priority   int
	expiration int64
}

func NewPayload() *Payload {
	return &Payload{aps: payload.NewPayload()}
}

// SetAlert sets the user-visible title and body.
func (p *Payload) SetAlert(title, body string) *Payload {
	p.aps.AlertTitle(title).AlertBody(body)
	return p
}

// SetBadge sets the app icon badge count.
func (p *Payload) SetBadge(badge int) *Payload {
	p.aps.Badge(badge)
	return p
}

// SetSound sets the notification sound.
func (p *Payload) SetSound(sound string) *Payload {
	p.aps.Sound(sound)
	return p
}

// SetCategory sets the interaction category.
func (p *Payload) SetCategory(category string) *Payload {
	p.aps.Category(category)
	return p
}

// SetThreadID sets the app-specific grouping thread.
func (p *Payload) SetThreadID(threadID string) *Payload {
	p.aps.ThreadID(threadID)
	return p
}

// SetContentAvailable marks the notification as providing content.
func (p *Payload) SetContentAvailable(val bool) *Payload {
	if val {
		p.aps.ContentAvailable()
	}
	return p
}

// SetMutableContent marks the notification as mutable.
func (p *Payload) SetMutableContent(mutable bool) *Payload {
	if mutable {
		p.aps.MutableContent()
	}
	return p
}

// SetCustom sets one custom data key outside the aps dictionary.
func (p *Payload) SetCustom(key string, value any) *Payload {
	p.aps.Custom(key, value)
	return p
}

// SetCollapseKey sets the apns-collapse-id header value.
func (p *Payload) SetCollapseKey(key string) *Payload {
	p.collapseID = key
	return p
}

// SetPriority sets the apns-priority header. Unrecognized names are ignored.
func (p *Payload) SetPriority(priority string) *Payload {
	if v, ok := priorities[priority]; ok {
		p.priority = v
	}
	return p
}

// SetExpiration sets the unix time until which APNS retries delivery.
func (p *Payload) SetExpiration(unix int64) *Payload {
	p.expiration = unix
	return p
}

// Expiration returns the configured expiry unix time, zero when unset.
func (p *Payload) Expiration() int64 {
	return p.expiration
}

// Marshal serializes the aps payload.
func (p *Payload) Marshal() ([]byte, error) {
	return p.aps.MarshalJSON()
}
