// Package wns implements dispatch through the Windows Push Notification
// Service: one HTTP POST per channel URI with WNS-specific headers and an
// XML (or raw) body.
package wns

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// Kind selects the WNS notification class carried in the X-WNS-Type header.
type Kind string

const (
	Toast Kind = "wns/toast"
	Tile  Kind = "wns/tile"
	Badge Kind = "wns/badge"
	Raw   Kind = "wns/raw"
)

// Payload accumulates the content of one WNS notification and serializes it
// to the XML document (or raw bytes) the chosen kind expects.
type Payload struct {
	kind Kind

	title  string
	body   string
	launch string
	badge  int
	raw    []byte
}

// NewToastPayload builds a toast notification with a title and body text.
func NewToastPayload() *Payload {
	return &Payload{kind: Toast}
}

// NewTilePayload builds a tile update.
func NewTilePayload() *Payload {
	return &Payload{kind: Tile}
}

// NewBadgePayload builds a badge update.
func NewBadgePayload() *Payload {
	return &Payload{kind: Badge}
}

// NewRawPayload carries opaque bytes to the app's background task.
func NewRawPayload(raw []byte) *Payload {
	return &Payload{kind: Raw, raw: raw}
}

// Kind reports the notification class of this payload.
func (p *Payload) Kind() Kind {
	return p.kind
}

// SetTitle sets the first text line of a toast or tile.
func (p *Payload) SetTitle(title string) *Payload {
	p.title = title
	return p
}

// SetBody sets the second text line of a toast or tile.
func (p *Payload) SetBody(body string) *Payload {
	p.body = body
	return p
}

// SetLaunch sets the app activation argument of a toast.
func (p *Payload) SetLaunch(launch string) *Payload {
	p.launch = launch
	return p
}

// SetBadge sets the badge count.
func (p *Payload) SetBadge(badge int) *Payload {
	p.badge = badge
	return p
}

// ContentType reports the request content type for this payload kind.
func (p *Payload) ContentType() string {
	if p.kind == Raw {
		return "application/octet-stream"
	}
	return "text/xml"
}

// Marshal serializes the payload into its wire document. Serialization is
// deterministic and leaves stored state untouched.
func (p *Payload) Marshal() []byte {
	switch p.kind {
	case Toast:
		var buf bytes.Buffer
		buf.WriteString(`<toast`)
		if p.launch != "" {
			buf.WriteString(` launch="` + escape(p.launch) + `"`)
		}
		buf.WriteString(`><visual><binding template="ToastText02">`)
		buf.WriteString(`<text id="1">` + escape(p.title) + `</text>`)
		buf.WriteString(`<text id="2">` + escape(p.body) + `</text>`)
		buf.WriteString(`</binding></visual></toast>`)
		return buf.Bytes()
	case Tile:
		var buf bytes.Buffer
		buf.WriteString(`<tile><visual><binding template="TileWideText01">`)
		buf.WriteString(`<text id="1">` + escape(p.title) + `</text>`)
		buf.WriteString(`<text id="2">` + escape(p.body) + `</text>`)
		buf.WriteString(`</binding></visual></tile>`)
		return buf.Bytes()
	case Badge:
		return []byte(`<badge value="` + strconv.Itoa(p.badge) + `"/>`)
	default:
		return p.raw
	}
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
