package presenter

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marginalia/api/internal/formatter"
	"marginalia/api/internal/store"
)

var ErrFieldCollision = errors.New("formatter field collision")

// timeLayout renders timestamps with microseconds and a numeric offset.
const timeLayout = "2006-01-02T15:04:05.000000-07:00"

var fixedKeys = map[string]struct{}{
	"id": {}, "created": {}, "updated": {}, "user": {}, "uri": {}, "text": {},
	"tags": {}, "target": {}, "document": {}, "references": {}, "nipsa": {},
}

type DocumentPayload struct {
	Title []string `json:"title,omitempty"`
}

// Payload is the presented form of one annotation. Formatter output lives in
// Extensions; NIPSA is only rendered when true.
type Payload struct {
	ID         string
	Created    time.Time
	Updated    time.Time
	User       string
	URI        string
	Text       string
	Tags       []string
	Target     []store.Target
	Document   DocumentPayload
	References []string
	NIPSA      bool
	Extensions map[string]any
}

func newPayload(ann store.Annotation) *Payload {
	p := &Payload{
		ID:         ann.ID,
		Created:    ann.Created,
		Updated:    ann.Updated,
		User:       ann.UserID,
		URI:        ann.TargetURI,
		Text:       ann.Text,
		Tags:       ann.Tags,
		Target:     ann.Targets,
		References: ann.ReferenceIDs(),
		Extensions: map[string]any{},
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Target == nil {
		p.Target = []store.Target{}
	}
	if title := ann.Title(); title != "" {
		p.Document.Title = []string{title}
	}
	return p
}

// Merge adds a formatter fragment. A key that is already present, fixed or
// contributed earlier, is rejected with ErrFieldCollision.
func (p *Payload) Merge(fragment formatter.Fragment) error {
	for key := range fragment {
		if _, fixed := fixedKeys[key]; fixed {
			return fmt.Errorf("%w: %q", ErrFieldCollision, key)
		}
		if _, taken := p.Extensions[key]; taken {
			return fmt.Errorf("%w: %q", ErrFieldCollision, key)
		}
	}
	if p.Extensions == nil {
		p.Extensions = make(map[string]any, len(fragment))
	}
	for key, value := range fragment {
		p.Extensions[key] = value
	}
	return nil
}

// Map is the payload as a generic object, extensions included.
func (p *Payload) Map() map[string]any {
	out := make(map[string]any, len(fixedKeys)+len(p.Extensions))
	for key, value := range p.Extensions {
		out[key] = value
	}
	out["id"] = p.ID
	out["created"] = formatTime(p.Created)
	out["updated"] = formatTime(p.Updated)
	out["user"] = p.User
	out["uri"] = p.URI
	out["text"] = p.Text
	out["tags"] = p.Tags
	out["target"] = p.Target
	out["document"] = p.Document
	if len(p.References) > 0 {
		out["references"] = p.References
	}
	if p.NIPSA {
		out["nipsa"] = true
	}
	return out
}

// MarshalJSON renders keys in sorted order so equal payloads encode to equal
// bytes.
func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
