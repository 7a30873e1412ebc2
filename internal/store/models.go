package store

import (
	"encoding/json"
	"time"
)

type Document struct {
	ID    string
	Title string
}

type Selector struct {
	Type  string `json:"type,omitempty"`
	Exact string `json:"exact,omitempty"`
}

type Target struct {
	Source   string     `json:"source,omitempty"`
	Selector []Selector `json:"selector,omitempty"`
}

type Annotation struct {
	ID        string
	UserID    string
	TargetURI string
	Text      string
	Tags      []string
	Targets   []Target
	// References is kept raw: rows written by older clients may hold a JSON
	// object or scalar here, which reads as "no parent".
	References json.RawMessage
	Document   *Document
	Created    time.Time
	Updated    time.Time
}
