// Package search keeps the Meilisearch annotation index in step with the
// store. Meilisearch cannot run custom analyzers, so records carry the URI
// fields precomputed by the analysis package.
package search

import (
	"marginalia/api/internal/analysis"
	"marginalia/api/internal/store"
)

// Record is one annotation as stored in the search index.
type Record struct {
	ID            string   `json:"id"`
	User          string   `json:"user"`
	URI           string   `json:"uri"`
	URINormalized string   `json:"uriNormalized"`
	URIParts      []string `json:"uriParts"`
	Text          string   `json:"text"`
	Quote         string   `json:"quote,omitempty"`
	Tags          []string `json:"tags"`
	Title         string   `json:"title,omitempty"`
	ParentID      string   `json:"parentId,omitempty"`
	// Day is the creation date (YYYY-MM-DD) for per-day filters.
	Day         string   `json:"day,omitempty"`
	TargetLinks []string `json:"targetLinks"`
	// Description and DocumentLink are pre-escaped HTML for result lists.
	Description  string `json:"description,omitempty"`
	DocumentLink string `json:"documentLink,omitempty"`
	Created      int64  `json:"created"`
	Updated      int64  `json:"updated"`
}

// RecordFor analyzes the annotation's target URI and builds its record.
func RecordFor(ann store.Annotation, analyzer *analysis.Analyzer) Record {
	fields := analyzer.Analyze(ann.TargetURI)
	tags := ann.Tags
	if tags == nil {
		tags = []string{}
	}
	parent, _ := ann.ParentID()
	return Record{
		ID:            ann.ID,
		User:          ann.UserID,
		URI:           ann.TargetURI,
		URINormalized: fields.Normalized,
		URIParts:      fields.Parts,
		Text:          ann.Text,
		Quote:         ann.Quote(),
		Tags:          tags,
		Title:         ann.Title(),
		ParentID:      parent,
		Day:           ann.CreatedDay(),
		TargetLinks:   ann.TargetLinks(),
		Description:   ann.Description(),
		DocumentLink:  ann.DocumentLink(),
		Created:       ann.Created.Unix(),
		Updated:       ann.Updated.Unix(),
	}
}

// Indexer writes records to a search backend.
type Indexer interface {
	Healthy() bool
	IndexAnnotations(records []Record) error
	DeleteAnnotation(id string) error
}
