// Package formatter holds the per-request enrichment units that add derived
// fields to a presented annotation.
//
// A formatter is stateful: Preload fills a cache keyed by annotation id and
// Format reads it, falling back to a single-id lookup on a miss. Instances
// belong to one request and are not safe for concurrent use.
package formatter

import (
	"context"

	"marginalia/api/internal/store"
)

// Fragment is the set of keys one formatter contributes to a payload.
type Fragment map[string]any

type Formatter interface {
	Preload(ctx context.Context, ids []string) error
	Format(ctx context.Context, ann store.Annotation) (Fragment, error)
}
