package formatter

import (
	"context"
	"fmt"

	"marginalia/api/internal/metrics"
	"marginalia/api/internal/store"
)

// FlagLookup answers whether a user has flagged annotations.
type FlagLookup interface {
	FlaggedBy(ctx context.Context, userID string, ids []string) (map[string]bool, error)
	IsFlaggedBy(ctx context.Context, userID, id string) (bool, error)
}

// FlagFormatter adds "flagged": whether the viewer flagged the annotation.
// Anonymous viewers always see false.
type FlagFormatter struct {
	lookup  FlagLookup
	viewer  string
	metrics *metrics.Metrics
	cache   map[string]bool
}

func NewFlag(lookup FlagLookup, viewerID string, m *metrics.Metrics) *FlagFormatter {
	return &FlagFormatter{
		lookup:  lookup,
		viewer:  viewerID,
		metrics: m,
		cache:   map[string]bool{},
	}
}

func (f *FlagFormatter) Preload(ctx context.Context, ids []string) error {
	if f.viewer == "" || len(ids) == 0 {
		return nil
	}
	flagged, err := f.lookup.FlaggedBy(ctx, f.viewer, ids)
	f.metrics.Lookup("flagged", metrics.ModeBatch)
	if err != nil {
		return fmt.Errorf("preload user flags: %w", err)
	}
	for _, id := range ids {
		f.cache[id] = flagged[id]
	}
	return nil
}

func (f *FlagFormatter) Format(ctx context.Context, ann store.Annotation) (Fragment, error) {
	if f.viewer == "" {
		return Fragment{"flagged": false}, nil
	}
	flagged, ok := f.cache[ann.ID]
	if !ok {
		var err error
		flagged, err = f.lookup.IsFlaggedBy(ctx, f.viewer, ann.ID)
		f.metrics.Lookup("flagged", metrics.ModeSingle)
		if err != nil {
			return nil, fmt.Errorf("load user flag for %s: %w", ann.ID, err)
		}
		f.cache[ann.ID] = flagged
	}
	return Fragment{"flagged": flagged}, nil
}
