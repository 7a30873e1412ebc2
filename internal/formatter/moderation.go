package formatter

import (
	"context"
	"fmt"

	"marginalia/api/internal/metrics"
	"marginalia/api/internal/store"
)

// FlagCounter counts distinct flaggers. Ids without flags count 0.
type FlagCounter interface {
	FlagCounts(ctx context.Context, ids []string) (map[string]int, error)
	FlagCount(ctx context.Context, id string) (int, error)
}

// ModerationFormatter adds moderation.flag_count for authenticated viewers.
// Anonymous viewers get no moderation key and cause no lookups.
type ModerationFormatter struct {
	counter FlagCounter
	viewer  string
	metrics *metrics.Metrics
	cache   map[string]int
}

func NewModeration(counter FlagCounter, viewerID string, m *metrics.Metrics) *ModerationFormatter {
	return &ModerationFormatter{
		counter: counter,
		viewer:  viewerID,
		metrics: m,
		cache:   map[string]int{},
	}
}

func (f *ModerationFormatter) Preload(ctx context.Context, ids []string) error {
	if f.viewer == "" || len(ids) == 0 {
		return nil
	}
	counts, err := f.counter.FlagCounts(ctx, ids)
	f.metrics.Lookup("flag_count", metrics.ModeBatch)
	if err != nil {
		return fmt.Errorf("preload flag counts: %w", err)
	}
	for _, id := range ids {
		f.cache[id] = counts[id]
	}
	return nil
}

func (f *ModerationFormatter) Format(ctx context.Context, ann store.Annotation) (Fragment, error) {
	if f.viewer == "" {
		return nil, nil
	}
	count, ok := f.cache[ann.ID]
	if !ok {
		var err error
		count, err = f.counter.FlagCount(ctx, ann.ID)
		f.metrics.Lookup("flag_count", metrics.ModeSingle)
		if err != nil {
			return nil, fmt.Errorf("load flag count for %s: %w", ann.ID, err)
		}
		f.cache[ann.ID] = count
	}
	return Fragment{"moderation": map[string]any{"flag_count": count}}, nil
}
