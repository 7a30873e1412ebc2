// Package presenter turns stored annotations into payloads, running the
// registered formatters with one batched preload per request.
package presenter

import (
	"context"
	"fmt"
	"time"

	"marginalia/api/internal/formatter"
	"marginalia/api/internal/metrics"
	"marginalia/api/internal/store"
)

// Fetcher loads annotations by id. Order and duplicates in the result do not
// matter; the pipeline reorders to the caller's ids.
type Fetcher interface {
	FetchOrdered(ctx context.Context, ids []string) ([]store.Annotation, error)
}

// Pipeline owns its formatters and is used for a single request.
type Pipeline struct {
	fetcher    Fetcher
	formatters []formatter.Formatter
	metrics    *metrics.Metrics
}

func NewPipeline(fetcher Fetcher, m *metrics.Metrics, formatters ...formatter.Formatter) *Pipeline {
	return &Pipeline{fetcher: fetcher, formatters: formatters, metrics: m}
}

// PresentAll returns one payload per id in ids, in that order. Duplicate ids
// yield duplicate payloads and unknown ids are skipped.
func (p *Pipeline) PresentAll(ctx context.Context, ids []string) ([]*Payload, error) {
	defer p.metrics.ObservePresentation("present_all", time.Now())
	if len(ids) == 0 {
		return []*Payload{}, nil
	}

	records, err := p.fetcher.FetchOrdered(ctx, ids)
	p.metrics.Lookup("annotations", metrics.ModeBatch)
	if err != nil {
		return nil, fmt.Errorf("fetch annotations: %w", err)
	}
	byID := make(map[string]store.Annotation, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	unique := uniqueIDs(ids)
	for _, f := range p.formatters {
		if err := f.Preload(ctx, unique); err != nil {
			return nil, err
		}
	}

	payloads := make([]*Payload, 0, len(ids))
	for _, id := range ids {
		record, ok := byID[id]
		if !ok {
			continue
		}
		payload, err := p.format(ctx, record)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	p.metrics.Presented(len(payloads))
	return payloads, nil
}

// Present formats a single annotation without a preload; formatters fall
// back to their single-id lookups.
func (p *Pipeline) Present(ctx context.Context, ann store.Annotation) (*Payload, error) {
	defer p.metrics.ObservePresentation("present", time.Now())
	payload, err := p.format(ctx, ann)
	if err != nil {
		return nil, err
	}
	p.metrics.Presented(1)
	return payload, nil
}

func (p *Pipeline) format(ctx context.Context, ann store.Annotation) (*Payload, error) {
	payload := newPayload(ann)
	for _, f := range p.formatters {
		fragment, err := f.Format(ctx, ann)
		if err != nil {
			return nil, err
		}
		if err := payload.Merge(fragment); err != nil {
			return nil, fmt.Errorf("format %s: %w", ann.ID, err)
		}
	}
	return payload, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
