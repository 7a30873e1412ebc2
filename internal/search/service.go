package search

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marginalia/api/internal/analysis"
	"marginalia/api/internal/store"
)

const (
	defaultBatchSize   = 500
	defaultConcurrency = 4
)

// Source pages through every stored annotation in id order.
type Source interface {
	ListAnnotationsAfter(ctx context.Context, afterID string, limit int) ([]store.Annotation, error)
}

// Service is the write path into the search index. Single writes are
// fire-and-forget; Wait blocks until they have finished.
type Service struct {
	indexer  Indexer
	analyzer *analysis.Analyzer
	log      *zap.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. indexer may be nil when Meilisearch
// is not configured; every write is then dropped.
func NewService(indexer Indexer, analyzer *analysis.Analyzer, log *zap.Logger) *Service {
	if analyzer == nil {
		analyzer = analysis.New(analysis.DefaultDecodeDepth)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{indexer: indexer, analyzer: analyzer, log: log.With(zap.String("module", "search"))}
}

func (s *Service) available() bool {
	return s.indexer != nil && s.indexer.Healthy()
}

// IndexAnnotation analyzes and indexes ann in the background.
func (s *Service) IndexAnnotation(ann store.Annotation) {
	if !s.available() {
		return
	}
	record := RecordFor(ann, s.analyzer)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.indexer.IndexAnnotations([]Record{record}); err != nil {
			s.log.Warn("index annotation", zap.String("id", ann.ID), zap.Error(err))
		}
	}()
}

// DeleteAnnotation removes an annotation from the index in the background.
func (s *Service) DeleteAnnotation(id string) {
	if !s.available() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.indexer.DeleteAnnotation(id); err != nil {
			s.log.Warn("delete annotation", zap.String("id", id), zap.Error(err))
		}
	}()
}

// Wait blocks until background writes have completed.
func (s *Service) Wait() {
	s.pending.Wait()
}

type ReindexOptions struct {
	BatchSize   int
	Concurrency int
}

// ReindexAll pages through src and pushes every annotation to the index.
// Pages are read in order and written with bounded concurrency; the first
// failed write stops the run. It returns the number of records written.
func (s *Service) ReindexAll(ctx context.Context, src Source, opts ReindexOptions) (int, error) {
	if !s.available() {
		return 0, fmt.Errorf("search index unavailable")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	var (
		mu      sync.Mutex
		written int
		after   string
	)
	for {
		if err := gctx.Err(); err != nil {
			break
		}
		page, err := src.ListAnnotationsAfter(gctx, after, opts.BatchSize)
		if err != nil {
			// A failed write cancels gctx, which surfaces here as a load error.
			if werr := g.Wait(); werr != nil {
				return written, werr
			}
			return written, fmt.Errorf("load annotations after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].ID

		records := make([]Record, 0, len(page))
		for _, ann := range page {
			records = append(records, RecordFor(ann, s.analyzer))
		}
		g.Go(func() error {
			if err := s.indexer.IndexAnnotations(records); err != nil {
				return fmt.Errorf("index batch ending %s: %w", records[len(records)-1].ID, err)
			}
			mu.Lock()
			written += len(records)
			mu.Unlock()
			s.log.Debug("indexed batch", zap.Int("size", len(records)))
			return nil
		})

		if len(page) < opts.BatchSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return written, err
	}
	if err := ctx.Err(); err != nil {
		return written, err
	}
	s.log.Info("reindex complete", zap.Int("annotations", written))
	return written, nil
}
