// Package app wires the store, the presentation pipeline, the NIPSA set and
// the search write path behind one Service, and serves it over HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"marginalia/api/internal/analysis"
	"marginalia/api/internal/config"
	"marginalia/api/internal/formatter"
	"marginalia/api/internal/metrics"
	"marginalia/api/internal/nipsa"
	"marginalia/api/internal/presenter"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
)

type dataStore interface {
	presenter.Fetcher
	formatter.FlagCounter
	formatter.FlagLookup
	nipsa.ModerationLookup
	search.Source
	GetAnnotation(context.Context, string) (store.Annotation, error)
	Ping(context.Context) error
}

type nipsaStore interface {
	nipsa.Lookup
	Add(context.Context, string) error
	Remove(context.Context, string) error
	List(context.Context) ([]string, error)
	Ping(context.Context) error
}

// noNIPSA stands in when Redis is not configured: nobody is shadow-banned.
type noNIPSA struct{}

var errNIPSADisabled = errors.New("nipsa store not configured")

func (noNIPSA) IsFlagged(context.Context, string) (bool, error) { return false, nil }
func (noNIPSA) Add(context.Context, string) error               { return errNIPSADisabled }
func (noNIPSA) Remove(context.Context, string) error            { return errNIPSADisabled }
func (noNIPSA) List(context.Context) ([]string, error)          { return []string{}, nil }
func (noNIPSA) Ping(context.Context) error                      { return nil }

type Service struct {
	cfg      config.Config
	store    dataStore
	nipsa    nipsaStore
	search   *search.Service
	analyzer *analysis.Analyzer
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// New builds the service. nipsaStore and searchService may be nil.
func New(cfg config.Config, dataStore *store.SQLStore, nipsaStore *nipsa.RedisStore, searchService *search.Service, m *metrics.Metrics, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		nipsa:    noNIPSA{},
		search:   searchService,
		analyzer: analysis.New(cfg.URIDecodeDepth),
		metrics:  m,
		log:      log,
	}
	if nipsaStore != nil {
		s.nipsa = nipsaStore
	}
	if s.search == nil {
		s.search = search.NewService(nil, s.analyzer, log)
	}
	return s
}

// Presentation renders annotations for one viewer. It owns fresh formatter
// caches and must not outlive the request it was built for.
type Presentation struct {
	pipeline    *presenter.Pipeline
	transformer *nipsa.Transformer
}

func (s *Service) Presentation(viewer presenter.Viewer) *Presentation {
	return &Presentation{
		pipeline: presenter.NewPipeline(s.store, s.metrics,
			formatter.NewModeration(s.store, viewer.UserID, s.metrics),
			formatter.NewFlag(s.store, viewer.UserID, s.metrics),
		),
		transformer: nipsa.NewTransformer(s.nipsa, s.store, s.metrics),
	}
}

func (p *Presentation) PresentAll(ctx context.Context, ids []string) ([]*presenter.Payload, error) {
	payloads, err := p.pipeline.PresentAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := p.transformer.TransformAll(ctx, payloads); err != nil {
		return nil, err
	}
	return payloads, nil
}

func (p *Presentation) Present(ctx context.Context, ann store.Annotation) (*presenter.Payload, error) {
	payload, err := p.pipeline.Present(ctx, ann)
	if err != nil {
		return nil, err
	}
	if err := p.transformer.Transform(ctx, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Service) PresentAll(ctx context.Context, viewer presenter.Viewer, ids []string) ([]*presenter.Payload, error) {
	return s.Presentation(viewer).PresentAll(ctx, ids)
}

func (s *Service) Present(ctx context.Context, viewer presenter.Viewer, id string) (*presenter.Payload, error) {
	ann, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Presentation(viewer).Present(ctx, ann)
}

// ResolveViewer turns the forwarded user header into a viewer. Bare
// usernames are qualified with the configured auth domain.
func (s *Service) ResolveViewer(forwarded string) (presenter.Viewer, error) {
	if forwarded == "" {
		return presenter.Viewer{}, nil
	}
	userID, err := nipsa.NormalizeUserID(forwarded, s.cfg.AuthDomain)
	if err != nil {
		return presenter.Viewer{}, domainError(http.StatusBadRequest, "INVALID_VIEWER", "Forwarded user is not a valid userid", nil)
	}
	return presenter.Viewer{UserID: userID}, nil
}

// IndexAnnotation pushes the stored annotation into the search index.
func (s *Service) IndexAnnotation(ctx context.Context, id string) error {
	ann, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return err
	}
	s.search.IndexAnnotation(ann)
	return nil
}

func (s *Service) Reindex(ctx context.Context, opts search.ReindexOptions) (int, error) {
	return s.search.ReindexAll(ctx, s.store, opts)
}

func (s *Service) AnalysisSettings() analysis.Settings {
	return analysis.DefaultSettings()
}

func (s *Service) ListNIPSA(ctx context.Context) ([]string, error) {
	return s.nipsa.List(ctx)
}

// FlagUser adds a user to the NIPSA set. user may be a full userid or a
// username on the configured auth domain.
func (s *Service) FlagUser(ctx context.Context, user string) (string, error) {
	userID, err := s.nipsaUserID(user)
	if err != nil {
		return "", err
	}
	if err := s.nipsa.Add(ctx, userID); err != nil {
		return "", err
	}
	s.log.Info("nipsa flagged user", zap.String("userid", userID))
	return userID, nil
}

func (s *Service) UnflagUser(ctx context.Context, user string) (string, error) {
	userID, err := s.nipsaUserID(user)
	if err != nil {
		return "", err
	}
	if err := s.nipsa.Remove(ctx, userID); err != nil {
		return "", err
	}
	s.log.Info("nipsa unflagged user", zap.String("userid", userID))
	return userID, nil
}

func (s *Service) nipsaUserID(user string) (string, error) {
	userID, err := nipsa.NormalizeUserID(user, s.cfg.AuthDomain)
	if err != nil {
		return "", domainError(http.StatusBadRequest, "INVALID_USERID",
			fmt.Sprintf("Could not find user %q on %s", user, s.cfg.AuthDomain), nil)
	}
	return userID, nil
}

func (s *Service) AdminToken() string {
	return s.cfg.AdminToken
}

// Ping checks every backing service and reports each by name.
func (s *Service) Ping(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return map[string]error{
		"database": s.store.Ping(ctx),
		"nipsa":    s.nipsa.Ping(ctx),
	}
}
