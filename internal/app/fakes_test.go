package app

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"marginalia/api/internal/analysis"
	"marginalia/api/internal/config"
	"marginalia/api/internal/metrics"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
)

type fakeStore struct {
	annotations map[string]store.Annotation
	flags       map[string][]string
	hidden      map[string]bool
	pingErr     error
	lookupErr   error
	calls       map[string]int
}

func newFakeStore(annotations ...store.Annotation) *fakeStore {
	fs := &fakeStore{
		annotations: map[string]store.Annotation{},
		flags:       map[string][]string{},
		hidden:      map[string]bool{},
		calls:       map[string]int{},
	}
	for _, ann := range annotations {
		fs.annotations[ann.ID] = ann
	}
	return fs
}

func (f *fakeStore) FetchOrdered(_ context.Context, ids []string) ([]store.Annotation, error) {
	f.calls["FetchOrdered"]++
	var out []store.Annotation
	for _, id := range ids {
		if ann, ok := f.annotations[id]; ok {
			out = append(out, ann)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAnnotation(_ context.Context, id string) (store.Annotation, error) {
	f.calls["GetAnnotation"]++
	ann, ok := f.annotations[id]
	if !ok {
		return store.Annotation{}, store.ErrNotFound
	}
	return ann, nil
}

func (f *fakeStore) FlagCounts(_ context.Context, ids []string) (map[string]int, error) {
	f.calls["FlagCounts"]++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := map[string]int{}
	for _, id := range ids {
		out[id] = len(f.flags[id])
	}
	return out, nil
}

func (f *fakeStore) FlagCount(_ context.Context, id string) (int, error) {
	f.calls["FlagCount"]++
	if f.lookupErr != nil {
		return 0, f.lookupErr
	}
	return len(f.flags[id]), nil
}

func (f *fakeStore) FlaggedBy(_ context.Context, userID string, ids []string) (map[string]bool, error) {
	f.calls["FlaggedBy"]++
	out := map[string]bool{}
	for _, id := range ids {
		out[id] = f.flaggedBy(userID, id)
	}
	return out, nil
}

func (f *fakeStore) IsFlaggedBy(_ context.Context, userID, id string) (bool, error) {
	f.calls["IsFlaggedBy"]++
	return f.flaggedBy(userID, id), nil
}

func (f *fakeStore) flaggedBy(userID, id string) bool {
	for _, user := range f.flags[id] {
		if user == userID {
			return true
		}
	}
	return false
}

func (f *fakeStore) HiddenFor(_ context.Context, ids []string) (map[string]bool, error) {
	f.calls["HiddenFor"]++
	out := map[string]bool{}
	for _, id := range ids {
		out[id] = f.hidden[id]
	}
	return out, nil
}

func (f *fakeStore) Hidden(_ context.Context, id string) (bool, error) {
	f.calls["Hidden"]++
	return f.hidden[id], nil
}

func (f *fakeStore) ListAnnotationsAfter(_ context.Context, afterID string, limit int) ([]store.Annotation, error) {
	ids := make([]string, 0, len(f.annotations))
	for id := range f.annotations {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]store.Annotation, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.annotations[id])
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

type fakeNIPSA struct {
	users   map[string]bool
	pingErr error
}

func (f *fakeNIPSA) IsFlagged(_ context.Context, userID string) (bool, error) {
	return f.users[userID], nil
}

func (f *fakeNIPSA) Add(_ context.Context, userID string) error {
	f.users[userID] = true
	return nil
}

func (f *fakeNIPSA) Remove(_ context.Context, userID string) error {
	delete(f.users, userID)
	return nil
}

func (f *fakeNIPSA) List(context.Context) ([]string, error) {
	out := make([]string, 0, len(f.users))
	for user := range f.users {
		out = append(out, user)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeNIPSA) Ping(context.Context) error {
	return f.pingErr
}

type fakeIndexer struct {
	mu      sync.Mutex
	records []search.Record
}

func (f *fakeIndexer) Healthy() bool { return true }

func (f *fakeIndexer) IndexAnnotations(records []search.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeIndexer) DeleteAnnotation(string) error { return nil }

func newTestService(fs *fakeStore, fn *fakeNIPSA, indexer search.Indexer) *Service {
	analyzer := analysis.New(analysis.DefaultDecodeDepth)
	return &Service{
		cfg:      config.Config{AuthDomain: "example.com", AdminToken: "admin-secret"},
		store:    fs,
		nipsa:    fn,
		search:   search.NewService(indexer, analyzer, zap.NewNop()),
		analyzer: analyzer,
		metrics:  metrics.New(nil),
		log:      zap.NewNop(),
	}
}
