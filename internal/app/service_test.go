package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"marginalia/api/internal/config"
	"marginalia/api/internal/metrics"
	"marginalia/api/internal/nipsa"
	"marginalia/api/internal/presenter"
	"marginalia/api/internal/store"
)

func newIntegrationService(t *testing.T) (*Service, *store.SQLStore, *nipsa.RedisStore) {
	t.Helper()
	ctx := context.Background()

	db, dialect, err := store.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	dataStore := store.NewSQLStore(db, dialect, nil)
	fsys, err := store.Migrations("")
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if err := dataStore.ApplyMigrations(ctx, fsys); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	mr := miniredis.RunT(t)
	nipsaStore, err := nipsa.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = nipsaStore.Close() })

	cfg := config.Config{AuthDomain: "example.com", URIDecodeDepth: 5}
	svc := New(cfg, dataStore, nipsaStore, nil, metrics.New(prometheus.NewRegistry()), nil)
	return svc, dataStore, nipsaStore
}

func seedThread(t *testing.T, s *store.SQLStore) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2015, 9, 4, 17, 37, 49, 517852000, time.UTC)
	annotations := []store.Annotation{
		{ID: "root", UserID: "acct:alice@example.com", TargetURI: "https://example.com/article", Text: "root",
			Targets:  []store.Target{{Source: "https://example.com/article", Selector: []store.Selector{{Type: "TextQuoteSelector", Exact: "quoted"}}}},
			Document: &store.Document{ID: "doc", Title: "Article"}, Created: created},
		{ID: "reply", UserID: "acct:troll@example.com", TargetURI: "https://example.com/article", Text: "reply",
			References: json.RawMessage(`["root"]`), Created: created.Add(time.Minute)},
		{ID: "odd", UserID: "acct:bob@example.com", Text: "odd refs",
			References: json.RawMessage(`{"not":"a list"}`), Created: created.Add(2 * time.Minute)},
	}
	for _, ann := range annotations {
		if err := s.InsertAnnotation(ctx, ann); err != nil {
			t.Fatalf("insert %s: %v", ann.ID, err)
		}
	}
	for _, user := range []string{"acct:viewer@example.com", "acct:carol@example.com"} {
		if err := s.AddFlag(ctx, "root", user); err != nil {
			t.Fatalf("flag: %v", err)
		}
	}
	if err := s.SetHidden(ctx, "odd", true); err != nil {
		t.Fatalf("hide: %v", err)
	}
}

func TestPresentationAgainstRealStores(t *testing.T) {
	svc, dataStore, nipsaStore := newIntegrationService(t)
	seedThread(t, dataStore)
	ctx := context.Background()

	if _, err := svc.FlagUser(ctx, "troll"); err != nil {
		t.Fatalf("FlagUser: %v", err)
	}
	if banned, _ := nipsaStore.IsFlagged(ctx, "acct:troll@example.com"); !banned {
		t.Fatal("troll should be in the redis set")
	}

	viewer := presenter.Viewer{UserID: "acct:viewer@example.com"}
	ids := []string{"odd", "root", "reply", "missing", "root"}
	payloads, err := svc.PresentAll(ctx, viewer, ids)
	if err != nil {
		t.Fatalf("PresentAll: %v", err)
	}
	if len(payloads) != 4 {
		t.Fatalf("payloads = %d, want 4", len(payloads))
	}

	wantOrder := []string{"odd", "root", "reply", "root"}
	wantNIPSA := []bool{true, false, true, false}
	for i, p := range payloads {
		if p.ID != wantOrder[i] || p.NIPSA != wantNIPSA[i] {
			t.Fatalf("payload %d = %s nipsa=%v, want %s nipsa=%v", i, p.ID, p.NIPSA, wantOrder[i], wantNIPSA[i])
		}
	}
	root := payloads[1].Map()
	if root["moderation"].(map[string]any)["flag_count"] != 2 || root["flagged"] != true {
		t.Fatalf("root payload = %v", root)
	}
	if _, ok := payloads[0].Map()["references"]; ok {
		t.Fatal("non-list references should not render")
	}

	for i, id := range wantOrder {
		single, err := svc.Present(ctx, viewer, id)
		if err != nil {
			t.Fatalf("Present(%s): %v", id, err)
		}
		batchJSON, _ := json.Marshal(payloads[i])
		singleJSON, _ := json.Marshal(single)
		if string(batchJSON) != string(singleJSON) {
			t.Fatalf("%s differs:\nbatch  %s\nsingle %s", id, batchJSON, singleJSON)
		}
	}
}

func TestAnonymousPresentationHasNoModeration(t *testing.T) {
	svc, dataStore, _ := newIntegrationService(t)
	seedThread(t, dataStore)

	payloads, err := svc.PresentAll(context.Background(), presenter.Viewer{}, []string{"root", "reply"})
	if err != nil {
		t.Fatalf("PresentAll: %v", err)
	}
	for _, p := range payloads {
		m := p.Map()
		if _, ok := m["moderation"]; ok {
			t.Fatalf("anonymous payload has moderation: %v", m)
		}
		if m["flagged"] != false {
			t.Fatalf("anonymous flagged = %v", m["flagged"])
		}
	}
}

func TestUnflagUser(t *testing.T) {
	svc, _, _ := newIntegrationService(t)
	ctx := context.Background()

	if _, err := svc.FlagUser(ctx, "acct:troll@example.com"); err != nil {
		t.Fatalf("FlagUser: %v", err)
	}
	userID, err := svc.UnflagUser(ctx, "troll")
	if err != nil || userID != "acct:troll@example.com" {
		t.Fatalf("UnflagUser = (%q, %v)", userID, err)
	}
	users, err := svc.ListNIPSA(ctx)
	if err != nil || len(users) != 0 {
		t.Fatalf("ListNIPSA = (%v, %v)", users, err)
	}
}

func TestNewWithoutRedis(t *testing.T) {
	ctx := context.Background()
	db, dialect, err := store.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "bare.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	svc := New(config.Config{}, store.NewSQLStore(db, dialect, nil), nil, nil, nil, nil)
	if _, err := svc.FlagUser(ctx, "acct:a@example.com"); err == nil {
		t.Fatal("expected flagging to fail without a nipsa store")
	}
	for name, err := range svc.Ping(ctx) {
		if err != nil {
			t.Fatalf("%s ping: %v", name, err)
		}
	}
}
