package store

import (
	"context"
	"io/fs"
	"os"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("MARGINALIA_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("MARGINALIA_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, dialect, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	s := NewSQLStore(db, dialect, nil)
	fsys, err := Migrations("")
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	if err := s.ApplyMigrations(ctx, fsys); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}

	seedAnnotations(t, s, "pg1", "pg2")
	if err := s.AddFlag(ctx, "pg1", "acct:x@example.com"); err != nil {
		t.Fatalf("add flag: %v", err)
	}
	counts, err := s.FlagCounts(ctx, []string{"pg1", "pg2"})
	if err != nil {
		t.Fatalf("FlagCounts: %v", err)
	}
	if counts["pg1"] != 1 || counts["pg2"] != 0 {
		t.Fatalf("counts = %v", counts)
	}

	downs, err := migrationFiles(fsys, ".down.sql")
	if err != nil {
		t.Fatalf("list down migrations: %v", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))
	for _, name := range downs {
		contents, err := fs.ReadFile(fsys, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			t.Fatalf("apply %s: %v", name, err)
		}
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}

	if err := s.ApplyMigrations(ctx, fsys); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}
