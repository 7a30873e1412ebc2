package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax for the two supported drivers.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// ParseURL maps a database URL onto a driver name and DSN. Postgres URLs are
// passed through to pgx; "sqlite://<path>" opens a local file.
func ParseURL(databaseURL string) (driver, dsn string, dialect Dialect, err error) {
	trimmed := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return "pgx", trimmed, DialectPostgres, nil
	case strings.HasPrefix(trimmed, "sqlite://"):
		path := strings.TrimPrefix(trimmed, "sqlite://")
		if path == "" {
			return "", "", 0, fmt.Errorf("sqlite url %q has no path", databaseURL)
		}
		return "sqlite", path, DialectSQLite, nil
	default:
		return "", "", 0, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

func Open(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	driver, dsn, dialect, err := ParseURL(databaseURL)
	if err != nil {
		return nil, 0, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, 0, fmt.Errorf("open db: %w", err)
	}

	if dialect == DialectSQLite {
		// sqlite serializes writers; a single connection also keeps
		// ":memory:" databases from splitting across the pool.
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, 0, fmt.Errorf("ping db: %w", err)
	}
	return db, dialect, nil
}
