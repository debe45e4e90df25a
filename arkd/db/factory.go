// Package db is the ASP's persistence layer: rounds, vtxos and the
// onboard-registration staging table, over sqlite or postgres.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/lightningnetwork/lnd/clock"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Backend selects the SQL driver a Store opens.
type Backend string

const (
	BackendSqlite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config configures the database connection.
type Config struct {
	Backend Backend

	// DSN is the sqlite file path, or the postgres connection string.
	DSN string

	SkipMigrations bool
}

// Store is the ASP's SQL-backed persistence handle.
type Store struct {
	db      *sql.DB
	backend Backend
	clock   clock.Clock
}

// Open connects to the configured backend and brings its schema up to
// date.
func Open(cfg *Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("arkd/db: dsn is required")
	}

	driver := "sqlite"
	if cfg.Backend == BackendPostgres {
		driver = "postgres"
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("arkd/db: opening %s: %w", cfg.Backend, err)
	}

	if cfg.Backend == BackendSqlite {
		// A single writer connection avoids SQLITE_BUSY under the
		// round coordinator's serialized write pattern.
		sqlDB.SetMaxOpenConns(1)
	}

	if !cfg.SkipMigrations {
		if err := runMigrations(sqlDB, cfg.Backend); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	return &Store{db: sqlDB, backend: cfg.Backend, clock: clock.NewDefaultClock()}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// isUniqueViolation reports whether err is a duplicate-key error on
// either backend, used to distinguish a benign idempotent re-insert
// from a genuine write failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	// modernc.org/sqlite surfaces constraint violations as a plain
	// error string; there is no typed sentinel to match on.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
