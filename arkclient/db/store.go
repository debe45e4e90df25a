// Package db is the client's local persistence layer: wallet identity,
// config, the VTXO set with CAS-checked state, the movement ledger, a
// single serialized exit plan, and round-backfill sync height.
package db

import (
	"database/sql"
	"fmt"

	"github.com/lightningnetwork/lnd/clock"

	_ "modernc.org/sqlite"
)

// Config configures the client store.
type Config struct {
	DBPath         string
	SkipMigrations bool
}

// Store is the client's SQL-backed persistence handle.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open connects to (or creates) the client's sqlite database.
func Open(cfg *Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("arkclient/db: db path is required")
	}

	sqlDB, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("arkclient/db: opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if !cfg.SkipMigrations {
		if err := runMigrations(sqlDB); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	return &Store{db: sqlDB, clock: clock.NewDefaultClock()}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }
