package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// runMigrations brings db up to the latest schema version for the given
// backend. Safe to call on every startup: a fully migrated database is
// a no-op.
func runMigrations(db *sql.DB, backend Backend) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("arkd/db: loading migration source: %w", err)
	}

	var driver database.Driver
	switch backend {
	case BackendSqlite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case BackendPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return fmt.Errorf("arkd/db: unsupported backend %v", backend)
	}
	if err != nil {
		return fmt.Errorf("arkd/db: creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(backend), driver)
	if err != nil {
		return fmt.Errorf("arkd/db: creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("arkd/db: applying migrations: %w", err)
	}
	return nil
}
