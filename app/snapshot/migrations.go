package snapshot

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// migrateSchema brings the snapshot tables up to the newest embedded schema and returns the
// schema version. A schema left dirty by an interrupted migration is an error.
func migrateSchema(db *sql.DB) (uint, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to wrap snapshot database: %w", err)
	}

	scripts, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to read embedded schema: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", scripts, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare schema migration: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to migrate snapshot schema: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("snapshot schema version %d is dirty", version)
	}

	return version, nil
}
