package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Up applies the pending migrations of backend against dsn. For SQLite dsn
// is the database file path. Postgres runs under migrate's advisory lock,
// so concurrent instances may call Up at startup.
func Up(backend, dsn string, log logger.Logger) error {
	var dir, databaseURL string
	switch backend {
	case storage.BackendPostgres:
		dir, databaseURL = "postgres", dsn
	case storage.BackendSQLite:
		dir, databaseURL = "sqlite", "sqlite3://"+dsn
	default:
		return fmt.Errorf("no SQL migrations for backend %q", backend)
	}

	src, err := iofs.New(files, dir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	log.Infow("Migrations applied",
		"backend", backend,
		"version", version,
		"dirty", dirty,
	)
	return nil
}
