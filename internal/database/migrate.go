package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// newMigrator builds a migrate instance over an open connection.
// The returned instance must not be closed: that would close conn.
func newMigrator(conn *sql.DB) (*migrate.Migrate, error) {
	dbInstance, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create DB instance: %w", err)
	}

	srcInstance, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create source instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcInstance, "sqlite", dbInstance)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// runMigrations brings the database schema up to the latest version.
func runMigrations(ctx context.Context, conn *sql.DB, dbPath string, log *slog.Logger) error {
	m, err := newMigrator(conn)
	if err != nil {
		return err
	}

	migrateErr := m.Up()

	fields := []any{"dbPath", dbPath}
	version, dirty, versionErr := m.Version()
	if versionErr == nil {
		fields = append(fields, "version", version, "dirty", dirty)
	} else if !errors.Is(versionErr, migrate.ErrNilVersion) {
		log.WarnContext(ctx, "Failed to fetch migration version",
			"error", versionErr,
			"dbPath", dbPath)
	}

	if migrateErr != nil {
		if !errors.Is(migrateErr, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", migrateErr)
		}
		log.DebugContext(ctx, "No migrations to apply", fields...)
		return nil
	}

	log.InfoContext(ctx, "DB is migrated", fields...)
	return nil
}

// SchemaVersion reports the applied migration version.
func (db *DB) SchemaVersion() (uint, bool, error) {
	m, err := newMigrator(db.conn)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}
