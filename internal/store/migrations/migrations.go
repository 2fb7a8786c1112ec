// Package migrations embeds the SQLite schema and applies it with
// golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// ErrSchemaMismatch reports a database that is dirty or at a different
// version than this binary expects.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// MigrateUp runs all pending migrations. The caller keeps ownership of db.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m.Close would close db, which belongs to the caller.
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Status returns the applied version and the latest embedded version.
func Status(db *sql.DB) (current uint, latest uint, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, 0, fmt.Errorf("create migrate instance: %w", err)
	}
	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, 0, fmt.Errorf("read database version: %w", err)
	}
	if dirty {
		return current, 0, fmt.Errorf("%w: database is dirty at version %d", ErrSchemaMismatch, current)
	}

	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return current, 0, fmt.Errorf("read migration files: %w", err)
	}
	defer src.Close()
	latest, err = latestVersion(src)
	if err != nil {
		return current, 0, fmt.Errorf("determine latest version: %w", err)
	}
	if current > latest {
		return current, latest, fmt.Errorf("%w: database version %d is ahead of binary version %d", ErrSchemaMismatch, current, latest)
	}
	return current, latest, nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("create source driver: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			return version, nil
		}
		version = next
	}
}
