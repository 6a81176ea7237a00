package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationSource returns the embedded migrations as a golang-migrate source.
func MigrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	return src, nil
}

// Migrator builds a golang-migrate instance bound to this store's handle.
// Do not call Close on it: that would close the shared *sql.DB.
func (d *DB) Migrator() (*migrate.Migrate, error) {
	src, err := MigrationSource()
	if err != nil {
		return nil, err
	}
	drv, err := sqlite.WithInstance(d.sql, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// Migrate applies every pending up migration.
func (d *DB) Migrate() error {
	m, err := d.Migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Info(fmt.Sprintf("migrate: "+format, v...))
}

func (migrateLogger) Verbose() bool { return false }
