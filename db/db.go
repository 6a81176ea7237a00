// Package db is the SQLite store behind the API: users, events and the
// registration ledger. All state lives here; callers hold a *DB handle.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Config controls how the store is opened.
type Config struct {
	// DSN is a modernc sqlite DSN, e.g. "file:campusconnect.db".
	DSN string

	// MaxOpenConns caps the pool. SQLite has a single writer, so 1 avoids
	// "database is locked" under concurrent writes.
	MaxOpenConns int

	// QueryTimeout bounds one store operation when the caller set no deadline.
	QueryTimeout time.Duration

	// SkipMigrations leaves the schema untouched on Open.
	SkipMigrations bool

	Hooks []Hook

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// DB represents our database layer.
type DB struct {
	sql          *sql.DB
	run          runner
	queryTimeout time.Duration
	now          func() time.Time
	newID        func() string
}

// pragmas are applied to every pooled connection. _txlock=immediate takes the
// write lock at BEGIN so two transactions cannot both read then write.
var pragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_txlock=immediate",
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

// Open connects to SQLite, verifies the connection and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	sqlDB, err := sql.Open("sqlite", withPragmas(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{
		sql:          sqlDB,
		run:          runner{q: sqlDB, hooks: newHookChain(cfg.Hooks)},
		queryTimeout: cfg.QueryTimeout,
		now:          cfg.Now,
		newID:        cfg.NewID,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}

	if !cfg.SkipMigrations {
		if err := d.Migrate(); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return d, nil
}

// Close closes all pooled connections. Call it last during shutdown.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Ping verifies that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	return mapError(d.sql.PingContext(ctx))
}

// opContext applies the default query timeout unless the caller already set a deadline.
func (d *DB) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.queryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.queryTimeout)
}

func (d *DB) nowUTC() time.Time {
	return d.now().UTC()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
