package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// runner dispatches hooks and maps errors around every statement, inside or
// outside a transaction.
type runner struct {
	q     querier
	hooks hookChain
}

func (r runner) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = r.hooks.before(ctx, query)
	start := time.Now()
	res, err := r.q.ExecContext(ctx, query, args...)
	err = mapError(err)
	r.hooks.after(ctx, query, time.Since(start), err)
	return res, err
}

// query runs a statement returning rows. The caller must close the rows;
// hooks see the statement finish at Close, after every row was read.
func (r runner) query(ctx context.Context, query string, args ...any) (*rows, error) {
	ctx = r.hooks.before(ctx, query)
	start := time.Now()
	sqlRows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		err = mapError(err)
		r.hooks.after(ctx, query, time.Since(start), err)
		return nil, err
	}
	return &rows{Rows: sqlRows, ctx: ctx, query: query, start: start, hooks: r.hooks}, nil
}

// rows reports the statement to the hooks once, when closed.
type rows struct {
	*sql.Rows
	ctx    context.Context
	query  string
	start  time.Time
	hooks  hookChain
	closed bool
}

func (r *rows) Close() error {
	err := r.Rows.Close()
	if !r.closed {
		r.closed = true
		hookErr := r.Rows.Err()
		if hookErr == nil {
			hookErr = err
		}
		r.hooks.after(r.ctx, r.query, time.Since(r.start), mapError(hookErr))
	}
	return err
}

// scanRow runs a single-row query and scans it. A missing row is ErrNotFound.
func (r runner) scanRow(ctx context.Context, query string, args []any, dest ...any) error {
	ctx = r.hooks.before(ctx, query)
	start := time.Now()
	err := mapError(r.q.QueryRowContext(ctx, query, args...).Scan(dest...))
	r.hooks.after(ctx, query, time.Since(start), err)
	return err
}

func (r runner) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.scanRow(ctx, query, args, &n)
	return n, err
}

// inTx runs fn in a transaction, committing on success and rolling back on
// error or panic.
func (d *DB) inTx(ctx context.Context, fn func(tx runner) error) (err error) {
	sqlTx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("rollback failed (%v) after: %w", rbErr, err)
			}
		}
	}()

	if err = fn(runner{q: sqlTx, hooks: d.run.hooks}); err != nil {
		return err
	}
	return mapError(sqlTx.Commit())
}
