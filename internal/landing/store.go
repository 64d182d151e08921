// Package landing provides the pooled connection to the scratch database
// used as the computation substrate for every reconciliation run. All
// staging DDL/DML and the reconciliation query itself execute here; source
// and target systems are never written to.
package landing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable marks landing-store connection loss. Callers do not retry
// automatically; retries, if desired, belong to the caller.
var ErrUnavailable = errors.New("landing store unavailable")

// Store is the narrow landing-store contract the pipeline depends on.
// Pool is the production implementation; tests substitute fakes.
type Store interface {
	// Query runs a SELECT and returns the rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow runs a single-row SELECT.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Exec runs DDL/DML and returns the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// InTx runs fn inside one transaction: commit on nil, rollback on error.
	InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
	// CopyText streams a COPY ... FROM STDIN payload and returns the number
	// of rows loaded. copySQL must be a COPY statement in text format.
	CopyText(ctx context.Context, copySQL string, payload io.Reader) (int64, error)
	// HealthCheck issues a trivial round-trip query.
	HealthCheck(ctx context.Context) error
}

// Pool is the pgx-backed landing store.
type Pool struct {
	pool *pgxpool.Pool
}

// New opens a pooled connection to the landing database and verifies it with
// a ping. Connection failure surfaces as ErrUnavailable.
func New(ctx context.Context, dsn string) (*Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: pgxpool: %v", ErrUnavailable, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return &Pool{pool: pool}, nil
}

// Close releases the pool.
func (p *Pool) Close() { p.pool.Close() }

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InTx acquires one connection, begins a transaction, and runs fn. Multi-
// statement operations (create + load + index) go through here so they
// commit or roll back as a unit.
func (p *Pool) InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// CopyText drives the wire-level COPY protocol with a text-format payload.
func (p *Pool) CopyText(ctx context.Context, copySQL string, payload io.Reader) (int64, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: acquire: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	tag, err := conn.Conn().PgConn().CopyFrom(ctx, payload, copySQL)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HealthCheck verifies the store answers a trivial query. Used by the
// executor to fail fast before starting an extraction.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var one int
	if err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
