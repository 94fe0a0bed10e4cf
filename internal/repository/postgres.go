// Package repository implements the checkout store on PostgreSQL using pgx.
package repository

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solekart/checkout/db"
	"github.com/solekart/checkout/internal/domain/checkout"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "running migrations")
	}
	return nil
}

var _ checkout.Store = (*Store)(nil)

// Store implements checkout.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// One retry on lock/serialization contention; validation failures are never
// retried because they fail identically.
const maxTxRetries = 1

// InTx runs fn within a READ COMMITTED transaction. The conditional-update
// statements issued by the queries carry their own row-level serialization,
// so a stronger isolation level is not required. Deadlocks and serialization
// failures are retried once with jittered backoff; if the retry also fails,
// checkout.ErrConflict is returned and the caller may resubmit.
func (s *Store) InTx(ctx context.Context, fn func(tx checkout.Tx) error) error {
	return withRetry(ctx, func() error {
		return s.runTx(ctx, fn)
	})
}

// withRetry runs op, retrying transient contention errors with jittered
// exponential backoff. Permanent errors are returned as-is; exhausting the
// retries yields checkout.ErrConflict.
func withRetry(ctx context.Context, op func() error) error {
	backoff := 25 * time.Millisecond

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		if attempt == maxTxRetries {
			break
		}

		jitter := time.Duration(rand.Int64N(int64(backoff / 2)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return errors.Wrap(checkout.ErrConflict, lastErr.Error())
}

func (s *Store) runTx(ctx context.Context, fn func(tx checkout.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	// Rollback is a no-op after a successful commit.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// retryable reports whether the error is transient lock or serialization
// contention. Constraint violations and domain errors are permanent.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	}
	return false
}
