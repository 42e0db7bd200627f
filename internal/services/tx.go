package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
)

// TxRunner opens one database transaction per engine operation and retries
// the whole operation when PostgreSQL aborts it for a lock conflict.
type TxRunner struct {
	db          TxBeginner
	lockTimeout time.Duration
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

func NewTxRunner(db TxBeginner, lockTimeout time.Duration, maxAttempts int, logger *slog.Logger) *TxRunner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TxRunner{
		db:          db,
		lockTimeout: lockTimeout,
		maxAttempts: maxAttempts,
		backoff:     20 * time.Millisecond,
		logger:      logger,
	}
}

// Run executes fn inside a transaction. fn may be invoked more than once, so it
// must not have side effects outside tx.
func (r *TxRunner) Run(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt >= r.maxAttempts {
			r.logger.Warn("transaction retries exhausted", "op", op, "attempts", attempt, "error", err)
			return fmt.Errorf("%w: %s: %v", ErrTransientConflict, op, err)
		}
		r.logger.Debug("retrying transaction", "op", op, "attempt", attempt, "error", err)

		wait := r.backoff*time.Duration(attempt) + rand.N(r.backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if r.lockTimeout > 0 {
		// SET LOCAL does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	}
	return false
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
