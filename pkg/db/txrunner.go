package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultMaxRetries bounds RunWithRetry when the caller passes zero.
const DefaultMaxRetries = 3

// retryBaseDelay is the backoff unit: attempt n sleeps 2^n * retryBaseDelay.
const retryBaseDelay = 100 * time.Millisecond

// TxFunc is a unit of work executed inside a transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// Beginner is satisfied by *pgxpool.Pool (and by pgxmock pools in tests).
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner wraps units of work in atomic transactions: commit on success,
// rollback on failure, with the original failure always propagated
// unchanged. Retry is offered only for the transient-conflict class.
type TxRunner struct {
	db     Beginner
	logger *slog.Logger
}

func NewTxRunner(db Beginner, logger *slog.Logger) *TxRunner {
	return &TxRunner{db: db, logger: logger}
}

// Run executes fn in a fresh transaction. On error the transaction is
// rolled back and fn's error is returned as-is; rollback failures are
// logged, never substituted for the original error.
func (r *TxRunner) Run(ctx context.Context, fn TxFunc) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database error beginning transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.ErrorContext(ctx, "Failed to rollback transaction", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("database error committing transaction: %w", err)
	}
	return nil
}

// RunMany executes ops sequentially inside a single transaction with one
// commit at the end. Ops deliver their results through their own closures;
// the first failing op aborts and rolls back everything before it.
func (r *TxRunner) RunMany(ctx context.Context, ops ...TxFunc) error {
	return r.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for i, op := range ops {
			if err := op(ctx, tx); err != nil {
				return fmt.Errorf("operation %d failed: %w", i, err)
			}
		}
		return nil
	})
}

// RunWithRetry runs fn, retrying only transient conflicts with pure
// exponential backoff (2^attempt * 100ms, no jitter). Non-transient
// failures are returned immediately; once maxRetries is exhausted the last
// observed failure is returned, not a synthetic retry error.
func (r *TxRunner) RunWithRetry(ctx context.Context, fn TxFunc, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = r.Run(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}

		delay := (1 << attempt) * retryBaseDelay
		r.logger.WarnContext(ctx, "transient conflict, retrying transaction",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.Any("error", lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// RunInTx is the single-result variant of TxRunner.Run.
func RunInTx[T any](ctx context.Context, r *TxRunner, fn func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	var out T
	err := r.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
