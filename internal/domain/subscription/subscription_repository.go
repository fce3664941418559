package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

var _ Repository = (*PostgresSubscriptionRepo)(nil)

// Repository persists subscriptions. Tx-scoped methods take the caller's
// transaction explicitly.
type Repository interface {
	Create(ctx context.Context, q db.Querier, params types.CreateSubscriptionParams) (*types.Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Subscription, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*types.Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Subscription, error)
	// Activate transitions PENDING→ACTIVE; a subscription in any other state
	// is left untouched and reported as a conflict.
	Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	Cancel(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type PostgresSubscriptionRepo struct {
	pgpool *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresSubscriptionRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{pgpool: pgpool, logger: logger}
}

const subscriptionColumns = `id, user_id, plan_id, amount, periodicity, start_date, status, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.Amount, &s.Periodicity,
		&s.StartDate, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresSubscriptionRepo) Create(ctx context.Context, q db.Querier, params types.CreateSubscriptionParams) (*types.Subscription, error) {
	if q == nil {
		q = r.pgpool
	}
	row := q.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, plan_id, amount, periodicity, start_date, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
		RETURNING `+subscriptionColumns,
		params.UserID, params.PlanID, params.Amount, string(params.Periodicity), params.StartDate)

	sub, err := scanSubscription(row)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to create subscription", slog.Any("error", err))
		return nil, fmt.Errorf("database error creating subscription: %w", err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.Subscription, error) {
	sub, err := scanSubscription(r.pgpool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subscription not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching subscription: %w", err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*types.Subscription, error) {
	sub, err := scanSubscription(tx.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subscription not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("database error locking subscription: %w", err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Subscription, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC, id ASC`, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list subscriptions", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*types.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresSubscriptionRepo) Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'ACTIVE', updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`,
		id)
	if err != nil {
		return fmt.Errorf("database error activating subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s is not pending activation: %w", id, types.ErrConflict)
	}
	return nil
}

func (r *PostgresSubscriptionRepo) Cancel(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'CANCELED', updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'ACTIVE')`,
		id)
	if err != nil {
		return fmt.Errorf("database error canceling subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s is already canceled: %w", id, types.ErrConflict)
	}
	return nil
}
