package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

var _ ChargeRepository = (*PostgresChargeRepo)(nil)

// ChargeRepository persists pending charges. Methods taking a db.Querier or
// pgx.Tx participate in a caller-supplied transaction; the rest read from
// the pool.
type ChargeRepository interface {
	Create(ctx context.Context, q db.Querier, params types.CreateChargeParams) (*types.PendingCharge, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.PendingCharge, error)
	// GetForUpdate locks the charge row for the remainder of the transaction.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*types.PendingCharge, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter types.ChargeFilter) ([]*types.PendingCharge, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*types.PendingCharge, error)
	// ListMatching returns the user's PENDING/OVERDUE charges whose amount
	// exactly equals amount, ordered by due date then id.
	ListMatching(ctx context.Context, q db.Querier, userID uuid.UUID, amount float64) ([]*types.PendingCharge, error)
	ListDueBefore(ctx context.Context, cutoff time.Time, statuses ...types.ChargeStatus) ([]*types.PendingCharge, error)
	ListDueBetween(ctx context.Context, from, until time.Time, status types.ChargeStatus) ([]*types.PendingCharge, error)
	// MarkPaid transitions the charge to PAID iff it is still PENDING or
	// OVERDUE; a lost race surfaces as a transient conflict.
	MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	// BulkMarkOverdue transitions the given charges to OVERDUE where still
	// PENDING and returns how many rows changed.
	BulkMarkOverdue(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error)
	// CancelBySubscription cancels all outstanding charges of a subscription.
	CancelBySubscription(ctx context.Context, tx pgx.Tx, subscriptionID uuid.UUID) (int64, error)
}

type PostgresChargeRepo struct {
	pgpool *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresChargeRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresChargeRepo {
	return &PostgresChargeRepo{pgpool: pgpool, logger: logger}
}

const chargeColumns = `id, user_id, subscription_id, amount, due_date, description, status, created_at, updated_at`

func scanCharge(row pgx.Row) (*types.PendingCharge, error) {
	var c types.PendingCharge
	err := row.Scan(&c.ID, &c.UserID, &c.SubscriptionID, &c.Amount, &c.DueDate,
		&c.Description, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCharges(rows pgx.Rows) ([]*types.PendingCharge, error) {
	defer rows.Close()
	var out []*types.PendingCharge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresChargeRepo) Create(ctx context.Context, q db.Querier, params types.CreateChargeParams) (*types.PendingCharge, error) {
	if q == nil {
		q = r.pgpool
	}
	row := q.QueryRow(ctx, `
		INSERT INTO pending_charges (user_id, subscription_id, amount, due_date, description, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
		RETURNING `+chargeColumns,
		params.UserID, params.SubscriptionID, params.Amount, params.DueDate, params.Description)

	charge, err := scanCharge(row)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to create pending charge", slog.Any("error", err))
		return nil, fmt.Errorf("database error creating pending charge: %w", err)
	}
	return charge, nil
}

func (r *PostgresChargeRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.PendingCharge, error) {
	charge, err := scanCharge(r.pgpool.QueryRow(ctx,
		`SELECT `+chargeColumns+` FROM pending_charges WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pending charge not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching pending charge: %w", err)
	}
	return charge, nil
}

func (r *PostgresChargeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*types.PendingCharge, error) {
	charge, err := scanCharge(tx.QueryRow(ctx,
		`SELECT `+chargeColumns+` FROM pending_charges WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pending charge not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("database error locking pending charge: %w", err)
	}
	return charge, nil
}

func (r *PostgresChargeRepo) ListByUser(ctx context.Context, userID uuid.UUID, filter types.ChargeFilter) ([]*types.PendingCharge, error) {
	builder := squirrel.Select(chargeColumns).
		From("pending_charges").
		PlaceholderFormat(squirrel.Dollar).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("due_date ASC", "id ASC")

	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"status": filter.Status})
	}
	if !filter.DueFrom.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{"due_date": filter.DueFrom})
	}
	if !filter.DueUntil.IsZero() {
		builder = builder.Where(squirrel.LtOrEq{"due_date": filter.DueUntil})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build charge list query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list pending charges", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing pending charges: %w", err)
	}
	return scanCharges(rows)
}

func (r *PostgresChargeRepo) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*types.PendingCharge, error) {
	rows, err := r.pgpool.Query(ctx, `
		SELECT `+chargeColumns+`
		FROM pending_charges
		WHERE subscription_id = $1
		ORDER BY due_date ASC, id ASC`,
		subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("database error listing subscription charges: %w", err)
	}
	return scanCharges(rows)
}

func (r *PostgresChargeRepo) ListMatching(ctx context.Context, q db.Querier, userID uuid.UUID, amount float64) ([]*types.PendingCharge, error) {
	if q == nil {
		q = r.pgpool
	}
	rows, err := q.Query(ctx, `
		SELECT `+chargeColumns+`
		FROM pending_charges
		WHERE user_id = $1 AND amount = $2 AND status IN ('PENDING', 'OVERDUE')
		ORDER BY due_date ASC, id ASC`,
		userID, amount)
	if err != nil {
		return nil, fmt.Errorf("database error matching pending charges: %w", err)
	}
	return scanCharges(rows)
}

func (r *PostgresChargeRepo) ListDueBefore(ctx context.Context, cutoff time.Time, statuses ...types.ChargeStatus) ([]*types.PendingCharge, error) {
	if len(statuses) == 0 {
		statuses = []types.ChargeStatus{types.ChargePending}
	}
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	rows, err := r.pgpool.Query(ctx, `
		SELECT `+chargeColumns+`
		FROM pending_charges
		WHERE due_date < $1 AND status = ANY($2)
		ORDER BY due_date ASC, id ASC`,
		cutoff, ss)
	if err != nil {
		return nil, fmt.Errorf("database error listing due charges: %w", err)
	}
	return scanCharges(rows)
}

func (r *PostgresChargeRepo) ListDueBetween(ctx context.Context, from, until time.Time, status types.ChargeStatus) ([]*types.PendingCharge, error) {
	rows, err := r.pgpool.Query(ctx, `
		SELECT `+chargeColumns+`
		FROM pending_charges
		WHERE due_date BETWEEN $1 AND $2 AND status = $3
		ORDER BY due_date ASC, id ASC`,
		from, until, string(status))
	if err != nil {
		return nil, fmt.Errorf("database error listing upcoming charges: %w", err)
	}
	return scanCharges(rows)
}

func (r *PostgresChargeRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE pending_charges
		SET status = 'PAID', updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'OVERDUE')`,
		id)
	if err != nil {
		return fmt.Errorf("database error marking charge paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// The row was locked and re-checked before this update, so zero rows
		// means the status moved underneath us: a retryable race.
		return db.MarkTransient(fmt.Errorf("charge %s is no longer payable: %w", id, types.ErrConflict))
	}
	return nil
}

func (r *PostgresChargeRepo) BulkMarkOverdue(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := tx.Exec(ctx, `
		UPDATE pending_charges
		SET status = 'OVERDUE', updated_at = now()
		WHERE id = ANY($1) AND status = 'PENDING'`,
		ids)
	if err != nil {
		return 0, fmt.Errorf("database error aging charges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresChargeRepo) CancelBySubscription(ctx context.Context, tx pgx.Tx, subscriptionID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE pending_charges
		SET status = 'CANCELED', updated_at = now()
		WHERE subscription_id = $1 AND status IN ('PENDING', 'OVERDUE')`,
		subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("database error canceling subscription charges: %w", err)
	}
	return tag.RowsAffected(), nil
}
