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

var _ PaymentRepository = (*PostgresPaymentRepo)(nil)

// PaymentRepository persists realized payments. Payments are append-only in
// the normal flow; there is no update or delete here.
type PaymentRepository interface {
	Create(ctx context.Context, q db.Querier, userID uuid.UUID, amount float64, paymentDate time.Time, method types.PaymentMethod, note string) (*types.Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Payment, error)
	// ListByDateRange narrows a user's payments to [from, until]; a zero
	// bound is ignored.
	ListByDateRange(ctx context.Context, userID uuid.UUID, from, until time.Time) ([]*types.Payment, error)
}

type PostgresPaymentRepo struct {
	pgpool *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresPaymentRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{pgpool: pgpool, logger: logger}
}

const paymentColumns = `id, user_id, amount, payment_date, method, note, created_at`

func scanPayment(row pgx.Row) (*types.Payment, error) {
	var p types.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.PaymentDate, &p.Method, &p.Note, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPaymentRepo) Create(ctx context.Context, q db.Querier, userID uuid.UUID, amount float64, paymentDate time.Time, method types.PaymentMethod, note string) (*types.Payment, error) {
	if q == nil {
		q = r.pgpool
	}
	row := q.QueryRow(ctx, `
		INSERT INTO payments (user_id, amount, payment_date, method, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+paymentColumns,
		userID, amount, paymentDate, string(method), note)

	p, err := scanPayment(row)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to create payment", slog.Any("error", err))
		return nil, fmt.Errorf("database error creating payment: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.Payment, error) {
	p, err := scanPayment(r.pgpool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching payment: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Payment, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY payment_date DESC, id ASC`, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list payments", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing payments: %w", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (r *PostgresPaymentRepo) ListByDateRange(ctx context.Context, userID uuid.UUID, from, until time.Time) ([]*types.Payment, error) {
	builder := squirrel.Select(paymentColumns).
		From("payments").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("payment_date DESC", "id ASC").
		PlaceholderFormat(squirrel.Dollar)
	if !from.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{"payment_date": from})
	}
	if !until.IsZero() {
		builder = builder.Where(squirrel.LtOrEq{"payment_date": until})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build payment query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list payments by date range", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing payments: %w", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]*types.Payment, error) {
	var out []*types.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
