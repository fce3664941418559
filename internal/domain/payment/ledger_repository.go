package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

var _ LedgerRepository = (*PostgresLedgerRepo)(nil)

// LedgerRepository is append-only: entries are never updated or deleted,
// and balances are derived by summing, never stored.
type LedgerRepository interface {
	Append(ctx context.Context, q db.Querier, params types.CreateLedgerEntryParams) (*types.LedgerEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.LedgerEntry, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*types.LedgerBalance, error)
}

type PostgresLedgerRepo struct {
	pgpool *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresLedgerRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{pgpool: pgpool, logger: logger}
}

const ledgerColumns = `id, user_id, kind, amount, entry_date, description, created_at`

func scanLedgerEntry(row pgx.Row) (*types.LedgerEntry, error) {
	var e types.LedgerEntry
	err := row.Scan(&e.ID, &e.UserID, &e.Kind, &e.Amount, &e.Date, &e.Description, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresLedgerRepo) Append(ctx context.Context, q db.Querier, params types.CreateLedgerEntryParams) (*types.LedgerEntry, error) {
	if q == nil {
		q = r.pgpool
	}
	row := q.QueryRow(ctx, `
		INSERT INTO ledger_entries (user_id, kind, amount, entry_date, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+ledgerColumns,
		params.UserID, string(params.Kind), params.Amount, params.Date, params.Description)

	entry, err := scanLedgerEntry(row)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to append ledger entry", slog.Any("error", err))
		return nil, fmt.Errorf("database error appending ledger entry: %w", err)
	}
	return entry, nil
}

func (r *PostgresLedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.LedgerEntry, error) {
	rows, err := r.pgpool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE user_id = $1 ORDER BY entry_date DESC, id ASC`, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list ledger entries", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*types.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresLedgerRepo) GetBalance(ctx context.Context, userID uuid.UUID) (*types.LedgerBalance, error) {
	var b types.LedgerBalance
	err := r.pgpool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind = 'INFLOW'), 0)  AS total_inflow,
			COALESCE(SUM(amount) FILTER (WHERE kind = 'OUTFLOW'), 0) AS total_outflow
		FROM ledger_entries
		WHERE user_id = $1`,
		userID).Scan(&b.TotalInflow, &b.TotalOutflow)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to compute ledger balance", slog.Any("error", err))
		return nil, fmt.Errorf("database error computing balance: %w", err)
	}
	b.Balance = b.TotalInflow - b.TotalOutflow
	return &b, nil
}
