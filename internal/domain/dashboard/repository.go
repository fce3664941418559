package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mensalize/billing-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository computes the cross-entity aggregates. Everything here is
// read-only set-wide sums and counts over current data; nothing is
// incrementally maintained.
type Repository interface {
	GetOverview(ctx context.Context) (*types.DashboardOverview, error)
	ListActiveSubscriberBalances(ctx context.Context) ([]*types.SubscriberBalance, error)
	ListOutstandingCharges(ctx context.Context) ([]*types.OutstandingCharge, error)
}

type RepositoryImpl struct {
	pgpool *pgxpool.Pool
	logger *slog.Logger
}

func NewRepository(pgpool *pgxpool.Pool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{pgpool: pgpool, logger: logger}
}

func (r *RepositoryImpl) GetOverview(ctx context.Context) (*types.DashboardOverview, error) {
	overview := &types.DashboardOverview{
		SubscriptionsByStatus: make(map[types.SubscriptionStatus]int64),
		ByPeriodicity:         make(map[types.Periodicity]int64),
		GeneratedAt:           time.Now().UTC(),
	}

	rows, err := r.pgpool.Query(ctx, `SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("database error counting subscriptions: %w", err)
	}
	for rows.Next() {
		var status types.SubscriptionStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		overview.SubscriptionsByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.pgpool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE kind = 'INFLOW' AND entry_date >= date_trunc('month', now())`).
		Scan(&overview.CurrentMonthRevenue)
	if err != nil {
		return nil, fmt.Errorf("database error summing month revenue: %w", err)
	}

	rows, err = r.pgpool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM pending_charges
		WHERE status IN ('PENDING', 'OVERDUE')
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("database error totaling open charges: %w", err)
	}
	for rows.Next() {
		var status types.ChargeStatus
		var totals types.ChargeTotals
		if err := rows.Scan(&status, &totals.Count, &totals.Sum); err != nil {
			rows.Close()
			return nil, err
		}
		switch status {
		case types.ChargePending:
			overview.Pending = totals
		case types.ChargeOverdue:
			overview.Overdue = totals
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pgpool.Query(ctx, `
		SELECT periodicity, COUNT(*)
		FROM subscriptions
		WHERE status <> 'CANCELED'
		GROUP BY periodicity`)
	if err != nil {
		return nil, fmt.Errorf("database error grouping subscriptions by periodicity: %w", err)
	}
	for rows.Next() {
		var p types.Periodicity
		var n int64
		if err := rows.Scan(&p, &n); err != nil {
			rows.Close()
			return nil, err
		}
		overview.ByPeriodicity[p] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return overview, nil
}

func (r *RepositoryImpl) ListActiveSubscriberBalances(ctx context.Context) ([]*types.SubscriberBalance, error) {
	rows, err := r.pgpool.Query(ctx, `
		SELECT
			s.id, s.user_id, u.name, s.periodicity, s.amount,
			COALESCE(SUM(pc.amount) FILTER (WHERE pc.status IN ('PENDING', 'OVERDUE')), 0) AS open_balance,
			COUNT(pc.id) FILTER (WHERE pc.status IN ('PENDING', 'OVERDUE')) AS open_charges
		FROM subscriptions s
		JOIN users u ON u.id = s.user_id
		LEFT JOIN pending_charges pc ON pc.subscription_id = s.id
		WHERE s.status = 'ACTIVE'
		GROUP BY s.id, s.user_id, u.name, s.periodicity, s.amount
		ORDER BY open_balance DESC, s.id ASC`)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list subscriber balances", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing subscriber balances: %w", err)
	}
	defer rows.Close()

	var out []*types.SubscriberBalance
	for rows.Next() {
		var b types.SubscriberBalance
		if err := rows.Scan(&b.SubscriptionID, &b.UserID, &b.UserName, &b.Periodicity,
			&b.Amount, &b.OpenBalance, &b.OpenCharges); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (r *RepositoryImpl) ListOutstandingCharges(ctx context.Context) ([]*types.OutstandingCharge, error) {
	rows, err := r.pgpool.Query(ctx, `
		SELECT pc.id, pc.user_id, u.name, pc.amount, pc.due_date, pc.status, pc.description
		FROM pending_charges pc
		JOIN users u ON u.id = pc.user_id
		WHERE pc.status IN ('PENDING', 'OVERDUE')
		ORDER BY pc.due_date ASC, pc.id ASC`)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to list outstanding charges", slog.Any("error", err))
		return nil, fmt.Errorf("database error listing outstanding charges: %w", err)
	}
	defer rows.Close()

	var out []*types.OutstandingCharge
	for rows.Next() {
		var c types.OutstandingCharge
		if err := rows.Scan(&c.ChargeID, &c.UserID, &c.UserName, &c.Amount,
			&c.DueDate, &c.Status, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
