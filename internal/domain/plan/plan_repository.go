package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

var _ Repository = (*PostgresPlanRepo)(nil)

type Repository interface {
	Create(ctx context.Context, params types.CreatePlanParams) (*types.SubscriptionPlan, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.SubscriptionPlan, error)
	List(ctx context.Context, activeOnly bool) ([]*types.SubscriptionPlan, error)
	Update(ctx context.Context, id uuid.UUID, params types.UpdatePlanParams) (*types.SubscriptionPlan, error)
	// Retire soft-deletes the plan: it stays queryable but inactive.
	Retire(ctx context.Context, id uuid.UUID) error
}

type PostgresPlanRepo struct {
	pgpool *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresPlanRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresPlanRepo {
	return &PostgresPlanRepo{pgpool: pgpool, logger: logger}
}

const planColumns = `id, name, description, price, periodicity, active, created_at, updated_at`

func scanPlan(row pgx.Row) (*types.SubscriptionPlan, error) {
	var p types.SubscriptionPlan
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Periodicity,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPlanRepo) Create(ctx context.Context, params types.CreatePlanParams) (*types.SubscriptionPlan, error) {
	row := r.pgpool.QueryRow(ctx, `
		INSERT INTO subscription_plans (name, description, price, periodicity)
		VALUES ($1, $2, $3, $4)
		RETURNING `+planColumns,
		params.Name, params.Description, params.Price, string(params.Periodicity))

	p, err := scanPlan(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("plan name already exists: %w", types.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "failed to create plan", slog.Any("error", err))
		return nil, fmt.Errorf("database error creating plan: %w", err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.SubscriptionPlan, error) {
	p, err := scanPlan(r.pgpool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("plan not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching plan: %w", err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) List(ctx context.Context, activeOnly bool) ([]*types.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pgpool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("database error listing plans: %w", err)
	}
	defer rows.Close()

	var out []*types.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresPlanRepo) Update(ctx context.Context, id uuid.UUID, params types.UpdatePlanParams) (*types.SubscriptionPlan, error) {
	builder := squirrel.Update("subscription_plans").
		PlaceholderFormat(squirrel.Dollar).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + planColumns)

	if params.Name != nil {
		builder = builder.Set("name", *params.Name)
	}
	if params.Description != nil {
		builder = builder.Set("description", *params.Description)
	}
	if params.Price != nil {
		builder = builder.Set("price", *params.Price)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build plan update query: %w", err)
	}

	p, err := scanPlan(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("plan not found: %w", types.ErrNotFound)
		}
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("plan name already exists: %w", types.ErrConflict)
		}
		return nil, fmt.Errorf("database error updating plan: %w", err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) Retire(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE subscription_plans SET active = FALSE, updated_at = now() WHERE id = $1 AND active = TRUE`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to retire plan", slog.Any("error", err))
		return fmt.Errorf("database error retiring plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either absent or already retired; distinguish for the caller.
		var exists bool
		if err := r.pgpool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM subscription_plans WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("database error checking plan existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("plan not found: %w", types.ErrNotFound)
		}
	}
	return nil
}
