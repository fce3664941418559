package user

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

var _ Repository = (*PostgresUserRepo)(nil)

type Repository interface {
	Create(ctx context.Context, params types.CreateUserParams, passwordHash string) (*types.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context) ([]*types.User, error)
	Update(ctx context.Context, id uuid.UUID, params types.UpdateUserParams) (*types.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type PostgresUserRepo struct {
	pgpool *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresUserRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{pgpool: pgpool, logger: logger}
}

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, params types.CreateUserParams, passwordHash string) (*types.User, error) {
	role := params.Role
	if role == "" {
		role = types.RoleSubscriber
	}
	row := r.pgpool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		params.Name, params.Email, passwordHash, string(role))

	u, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("email already registered: %w", types.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		return nil, fmt.Errorf("database error creating user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	u, err := scanUser(r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	u, err := scanUser(r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", types.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pgpool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to check user existence", slog.Any("error", err))
		return false, fmt.Errorf("database error checking user existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresUserRepo) List(ctx context.Context) ([]*types.User, error) {
	rows, err := r.pgpool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("database error listing users: %w", err)
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresUserRepo) Update(ctx context.Context, id uuid.UUID, params types.UpdateUserParams) (*types.User, error) {
	builder := squirrel.Update("users").
		PlaceholderFormat(squirrel.Dollar).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + userColumns)

	if params.Name != nil {
		builder = builder.Set("name", *params.Name)
	}
	if params.Email != nil {
		builder = builder.Set("email", *params.Email)
	}
	if params.Role != nil {
		builder = builder.Set("role", string(*params.Role))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user update query: %w", err)
	}

	u, err := scanUser(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", types.ErrNotFound)
		}
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("email already registered: %w", types.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "failed to update user", slog.Any("error", err))
		return nil, fmt.Errorf("database error updating user: %w", err)
	}
	return u, nil
}

// Delete removes the user; owned subscriptions, charges, payments and
// ledger entries cascade at the schema level.
func (r *PostgresUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to delete user", slog.Any("error", err))
		return fmt.Errorf("database error deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", types.ErrNotFound)
	}
	return nil
}
