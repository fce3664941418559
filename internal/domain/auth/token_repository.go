package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

var _ TokenRepository = (*PostgresTokenRepo)(nil)

// TokenRepository persists blacklisted (logged-out) tokens. Expired rows are
// garbage: PruneExpired removes them on a schedule.
type TokenRepository interface {
	Add(ctx context.Context, token string, expiresAt time.Time) (*types.BlacklistedToken, error)
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

type PostgresTokenRepo struct {
	pgpool *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresTokenRepo(pgpool *pgxpool.Pool, logger *slog.Logger) *PostgresTokenRepo {
	return &PostgresTokenRepo{pgpool: pgpool, logger: logger}
}

func (r *PostgresTokenRepo) Add(ctx context.Context, token string, expiresAt time.Time) (*types.BlacklistedToken, error) {
	var t types.BlacklistedToken
	err := r.pgpool.QueryRow(ctx, `
		INSERT INTO token_blacklist (token, expires_at)
		VALUES ($1, $2)
		RETURNING id, token, expires_at, created_at`,
		token, expiresAt).Scan(&t.ID, &t.Token, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			// Logging out twice with the same token is harmless.
			return nil, fmt.Errorf("token already blacklisted: %w", types.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "failed to blacklist token", slog.Any("error", err))
		return nil, fmt.Errorf("database error blacklisting token: %w", err)
	}
	return &t, nil
}

func (r *PostgresTokenRepo) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.pgpool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token = $1)`, token).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("database error checking token blacklist: %w", err)
	}
	return exists, nil
}

func (r *PostgresTokenRepo) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM token_blacklist WHERE expires_at < $1`, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to prune token blacklist", slog.Any("error", err))
		return 0, fmt.Errorf("database error pruning token blacklist: %w", err)
	}
	return tag.RowsAffected(), nil
}
