package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mensalize/billing-api/internal/types"
)

// fallbackTTL bounds blacklist rows for tokens whose expiry cannot be read.
const fallbackTTL = 24 * time.Hour

var _ BlacklistService = (*BlacklistServiceImpl)(nil)

// BlacklistService rejects logged-out JWTs. A blacklisted token is refused
// by its raw value regardless of cryptographic validity.
type BlacklistService interface {
	Blacklist(ctx context.Context, token string) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	PruneExpired(ctx context.Context) (int64, error)
}

type BlacklistServiceImpl struct {
	repo   TokenRepository
	logger *slog.Logger
}

func NewBlacklistService(repo TokenRepository, logger *slog.Logger) *BlacklistServiceImpl {
	return &BlacklistServiceImpl{repo: repo, logger: logger}
}

// Blacklist stores the token until its own expiry, read from the unverified
// claims: the row only needs to outlive the token, so signature validity is
// irrelevant here. Re-blacklisting the same token is not an error.
func (s *BlacklistServiceImpl) Blacklist(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token is required: %w", types.ErrBadRequest)
	}

	expiresAt := time.Now().Add(fallbackTTL)
	if exp, ok := tokenExpiry(token); ok {
		expiresAt = exp
	}

	_, err := s.repo.Add(ctx, token, expiresAt)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			return nil
		}
		return err
	}

	s.logger.InfoContext(ctx, "token blacklisted", slog.Time("expiresAt", expiresAt))
	return nil
}

func (s *BlacklistServiceImpl) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return s.repo.IsBlacklisted(ctx, token)
}

func (s *BlacklistServiceImpl) PruneExpired(ctx context.Context) (int64, error) {
	return s.repo.PruneExpired(ctx, time.Now().UTC())
}

func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
