package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mensalize/billing-api/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	Register(ctx context.Context, params types.CreateUserParams) (*types.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.User, error)
	List(ctx context.Context) ([]*types.User, error)
	Update(ctx context.Context, id uuid.UUID, params types.UpdateUserParams) (*types.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ServiceImpl struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{repo: repo, logger: logger}
}

func (s *ServiceImpl) Register(ctx context.Context, params types.CreateUserParams) (*types.User, error) {
	l := s.logger.With(slog.String("method", "Register"))

	if params.Role != "" && !params.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q: %w", params.Role, types.ErrBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		l.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := s.repo.Create(ctx, params, string(hash))
	if err != nil {
		return nil, err
	}

	l.InfoContext(ctx, "user registered", slog.String("userID", u.ID.String()))
	return u, nil
}

func (s *ServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ServiceImpl) List(ctx context.Context) ([]*types.User, error) {
	return s.repo.List(ctx)
}

func (s *ServiceImpl) Update(ctx context.Context, id uuid.UUID, params types.UpdateUserParams) (*types.User, error) {
	if params.Role != nil && !params.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q: %w", *params.Role, types.ErrBadRequest)
	}
	return s.repo.Update(ctx, id, params)
}

func (s *ServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
