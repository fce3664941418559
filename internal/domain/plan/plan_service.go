package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mensalize/billing-api/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	Create(ctx context.Context, params types.CreatePlanParams) (*types.SubscriptionPlan, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.SubscriptionPlan, error)
	List(ctx context.Context, activeOnly bool) ([]*types.SubscriptionPlan, error)
	Update(ctx context.Context, id uuid.UUID, params types.UpdatePlanParams) (*types.SubscriptionPlan, error)
	Retire(ctx context.Context, id uuid.UUID) error
}

type ServiceImpl struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{repo: repo, logger: logger}
}

func (s *ServiceImpl) Create(ctx context.Context, params types.CreatePlanParams) (*types.SubscriptionPlan, error) {
	if err := types.ValidateAmount(params.Price); err != nil {
		return nil, err
	}
	if !params.Periodicity.Valid() {
		return nil, fmt.Errorf("invalid periodicity %q: %w", params.Periodicity, types.ErrBadRequest)
	}
	p, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "plan created", slog.String("planID", p.ID.String()), slog.String("name", p.Name))
	return p, nil
}

func (s *ServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (*types.SubscriptionPlan, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ServiceImpl) List(ctx context.Context, activeOnly bool) ([]*types.SubscriptionPlan, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *ServiceImpl) Update(ctx context.Context, id uuid.UUID, params types.UpdatePlanParams) (*types.SubscriptionPlan, error) {
	if params.Price != nil {
		if err := types.ValidateAmount(*params.Price); err != nil {
			return nil, err
		}
	}
	return s.repo.Update(ctx, id, params)
}

func (s *ServiceImpl) Retire(ctx context.Context, id uuid.UUID) error {
	return s.repo.Retire(ctx, id)
}
