package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

// ChargeStore is the slice of the pending-charge store provisioning needs.
type ChargeStore interface {
	Create(ctx context.Context, q db.Querier, params types.CreateChargeParams) (*types.PendingCharge, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*types.PendingCharge, error)
	CancelBySubscription(ctx context.Context, tx pgx.Tx, subscriptionID uuid.UUID) (int64, error)
}

// UserChecker verifies the subscriber exists before provisioning.
type UserChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CacheInvalidator drops cached dashboard aggregates after a commit.
type CacheInvalidator interface {
	InvalidateAll()
}

var _ ProvisioningService = (*ProvisioningServiceImpl)(nil)

// ProvisioningService creates subscriptions together with their full
// one-year schedule of pending charges, and cancels them with their
// outstanding charges.
type ProvisioningService interface {
	CreateWithSchedule(ctx context.Context, params types.CreateSubscriptionParams) (*types.SubscriptionWithCharges, error)
	Cancel(ctx context.Context, subscriptionID uuid.UUID) (*types.Subscription, error)
	GetWithCharges(ctx context.Context, subscriptionID uuid.UUID) (*types.SubscriptionWithCharges, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Subscription, error)
}

type ProvisioningServiceImpl struct {
	runner  *db.TxRunner
	subs    Repository
	charges ChargeStore
	users   UserChecker
	cache   CacheInvalidator
	logger  *slog.Logger
}

func NewProvisioningService(runner *db.TxRunner, subs Repository, charges ChargeStore, users UserChecker, cache CacheInvalidator, logger *slog.Logger) *ProvisioningServiceImpl {
	return &ProvisioningServiceImpl{
		runner:  runner,
		subs:    subs,
		charges: charges,
		users:   users,
		cache:   cache,
		logger:  logger,
	}
}

// CreateWithSchedule creates the subscription and all its installments in
// one transaction. The schedule covers exactly one year of billing
// regardless of cadence; there is no renewal beyond that.
func (s *ProvisioningServiceImpl) CreateWithSchedule(ctx context.Context, params types.CreateSubscriptionParams) (*types.SubscriptionWithCharges, error) {
	ctx, span := otel.Tracer("ProvisioningService").Start(ctx, "CreateWithSchedule", trace.WithAttributes(
		attribute.String("user.id", params.UserID.String()),
		attribute.String("subscription.periodicity", string(params.Periodicity)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "CreateWithSchedule"), slog.String("userID", params.UserID.String()))

	if params.DueDay == 0 {
		params.DueDay = DefaultDueDay
	}
	if err := s.validate(ctx, params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	schedule := BuildSchedule(params.Periodicity, params.StartDate, params.DueDay)

	result, err := db.RunInTx(ctx, s.runner, func(ctx context.Context, tx pgx.Tx) (*types.SubscriptionWithCharges, error) {
		sub, err := s.subs.Create(ctx, tx, params)
		if err != nil {
			return nil, err
		}

		charges := make([]*types.PendingCharge, 0, len(schedule))
		for _, item := range schedule {
			charge, err := s.charges.Create(ctx, tx, types.CreateChargeParams{
				UserID:         params.UserID,
				SubscriptionID: &sub.ID,
				Amount:         params.Amount,
				DueDate:        item.DueDate,
				Description:    item.Description,
			})
			if err != nil {
				return nil, err
			}
			charges = append(charges, charge)
		}
		return &types.SubscriptionWithCharges{Subscription: sub, Charges: charges}, nil
	})
	if err != nil {
		l.ErrorContext(ctx, "failed to provision subscription", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "provisioning failed")
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidateAll()
	}

	l.InfoContext(ctx, "subscription provisioned",
		slog.String("subscriptionID", result.Subscription.ID.String()),
		slog.Int("installments", len(result.Charges)))
	span.SetStatus(codes.Ok, "provisioned")
	return result, nil
}

func (s *ProvisioningServiceImpl) validate(ctx context.Context, params types.CreateSubscriptionParams) error {
	if params.UserID == uuid.Nil {
		return fmt.Errorf("user id is required: %w", types.ErrBadRequest)
	}
	if err := types.ValidateAmount(params.Amount); err != nil {
		return err
	}
	if !params.Periodicity.Valid() {
		return fmt.Errorf("invalid periodicity %q: %w", params.Periodicity, types.ErrBadRequest)
	}
	if params.StartDate.IsZero() {
		return fmt.Errorf("start date is required: %w", types.ErrBadRequest)
	}
	if params.DueDay < 1 || params.DueDay > MaxDueDay {
		return fmt.Errorf("due day must be between 1 and %d: %w", MaxDueDay, types.ErrBadRequest)
	}

	exists, err := s.users.Exists(ctx, params.UserID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user not found: %w", types.ErrNotFound)
	}
	return nil
}

// Cancel marks the subscription CANCELED and invalidates its outstanding
// PENDING/OVERDUE charges in the same transaction.
func (s *ProvisioningServiceImpl) Cancel(ctx context.Context, subscriptionID uuid.UUID) (*types.Subscription, error) {
	l := s.logger.With(slog.String("method", "Cancel"), slog.String("subscriptionID", subscriptionID.String()))

	sub, err := db.RunInTx(ctx, s.runner, func(ctx context.Context, tx pgx.Tx) (*types.Subscription, error) {
		sub, err := s.subs.GetForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return nil, err
		}
		if sub.Status == types.SubscriptionCanceled {
			return nil, fmt.Errorf("subscription is already canceled: %w", types.ErrConflict)
		}

		if err := s.subs.Cancel(ctx, tx, sub.ID); err != nil {
			return nil, err
		}
		canceled, err := s.charges.CancelBySubscription(ctx, tx, sub.ID)
		if err != nil {
			return nil, err
		}

		l.InfoContext(ctx, "outstanding charges canceled", slog.Int64("count", canceled))
		sub.Status = types.SubscriptionCanceled
		return sub, nil
	})
	if err != nil {
		l.ErrorContext(ctx, "failed to cancel subscription", slog.Any("error", err))
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidateAll()
	}
	return sub, nil
}

func (s *ProvisioningServiceImpl) GetWithCharges(ctx context.Context, subscriptionID uuid.UUID) (*types.SubscriptionWithCharges, error) {
	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	charges, err := s.charges.ListBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return &types.SubscriptionWithCharges{Subscription: sub, Charges: charges}, nil
}

func (s *ProvisioningServiceImpl) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Subscription, error) {
	return s.subs.ListByUser(ctx, userID)
}
