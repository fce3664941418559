package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

// maxFutureWindow rejects payment dates absurdly far ahead.
const maxFutureWindow = 10 * 365 * 24 * time.Hour

const maxNoteLength = 255

// UserChecker is the slice of the user store reconciliation needs.
type UserChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// SubscriptionTxStore is the slice of the subscription store used inside the
// reconciliation transaction.
type SubscriptionTxStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*types.Subscription, error)
	Activate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// CacheInvalidator drops cached dashboard aggregates after a commit.
type CacheInvalidator interface {
	InvalidateAll()
}

var _ ReconciliationService = (*ReconciliationServiceImpl)(nil)

// ReconciliationService atomically converts "a user paid X" into a
// consistent state: payment recorded, charge marked paid, subscription
// possibly activated, ledger entry appended.
type ReconciliationService interface {
	Reconcile(ctx context.Context, params types.ReconcileParams) (*types.ReconcileResult, error)
}

type ReconciliationServiceImpl struct {
	runner   *db.TxRunner
	users    UserChecker
	charges  ChargeRepository
	payments PaymentRepository
	ledger   LedgerRepository
	subs     SubscriptionTxStore
	cache    CacheInvalidator
	logger   *slog.Logger
}

func NewReconciliationService(
	runner *db.TxRunner,
	users UserChecker,
	charges ChargeRepository,
	payments PaymentRepository,
	ledger LedgerRepository,
	subs SubscriptionTxStore,
	cache CacheInvalidator,
	logger *slog.Logger,
) *ReconciliationServiceImpl {
	return &ReconciliationServiceImpl{
		runner:   runner,
		users:    users,
		charges:  charges,
		payments: payments,
		ledger:   ledger,
		subs:     subs,
		cache:    cache,
		logger:   logger,
	}
}

// Reconcile validates its input eagerly, then runs the transactional body
// under retry. A payment is never persisted without its ledger entry, and a
// charge is never marked paid outside the same transaction.
func (s *ReconciliationServiceImpl) Reconcile(ctx context.Context, params types.ReconcileParams) (*types.ReconcileResult, error) {
	ctx, span := otel.Tracer("ReconciliationService").Start(ctx, "Reconcile", trace.WithAttributes(
		attribute.String("user.id", params.UserID.String()),
		attribute.Float64("payment.amount", params.Amount),
		attribute.String("payment.method", string(params.Method)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Reconcile"), slog.String("userID", params.UserID.String()))

	if err := s.validate(ctx, params); err != nil {
		reconciliationsTotal.WithLabelValues(outcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	var result *types.ReconcileResult
	err := s.runner.RunWithRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		result = nil

		pay, err := s.payments.Create(ctx, tx, params.UserID, params.Amount, params.PaymentDate, params.Method, params.Note)
		if err != nil {
			return err
		}

		charge, err := s.resolveCharge(ctx, tx, params, l)
		if err != nil {
			return err
		}

		var activated *types.Subscription
		if charge != nil {
			if err := s.charges.MarkPaid(ctx, tx, charge.ID); err != nil {
				return err
			}
			charge.Status = types.ChargePaid

			if charge.SubscriptionID != nil {
				activated, err = s.maybeActivate(ctx, tx, *charge.SubscriptionID)
				if err != nil {
					return err
				}
			}
		}

		entry, err := s.ledger.Append(ctx, tx, types.CreateLedgerEntryParams{
			UserID:      params.UserID,
			Kind:        types.LedgerInflow,
			Amount:      params.Amount,
			Date:        params.PaymentDate,
			Description: ledgerDescription(params.Method, charge),
		})
		if err != nil {
			return err
		}

		result = &types.ReconcileResult{
			Payment:               pay,
			Charge:                charge,
			ActivatedSubscription: activated,
			LedgerEntry:           entry,
		}
		return nil
	}, db.DefaultMaxRetries)
	if err != nil {
		reconciliationsTotal.WithLabelValues(outcomeFailed).Inc()
		l.ErrorContext(ctx, "reconciliation failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation failed")
		return nil, err
	}

	switch {
	case result.ActivatedSubscription != nil:
		reconciliationsTotal.WithLabelValues(outcomeActivated).Inc()
	case result.Charge != nil:
		reconciliationsTotal.WithLabelValues(outcomeMatched).Inc()
	default:
		reconciliationsTotal.WithLabelValues(outcomeUnmatched).Inc()
	}

	if s.cache != nil {
		s.cache.InvalidateAll()
	}

	l.InfoContext(ctx, "payment reconciled",
		slog.String("paymentID", result.Payment.ID.String()),
		slog.Bool("chargeMatched", result.Charge != nil),
		slog.Bool("subscriptionActivated", result.ActivatedSubscription != nil))
	span.SetStatus(codes.Ok, "reconciled")
	return result, nil
}

// validate runs every precondition before any transaction is opened, so
// invalid input never touches storage.
func (s *ReconciliationServiceImpl) validate(ctx context.Context, params types.ReconcileParams) error {
	if params.UserID == uuid.Nil {
		return fmt.Errorf("user id is required: %w", types.ErrBadRequest)
	}
	if err := types.ValidateAmount(params.Amount); err != nil {
		return err
	}
	if params.PaymentDate.IsZero() {
		return fmt.Errorf("payment date is required: %w", types.ErrBadRequest)
	}
	if params.PaymentDate.After(time.Now().Add(maxFutureWindow)) {
		return fmt.Errorf("payment date too far in the future: %w", types.ErrBadRequest)
	}
	if !params.Method.Valid() {
		return fmt.Errorf("invalid payment method %q: %w", params.Method, types.ErrBadRequest)
	}
	if len(params.Note) > maxNoteLength {
		return fmt.Errorf("note exceeds %d characters: %w", maxNoteLength, types.ErrBadRequest)
	}
	if params.PendingChargeID != nil && *params.PendingChargeID == uuid.Nil {
		return fmt.Errorf("pending charge id is invalid: %w", types.ErrBadRequest)
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

// resolveCharge picks the pending charge the payment settles. With an
// explicit id the charge must belong to the user, be payable and match the
// amount exactly. Without one, the earliest-due exact-amount match wins; an
// unmatched payment is accepted and simply links nothing.
func (s *ReconciliationServiceImpl) resolveCharge(ctx context.Context, tx pgx.Tx, params types.ReconcileParams, l *slog.Logger) (*types.PendingCharge, error) {
	if params.PendingChargeID != nil {
		charge, err := s.charges.GetForUpdate(ctx, tx, *params.PendingChargeID)
		if err != nil {
			return nil, err
		}
		if charge.UserID != params.UserID {
			return nil, fmt.Errorf("pending charge belongs to another user: %w", types.ErrBadRequest)
		}
		switch charge.Status {
		case types.ChargePaid:
			return nil, fmt.Errorf("pending charge is already paid: %w", types.ErrConflict)
		case types.ChargeCanceled:
			return nil, fmt.Errorf("pending charge is canceled: %w", types.ErrConflict)
		}
		if charge.Amount != params.Amount {
			return nil, fmt.Errorf("payment amount %.2f does not match charge amount %.2f: %w",
				params.Amount, charge.Amount, types.ErrBadRequest)
		}
		return charge, nil
	}

	matches, err := s.charges.ListMatching(ctx, tx, params.UserID, params.Amount)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		l.WarnContext(ctx, "payment has no matching pending charge, recording unlinked",
			slog.Float64("amount", params.Amount))
		return nil, nil
	}
	if len(matches) > 1 {
		// Best-effort heuristic: earliest due date wins. The caller is never
		// asked to disambiguate.
		l.WarnContext(ctx, "ambiguous charge match, picking earliest due date",
			slog.Int("candidates", len(matches)),
			slog.String("chosenChargeID", matches[0].ID.String()))
	}

	// ListMatching does not lock; re-acquire the winner under lock and
	// re-check. A charge that changed in between is a retryable race.
	charge, err := s.charges.GetForUpdate(ctx, tx, matches[0].ID)
	if err != nil {
		return nil, err
	}
	if charge.Status.Terminal() || charge.Amount != params.Amount {
		return nil, db.MarkTransient(fmt.Errorf("charge %s changed during resolution: %w", charge.ID, types.ErrConflict))
	}
	return charge, nil
}

func (s *ReconciliationServiceImpl) maybeActivate(ctx context.Context, tx pgx.Tx, subID uuid.UUID) (*types.Subscription, error) {
	sub, err := s.subs.GetForUpdate(ctx, tx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status != types.SubscriptionPending {
		return nil, nil
	}
	if err := s.subs.Activate(ctx, tx, sub.ID); err != nil {
		return nil, err
	}
	sub.Status = types.SubscriptionActive
	return sub, nil
}

func ledgerDescription(method types.PaymentMethod, charge *types.PendingCharge) string {
	chargeDesc := "Pagamento avulso"
	if charge != nil && strings.TrimSpace(charge.Description) != "" {
		chargeDesc = charge.Description
	}
	return fmt.Sprintf("Pagamento via %s - %s", method.Label(), chargeDesc)
}
