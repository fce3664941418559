package types

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the subscription lifecycle state. PENDING means the
// subscription is awaiting its first reconciled payment.
type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "PENDING"
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionPending, SubscriptionActive, SubscriptionCanceled:
		return true
	}
	return false
}

// CanTransitionTo encodes the lifecycle: PENDING→ACTIVE on first payment,
// PENDING|ACTIVE→CANCELED on explicit cancel. CANCELED is terminal.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	switch s {
	case SubscriptionPending:
		return next == SubscriptionActive || next == SubscriptionCanceled
	case SubscriptionActive:
		return next == SubscriptionCanceled
	case SubscriptionCanceled:
		return false
	}
	return false
}

type Subscription struct {
	ID          uuid.UUID          `json:"id"`
	UserID      uuid.UUID          `json:"user_id"`
	PlanID      *uuid.UUID         `json:"plan_id,omitempty"`
	Amount      float64            `json:"amount"`
	Periodicity Periodicity        `json:"periodicity"`
	StartDate   time.Time          `json:"start_date"`
	Status      SubscriptionStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type CreateSubscriptionParams struct {
	UserID      uuid.UUID   `json:"user_id" validate:"required"`
	PlanID      *uuid.UUID  `json:"plan_id"`
	Amount      float64     `json:"amount" validate:"required,gt=0"`
	Periodicity Periodicity `json:"periodicity" validate:"required,oneof=MONTHLY QUARTERLY SEMIANNUAL ANNUAL"`
	StartDate   time.Time   `json:"start_date" validate:"required"`
	DueDay      int         `json:"due_day" validate:"omitempty,min=1,max=28"`
}

// SubscriptionWithCharges is the provisioning result: the subscription plus
// its full generated schedule.
type SubscriptionWithCharges struct {
	Subscription *Subscription    `json:"subscription"`
	Charges      []*PendingCharge `json:"charges"`
}
