package types

import (
	"time"

	"github.com/google/uuid"
)

// ChargeStatus is the pending-charge state machine:
//
//	PENDING  → OVERDUE   (aging job, due date passed)
//	PENDING  → PAID      (reconciled)
//	PENDING  → CANCELED  (subscription canceled)
//	OVERDUE  → PAID | CANCELED
//
// PAID and CANCELED are terminal.
type ChargeStatus string

const (
	ChargePending  ChargeStatus = "PENDING"
	ChargeOverdue  ChargeStatus = "OVERDUE"
	ChargePaid     ChargeStatus = "PAID"
	ChargeCanceled ChargeStatus = "CANCELED"
)

func (s ChargeStatus) Valid() bool {
	switch s {
	case ChargePending, ChargeOverdue, ChargePaid, ChargeCanceled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func (s ChargeStatus) Terminal() bool {
	return s == ChargePaid || s == ChargeCanceled
}

func (s ChargeStatus) CanTransitionTo(next ChargeStatus) bool {
	switch s {
	case ChargePending:
		return next == ChargeOverdue || next == ChargePaid || next == ChargeCanceled
	case ChargeOverdue:
		return next == ChargePaid || next == ChargeCanceled
	case ChargePaid, ChargeCanceled:
		return false
	}
	return false
}

type PendingCharge struct {
	ID             uuid.UUID    `json:"id"`
	UserID         uuid.UUID    `json:"user_id"`
	SubscriptionID *uuid.UUID   `json:"subscription_id,omitempty"`
	Amount         float64      `json:"amount"`
	DueDate        time.Time    `json:"due_date"`
	Description    string       `json:"description"`
	Status         ChargeStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type CreateChargeParams struct {
	UserID         uuid.UUID  `json:"user_id" validate:"required"`
	SubscriptionID *uuid.UUID `json:"subscription_id"`
	Amount         float64    `json:"amount" validate:"required,gt=0"`
	DueDate        time.Time  `json:"due_date" validate:"required"`
	Description    string     `json:"description" validate:"max=255"`
}

// ChargeFilter narrows charge listings. Zero values mean "no filter".
type ChargeFilter struct {
	Status   ChargeStatus
	DueFrom  time.Time
	DueUntil time.Time
}
