package types

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod enumerates how a payment was realized.
type PaymentMethod string

const (
	MethodPix  PaymentMethod = "PIX"
	MethodCard PaymentMethod = "CARD"
	MethodCash PaymentMethod = "CASH"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodPix, MethodCard, MethodCash:
		return true
	}
	return false
}

// Label is the human label used when composing ledger descriptions.
func (m PaymentMethod) Label() string {
	switch m {
	case MethodPix:
		return "PIX"
	case MethodCard:
		return "Cartão"
	case MethodCash:
		return "Dinheiro"
	}
	return string(m)
}

// Payment is a realized payment. Append-only except for administrative
// correction, which is out of the service's normal flow.
type Payment struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	Amount      float64       `json:"amount"`
	PaymentDate time.Time     `json:"payment_date"`
	Method      PaymentMethod `json:"method"`
	Note        string        `json:"note,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ReconcileParams is the input of the payment reconciliation workflow.
type ReconcileParams struct {
	UserID          uuid.UUID     `json:"user_id" validate:"required"`
	Amount          float64       `json:"amount" validate:"required,gt=0"`
	PaymentDate     time.Time     `json:"payment_date" validate:"required"`
	Method          PaymentMethod `json:"method" validate:"required,oneof=PIX CARD CASH"`
	Note            string        `json:"note" validate:"max=255"`
	PendingChargeID *uuid.UUID    `json:"pending_charge_id"`
}

// ReconcileResult reports what a reconciliation actually did. Charge and
// ActivatedSubscription are nil when no pending charge matched.
type ReconcileResult struct {
	Payment               *Payment       `json:"payment"`
	Charge                *PendingCharge `json:"charge,omitempty"`
	ActivatedSubscription *Subscription  `json:"activated_subscription,omitempty"`
	LedgerEntry           *LedgerEntry   `json:"ledger_entry"`
}
