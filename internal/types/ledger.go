package types

import (
	"time"

	"github.com/google/uuid"
)

// LedgerKind is the direction of a ledger entry.
type LedgerKind string

const (
	LedgerInflow  LedgerKind = "INFLOW"
	LedgerOutflow LedgerKind = "OUTFLOW"
)

func (k LedgerKind) Valid() bool {
	return k == LedgerInflow || k == LedgerOutflow
}

// LedgerEntry is an append-only money movement record. Balances are always
// derived by summing entries, never stored.
type LedgerEntry struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Kind        LedgerKind `json:"kind"`
	Amount      float64    `json:"amount"`
	Date        time.Time  `json:"date"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}

type CreateLedgerEntryParams struct {
	UserID      uuid.UUID  `json:"user_id" validate:"required"`
	Kind        LedgerKind `json:"kind" validate:"required,oneof=INFLOW OUTFLOW"`
	Amount      float64    `json:"amount" validate:"required,gt=0"`
	Date        time.Time  `json:"date" validate:"required"`
	Description string     `json:"description" validate:"max=255"`
}

// LedgerBalance is the derived aggregate for one user.
type LedgerBalance struct {
	TotalInflow  float64 `json:"total_inflow"`
	TotalOutflow float64 `json:"total_outflow"`
	Balance      float64 `json:"balance"`
}
