package types

import (
	"time"

	"github.com/google/uuid"
)

// Periodicity is the billing cadence of a plan or subscription.
type Periodicity string

const (
	PeriodicityMonthly    Periodicity = "MONTHLY"
	PeriodicityQuarterly  Periodicity = "QUARTERLY"
	PeriodicitySemiannual Periodicity = "SEMIANNUAL"
	PeriodicityAnnual     Periodicity = "ANNUAL"
)

func (p Periodicity) Valid() bool {
	switch p {
	case PeriodicityMonthly, PeriodicityQuarterly, PeriodicitySemiannual, PeriodicityAnnual:
		return true
	}
	return false
}

// Installments returns how many charges one year of billing produces and the
// month stride between consecutive due dates.
func (p Periodicity) Installments() (count, strideMonths int) {
	switch p {
	case PeriodicityMonthly:
		return 12, 1
	case PeriodicityQuarterly:
		return 4, 3
	case PeriodicitySemiannual:
		return 2, 6
	case PeriodicityAnnual:
		return 1, 12
	}
	return 0, 0
}

// Label is the human label used in generated charge descriptions.
func (p Periodicity) Label() string {
	switch p {
	case PeriodicityMonthly:
		return "Mensal"
	case PeriodicityQuarterly:
		return "Trimestral"
	case PeriodicitySemiannual:
		return "Semestral"
	case PeriodicityAnnual:
		return "Anual"
	}
	return string(p)
}

type SubscriptionPlan struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       float64     `json:"price"`
	Periodicity Periodicity `json:"periodicity"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type CreatePlanParams struct {
	Name        string      `json:"name" validate:"required,min=2,max=100"`
	Description string      `json:"description" validate:"max=255"`
	Price       float64     `json:"price" validate:"required,gt=0"`
	Periodicity Periodicity `json:"periodicity" validate:"required,oneof=MONTHLY QUARTERLY SEMIANNUAL ANNUAL"`
}

type UpdatePlanParams struct {
	Name        *string  `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=255"`
	Price       *float64 `json:"price" validate:"omitempty,gt=0"`
}
