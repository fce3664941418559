package types

import (
	"time"

	"github.com/google/uuid"
)

// ChargeTotals is a count/sum pair over a charge status.
type ChargeTotals struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
}

// DashboardOverview is the cross-entity metric set served to the back
// office landing page.
type DashboardOverview struct {
	SubscriptionsByStatus map[SubscriptionStatus]int64 `json:"subscriptions_by_status"`
	CurrentMonthRevenue   float64                      `json:"current_month_revenue"`
	Pending               ChargeTotals                 `json:"pending"`
	Overdue               ChargeTotals                 `json:"overdue"`
	ByPeriodicity         map[Periodicity]int64        `json:"by_periodicity"`
	GeneratedAt           time.Time                    `json:"generated_at"`
}

// SubscriberBalance is one active subscription with its open balance
// (sum of PENDING/OVERDUE charges).
type SubscriberBalance struct {
	SubscriptionID uuid.UUID   `json:"subscription_id"`
	UserID         uuid.UUID   `json:"user_id"`
	UserName       string      `json:"user_name"`
	Periodicity    Periodicity `json:"periodicity"`
	Amount         float64     `json:"amount"`
	OpenBalance    float64     `json:"open_balance"`
	OpenCharges    int64       `json:"open_charges"`
}

// OutstandingCharge is one not-yet-settled charge as listed on the
// dashboard.
type OutstandingCharge struct {
	ChargeID    uuid.UUID    `json:"charge_id"`
	UserID      uuid.UUID    `json:"user_id"`
	UserName    string       `json:"user_name"`
	Amount      float64      `json:"amount"`
	DueDate     time.Time    `json:"due_date"`
	Status      ChargeStatus `json:"status"`
	Description string       `json:"description"`
}
