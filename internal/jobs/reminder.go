package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/mensalize/billing-api/internal/types"
)

// reminderWindowDays is how far ahead the reminder job looks.
const reminderWindowDays = 3

// ChargeLister is the slice of the pending-charge store the reminder needs.
type ChargeLister interface {
	ListDueBetween(ctx context.Context, from, until time.Time, status types.ChargeStatus) ([]*types.PendingCharge, error)
}

// ReminderJob surfaces charges due within the next three days as
// operational notices. Read-only; it mutates nothing.
type ReminderJob struct {
	charges ChargeLister
	logger  *slog.Logger
}

func NewReminderJob(charges ChargeLister, logger *slog.Logger) *ReminderJob {
	return &ReminderJob{charges: charges, logger: logger}
}

func (j *ReminderJob) Name() string { return "due-charge-reminder" }

func (j *ReminderJob) Run(ctx context.Context) error {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	until := from.AddDate(0, 0, reminderWindowDays+1).Add(-time.Millisecond)

	upcoming, err := j.charges.ListDueBetween(ctx, from, until, types.ChargePending)
	if err != nil {
		return err
	}

	for _, c := range upcoming {
		j.logger.InfoContext(ctx, "charge due soon",
			slog.String("chargeID", c.ID.String()),
			slog.String("description", c.Description),
			slog.Float64("amount", c.Amount),
			slog.Time("dueDate", c.DueDate))
	}

	j.logger.InfoContext(ctx, "reminder sweep completed", slog.Int("upcoming", len(upcoming)))
	return nil
}
