package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mensalize/billing-api/internal/types"
	"github.com/mensalize/billing-api/pkg/db"
)

// ChargeAger is the slice of the pending-charge store the aging job needs.
type ChargeAger interface {
	ListDueBefore(ctx context.Context, cutoff time.Time, statuses ...types.ChargeStatus) ([]*types.PendingCharge, error)
	BulkMarkOverdue(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error)
}

// AgingJob promotes past-due PENDING charges to OVERDUE once a day. PAID
// and CANCELED charges are never touched; a charge due in the future is
// never touched.
type AgingJob struct {
	runner  *db.TxRunner
	charges ChargeAger
	logger  *slog.Logger
}

func NewAgingJob(runner *db.TxRunner, charges ChargeAger, logger *slog.Logger) *AgingJob {
	return &AgingJob{runner: runner, charges: charges, logger: logger}
}

func (j *AgingJob) Name() string { return "charge-aging" }

func (j *AgingJob) Run(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := j.charges.ListDueBefore(ctx, now, types.ChargePending, types.ChargeOverdue)
	if err != nil {
		return err
	}

	var ids []uuid.UUID
	for _, c := range due {
		if c.Status == types.ChargePending {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		j.logger.DebugContext(ctx, "no charges to age")
		return nil
	}

	var aged int64
	err = j.runner.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		aged, err = j.charges.BulkMarkOverdue(ctx, tx, ids)
		return err
	})
	if err != nil {
		return err
	}

	j.logger.InfoContext(ctx, "charges aged to overdue",
		slog.Int("candidates", len(ids)),
		slog.Int64("aged", aged))
	return nil
}
