package jobs

import (
	"context"
	"log/slog"
)

// BlacklistPruner is the slice of the auth service the prune job needs.
type BlacklistPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// BlacklistPruneJob deletes blacklist rows whose token expiry has passed,
// keeping the table bounded.
type BlacklistPruneJob struct {
	blacklist BlacklistPruner
	logger    *slog.Logger
}

func NewBlacklistPruneJob(blacklist BlacklistPruner, logger *slog.Logger) *BlacklistPruneJob {
	return &BlacklistPruneJob{blacklist: blacklist, logger: logger}
}

func (j *BlacklistPruneJob) Name() string { return "token-blacklist-prune" }

func (j *BlacklistPruneJob) Run(ctx context.Context) error {
	pruned, err := j.blacklist.PruneExpired(ctx)
	if err != nil {
		return err
	}
	j.logger.InfoContext(ctx, "expired blacklist tokens pruned", slog.Int64("pruned", pruned))
	return nil
}
