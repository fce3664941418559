package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scheduled_job_runs_total",
		Help: "Scheduled job executions by job name and status.",
	},
	[]string{"job", "status"},
)

// Job is one recurring unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	hourUTC int
}

// Scheduler triggers each registered job once a day at a fixed UTC hour.
// A failing (or panicking) run is logged and never prevents the next one.
type Scheduler struct {
	entries []entry
	logger  *slog.Logger
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// AddDaily registers job to run every day at hourUTC.
func (s *Scheduler) AddDaily(job Job, hourUTC int) {
	s.entries = append(s.entries, entry{job: job, hourUTC: hourUTC})
}

// Start launches one goroutine per job and returns immediately. The
// goroutines stop when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		go s.loop(ctx, e)
	}
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	for {
		next := nextRunAt(time.Now().UTC(), e.hourUTC)
		s.logger.Info("job scheduled",
			slog.String("job", e.job.Name()),
			slog.Time("nextRun", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.runOnce(ctx, e.job)
	}
}

// runOnce isolates a single execution: errors and panics are logged and
// counted, never propagated to the host process.
func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			jobRunsTotal.WithLabelValues(job.Name(), "panic").Inc()
			s.logger.Error("job panicked",
				slog.String("job", job.Name()),
				slog.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		jobRunsTotal.WithLabelValues(job.Name(), "error").Inc()
		s.logger.Error("job failed",
			slog.String("job", job.Name()),
			slog.Any("error", err))
		return
	}
	jobRunsTotal.WithLabelValues(job.Name(), "ok").Inc()
	s.logger.Info("job completed",
		slog.String("job", job.Name()),
		slog.Duration("elapsed", time.Since(start)))
}

func nextRunAt(now time.Time, hourUTC int) time.Time {
	if hourUTC < 0 || hourUTC > 23 {
		hourUTC = 0
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunNow executes a job immediately with the scheduler's error isolation,
// used at startup for jobs that must not wait for their first slot.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	s.runOnce(ctx, job)
}
