package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRunAt(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		hourUTC int
		want    time.Time
	}{
		{
			name:    "later today",
			now:     time.Date(2026, time.March, 5, 6, 30, 0, 0, time.UTC),
			hourUTC: 8,
			want:    time.Date(2026, time.March, 5, 8, 0, 0, 0, time.UTC),
		},
		{
			name:    "already passed rolls to tomorrow",
			now:     time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC),
			hourUTC: 8,
			want:    time.Date(2026, time.March, 6, 8, 0, 0, 0, time.UTC),
		},
		{
			name:    "exactly on the hour rolls forward",
			now:     time.Date(2026, time.March, 5, 8, 0, 0, 0, time.UTC),
			hourUTC: 8,
			want:    time.Date(2026, time.March, 6, 8, 0, 0, 0, time.UTC),
		},
		{
			name:    "month boundary",
			now:     time.Date(2026, time.January, 31, 23, 59, 0, 0, time.UTC),
			hourUTC: 0,
			want:    time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "out of range hour clamps to midnight",
			now:     time.Date(2026, time.March, 5, 6, 0, 0, 0, time.UTC),
			hourUTC: 99,
			want:    time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextRunAt(tt.now, tt.hourUTC))
		})
	}
}

type stubJob struct {
	name string
	runs int
	err  error
	do   func()
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	if j.do != nil {
		j.do()
	}
	return j.err
}

func TestRunNowExecutesJob(t *testing.T) {
	s := NewScheduler(slog.Default())
	job := &stubJob{name: "stub"}

	s.RunNow(context.Background(), job)
	assert.Equal(t, 1, job.runs)
}

func TestRunNowSwallowsErrors(t *testing.T) {
	s := NewScheduler(slog.Default())
	job := &stubJob{name: "failing", err: errors.New("boom")}

	assert.NotPanics(t, func() { s.RunNow(context.Background(), job) })
	assert.Equal(t, 1, job.runs)
}

func TestRunNowRecoversFromPanic(t *testing.T) {
	s := NewScheduler(slog.Default())
	job := &stubJob{name: "panicking", do: func() { panic("unexpected") }}

	assert.NotPanics(t, func() { s.RunNow(context.Background(), job) })
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s := NewScheduler(slog.Default())
	s.AddDaily(&stubJob{name: "never-fires"}, 23)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	// Nothing to assert beyond "does not hang"; the loop goroutines exit
	// on the canceled context.
	time.Sleep(10 * time.Millisecond)
}
