package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/telemetry/logging"
)

// Job names, used as metric labels and log fields.
const (
	JobResetWeekly      = "reset_weekly"
	JobResetMonthly     = "reset_monthly"
	JobRecomputeStreaks = "recompute_streaks"
)

// LedgerResetter rolls ledger rows into the current period.
type LedgerResetter interface {
	ResetWeekly(ctx context.Context) (int64, error)
	ResetMonthly(ctx context.Context) (int64, error)
}

// StreakResetter zeroes streaks last active before a cutoff day.
type StreakResetter interface {
	ResetBrokenStreaks(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job is one schedulable unit of work. Run returns the number of rows it
// changed.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (int64, error)
}

// Jobs holds the maintenance operations.
type Jobs struct {
	ledger  LedgerResetter
	streaks StreakResetter
	now     func() time.Time
	logger  *slog.Logger
}

// JobsOption configures Jobs.
type JobsOption func(*Jobs)

// WithJobsClock sets the clock used to compute the streak cutoff.
func WithJobsClock(now func() time.Time) JobsOption {
	return func(j *Jobs) {
		j.now = now
	}
}

// NewJobs creates the maintenance operations over a ledger and a streak store.
func NewJobs(ledger LedgerResetter, streaks StreakResetter, opts ...JobsOption) *Jobs {
	j := &Jobs{
		ledger:  ledger,
		streaks: streaks,
		now:     time.Now,
		logger:  slog.Default().With("component", "maintenance"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ResetWeeklyLimits zeroes tier-3 weekly counters left over from an earlier
// ISO week.
func (j *Jobs) ResetWeeklyLimits(ctx context.Context) (int64, error) {
	n, err := j.ledger.ResetWeekly(ctx)
	if err != nil {
		return 0, err
	}
	j.log(ctx, JobResetWeekly).Info("weekly limits reset", "rows", n)
	return n, nil
}

// ResetMonthlyBudgets zeroes spend and tier-3 month counters left over from
// an earlier month. Lifetime spend is kept.
func (j *Jobs) ResetMonthlyBudgets(ctx context.Context) (int64, error) {
	n, err := j.ledger.ResetMonthly(ctx)
	if err != nil {
		return 0, err
	}
	j.log(ctx, JobResetMonthly).Info("monthly budgets reset", "rows", n)
	return n, nil
}

// RecomputeBrokenStreaks zeroes the current streak of every learner whose
// last activity is before yesterday. A learner active yesterday still has
// today to keep the streak.
func (j *Jobs) RecomputeBrokenStreaks(ctx context.Context) (int64, error) {
	cutoff := rules.Day(j.now()).AddDate(0, 0, -1)
	n, err := j.streaks.ResetBrokenStreaks(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recompute broken streaks: %w", err)
	}
	j.log(ctx, JobRecomputeStreaks).Info("broken streaks reset",
		"rows", n,
		"cutoff", cutoff.Format(time.DateOnly),
	)
	return n, nil
}

// Definitions pairs each operation with its configured schedule.
func (j *Jobs) Definitions(cfg config.MaintenanceConfig) []Job {
	return []Job{
		{Name: JobResetWeekly, Schedule: cfg.WeeklyResetSchedule, Run: j.ResetWeeklyLimits},
		{Name: JobResetMonthly, Schedule: cfg.MonthlyResetSchedule, Run: j.ResetMonthlyBudgets},
		{Name: JobRecomputeStreaks, Schedule: cfg.StreakSchedule, Run: j.RecomputeBrokenStreaks},
	}
}

func (j *Jobs) log(ctx context.Context, job string) *slog.Logger {
	return logging.FromContext(logging.WithJob(ctx, job), j.logger)
}
