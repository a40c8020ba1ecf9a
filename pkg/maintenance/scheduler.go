package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"

	"momentum-hq/engine/pkg/telemetry/logging"
	"momentum-hq/engine/pkg/telemetry/metrics"
)

// ErrUnknownJob is returned by RunNow for a name with no definition.
var ErrUnknownJob = errors.New("unknown maintenance job")

// Scheduler runs maintenance jobs on cron schedules in UTC.
type Scheduler struct {
	jobs        []Job
	maxAttempts int
	interval    time.Duration

	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	running bool

	metrics *metrics.Collector
	logger  *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics records every run on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Scheduler) {
		s.metrics = collector
	}
}

// WithRetryInterval sets the initial backoff between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// NewScheduler creates a scheduler for jobs. Each run is attempted at most
// maxAttempts times; values below 1 mean a single attempt.
func NewScheduler(jobs []Job, maxAttempts int, opts ...Option) *Scheduler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s := &Scheduler{
		jobs:        jobs,
		maxAttempts: maxAttempts,
		interval:    time.Second,
		cron:        cron.New(cron.WithLocation(time.UTC)),
		entries:     make(map[string]cron.EntryID),
		logger:      slog.Default().With("component", "maintenance.scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates every schedule, registers the jobs and starts the cron
// loop. Jobs with an empty schedule are skipped. The scheduler stops when ctx
// is cancelled.
//
// Common cron expressions:
//   - "0 0 * * 1"  - Mondays at midnight
//   - "0 0 1 * *"  - first of the month
//   - "5 0 * * *"  - daily at 00:05
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	var errs []error
	for _, job := range s.jobs {
		if job.Schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(job.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("job %s: invalid cron schedule %q: %w", job.Name, job.Schedule, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, job := range s.jobs {
		if job.Schedule == "" {
			s.logger.Info("schedule not configured, skipping job", "job", job.Name)
			continue
		}
		id, err := s.cron.AddFunc(job.Schedule, func() {
			_, _ = s.run(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
		s.entries[job.Name] = id
	}

	if len(s.entries) == 0 {
		s.logger.Info("no maintenance jobs scheduled")
		return nil
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("maintenance scheduler started",
		"jobs", len(s.entries),
		"max_attempts", s.maxAttempts,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("maintenance scheduler stopped")
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled time of the named job, or nil when the
// job is not scheduled.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return nil
	}
	next := entry.Next
	return &next
}

// RunNow runs the named job immediately with the same retry policy as a
// scheduled run.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int64, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.run(ctx, job)
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) run(ctx context.Context, job Job) (int64, error) {
	ctx = logging.WithJob(ctx, job.Name)
	logger := logging.FromContext(ctx, s.logger)
	start := time.Now()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.interval

	n, err := backoff.Retry(ctx, func() (int64, error) {
		n, err := job.Run(ctx)
		if err != nil && ctx.Err() != nil {
			return 0, backoff.Permanent(err)
		}
		return n, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("maintenance job failed, retrying", "error", err, "retry_in", wait)
		}),
	)

	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordMaintenanceRun(job.Name, "failure", duration, 0)
		logger.Error("maintenance job failed", "error", err, "duration", duration)
		return 0, err
	}

	s.metrics.RecordMaintenanceRun(job.Name, "success", duration, n)
	logger.Debug("maintenance job completed", "rows", n, "duration", duration)
	return n, nil
}
