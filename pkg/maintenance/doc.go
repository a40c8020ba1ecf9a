// Package maintenance runs the periodic resets the ledger and streak store
// depend on.
//
// Jobs wraps the three resets as idempotent operations: weekly tier-3
// counters, monthly budgets, and streaks whose learner missed a day. The
// Scheduler runs each on its own cron schedule, evaluated in UTC, and retries
// a failing run with exponential backoff before giving up until the next tick.
//
//	jobs := maintenance.NewJobs(tracker, st)
//	sched := maintenance.NewScheduler(jobs.Definitions(cfg.Maintenance), cfg.Maintenance.MaxAttempts,
//	    maintenance.WithMetrics(collector))
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop()
//
// Every job is safe to run twice in a row; the second run changes nothing.
package maintenance
