package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/maintenance"
)

var maintenanceFlags struct {
	format string
}

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run or inspect maintenance jobs",
	Long: `Run or inspect the periodic maintenance jobs.

Jobs:
  reset_weekly       zero tier-3 weekly counters from an earlier ISO week
  reset_monthly      zero monthly spend from an earlier month
  recompute_streaks  zero streaks whose learner missed a full day

Every job is idempotent, so running one by hand next to the scheduler is safe.`,
}

var maintenanceRunCmd = &cobra.Command{
	Use:   "run [job...]",
	Short: "Run maintenance jobs now (all when none named)",
	Long: `Run maintenance jobs immediately with the configured retry policy.

Examples:
  # Run every job
  momentum maintenance run

  # Reset weekly limits only
  momentum maintenance run reset_weekly`,
	RunE: runMaintenance,
}

var maintenanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List maintenance jobs and their next run",
	RunE:  listMaintenance,
}

func init() {
	rootCmd.AddCommand(maintenanceCmd)
	maintenanceCmd.AddCommand(maintenanceRunCmd, maintenanceListCmd)

	maintenanceListCmd.Flags().StringVar(&maintenanceFlags.format, "format", "text", "output format: text, json, csv")
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		names := args
		if len(names) == 0 {
			names = []string{maintenance.JobResetWeekly, maintenance.JobResetMonthly, maintenance.JobRecomputeStreaks}
		}

		sched := a.scheduler()
		progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "jobs")
		progress.Start(int64(len(names)))

		results := make(jobResults, 0, len(names))
		var errs []error
		for _, name := range names {
			start := time.Now()
			n, err := sched.RunNow(ctx, name)
			progress.Step(name, err)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			results = append(results, jobResult{Job: name, Rows: n, Duration: time.Since(start)})
		}
		progress.Finish()

		formatter, err := cli.NewFormatter(cli.FormatText)
		if err != nil {
			return err
		}
		if err := formatter.FormatTo(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		return errors.Join(errs...)
	})
}

func listMaintenance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	formatter, err := cli.NewFormatter(cli.OutputFormat(maintenanceFlags.format))
	if err != nil {
		return err
	}
	schedules, err := jobSchedules(cfg.Maintenance, time.Now())
	if err != nil {
		return err
	}
	return formatter.FormatTo(cmd.OutOrStdout(), schedules)
}

type jobResult struct {
	Job      string        `json:"job"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

type jobResults []jobResult

func (r jobResults) Headers() []string { return []string{"JOB", "ROWS", "DURATION"} }

func (r jobResults) Rows() [][]string {
	rows := make([][]string, len(r))
	for i, res := range r {
		rows[i] = []string{res.Job, strconv.FormatInt(res.Rows, 10), res.Duration.Round(time.Millisecond).String()}
	}
	return rows
}

type jobSchedule struct {
	Job      string     `json:"job"`
	Schedule string     `json:"schedule"`
	Next     *time.Time `json:"next,omitempty"`
}

type jobScheduleList []jobSchedule

func (l jobScheduleList) Headers() []string { return []string{"JOB", "SCHEDULE", "NEXT (UTC)"} }

func (l jobScheduleList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, s := range l {
		next := "disabled"
		if s.Next != nil {
			next = s.Next.Format(time.RFC3339)
		}
		rows[i] = []string{s.Job, s.Schedule, next}
	}
	return rows
}

// jobSchedules computes each job's next UTC run after now.
func jobSchedules(cfg config.MaintenanceConfig, now time.Time) (jobScheduleList, error) {
	specs := []jobSchedule{
		{Job: maintenance.JobResetWeekly, Schedule: cfg.WeeklyResetSchedule},
		{Job: maintenance.JobResetMonthly, Schedule: cfg.MonthlyResetSchedule},
		{Job: maintenance.JobRecomputeStreaks, Schedule: cfg.StreakSchedule},
	}
	for i, s := range specs {
		if s.Schedule == "" {
			continue
		}
		sched, err := cron.ParseStandard(s.Schedule)
		if err != nil {
			return nil, fmt.Errorf("job %s: invalid cron schedule %q: %w", s.Job, s.Schedule, err)
		}
		next := sched.Next(now.UTC())
		specs[i].Next = &next
	}
	return specs, nil
}
