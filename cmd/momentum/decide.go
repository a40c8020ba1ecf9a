package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/engine"
)

var selectFlags struct {
	accuracy   float64
	failures   int
	weak       []string
	recent     []string
	candidates []string
	format     string
}

var reportFlags struct {
	week        int
	completed   int
	minutes     int
	lvs         float64
	completion  float64
	performance map[string]string
	format      string
}

var completeFlags struct {
	task   string
	score  int
	module string
	format string
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run a single engine decision for a learner",
	Long: `Run one engine decision against the configured stores and providers.

Model calls are charged to the learner's budget exactly as in production.`,
}

var selectTaskCmd = &cobra.Command{
	Use:   "select-task <user-id>",
	Short: "Choose the learner's next task",
	Long: `Choose the next task from the learner's track.

Learners below the accuracy threshold or with too many consecutive failures
escalate to the tier-2 model while budget remains.

Example:
  momentum decide select-task u1 --accuracy 40 --failures 3 --weak writing`,
	Args: cobra.ExactArgs(1),
	RunE: selectTask,
}

var weeklyReportCmd = &cobra.Command{
	Use:   "weekly-report <user-id>",
	Short: "Generate the learner's weekly report",
	Long: `Generate the weekly progress report, from the tier-3 model when the weekly
allowance and budget permit and from the template otherwise.

Example:
  momentum decide weekly-report u1 --week 3 --completed 9 --minutes 240 \
    --performance reading=72,writing=48`,
	Args: cobra.ExactArgs(1),
	RunE: weeklyReport,
}

var completeCmd = &cobra.Command{
	Use:   "complete <user-id>",
	Short: "Record a task score and swap in remedial content if it failed",
	Args:  cobra.ExactArgs(1),
	RunE:  completeTask,
}

func init() {
	rootCmd.AddCommand(decideCmd)
	decideCmd.AddCommand(selectTaskCmd, weeklyReportCmd, completeCmd)

	f := selectTaskCmd.Flags()
	f.Float64Var(&selectFlags.accuracy, "accuracy", 100, "recent accuracy, 0-100")
	f.IntVar(&selectFlags.failures, "failures", 0, "consecutive failures")
	f.StringSliceVar(&selectFlags.weak, "weak", nil, "weak modules")
	f.StringSliceVar(&selectFlags.recent, "recent", nil, "recently completed task titles")
	f.StringSliceVar(&selectFlags.candidates, "candidates", nil, "candidate task IDs (default: the track's first tasks)")
	f.StringVar(&selectFlags.format, "format", "text", "output format: text, json")

	f = weeklyReportCmd.Flags()
	f.IntVar(&reportFlags.week, "week", 1, "week number")
	f.IntVar(&reportFlags.completed, "completed", 0, "tasks completed this week")
	f.IntVar(&reportFlags.minutes, "minutes", 0, "practice minutes this week")
	f.Float64Var(&reportFlags.lvs, "lvs", 0, "learning velocity score")
	f.Float64Var(&reportFlags.completion, "completion", 0, "completion rate, 0-100")
	f.StringToStringVar(&reportFlags.performance, "performance", nil, "module accuracy, e.g. reading=72,writing=48")
	f.StringVar(&reportFlags.format, "format", "text", "output format: text, json")

	f = completeCmd.Flags()
	f.StringVar(&completeFlags.task, "task", "", "completed task ID")
	f.IntVar(&completeFlags.score, "score", 0, "score, 0-100")
	f.StringVar(&completeFlags.module, "module", "", "module the task exercised")
	f.StringVar(&completeFlags.format, "format", "text", "output format: text, json")
	_ = completeCmd.MarkFlagRequired("task")
	_ = completeCmd.MarkFlagRequired("module")
}

func selectTask(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(selectFlags.format))
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		sel, err := a.engine.SelectTask(ctx, args[0], engine.SelectTaskRequest{
			RecentAccuracy:      selectFlags.accuracy,
			ConsecutiveFailures: selectFlags.failures,
			WeakModules:         selectFlags.weak,
			RecentTasks:         selectFlags.recent,
			CandidateTaskIDs:    selectFlags.candidates,
		})
		if err != nil {
			return err
		}
		if selectFlags.format == string(cli.FormatJSON) {
			return formatter.FormatTo(cmd.OutOrStdout(), sel)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "task: %s\ntier: %s\ncost_usd: %.6f\nreasoning: %s\n", sel.TaskID, sel.Tier, sel.CostUSD, sel.Reasoning)
		if sel.FallbackReason != "" {
			fmt.Fprintf(out, "fallback: %s\n", sel.FallbackReason)
		}
		return nil
	})
}

func weeklyReport(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(reportFlags.format))
	if err != nil {
		return err
	}
	performance, err := parsePerformance(reportFlags.performance)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		report, err := a.engine.GenerateWeeklyReport(ctx, args[0], engine.WeeklyReportRequest{
			WeekNumber:        reportFlags.week,
			TasksCompleted:    reportFlags.completed,
			PracticeMinutes:   reportFlags.minutes,
			LVS:               reportFlags.lvs,
			CompletionRate:    reportFlags.completion,
			ModulePerformance: performance,
		})
		if err != nil {
			return err
		}
		if reportFlags.format == string(cli.FormatJSON) {
			return formatter.FormatTo(cmd.OutOrStdout(), report)
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Report)
		return nil
	})
}

func completeTask(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(completeFlags.format))
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		ev, err := a.engine.RecordCompletionAndMaybeSwap(ctx, args[0], completeFlags.task, completeFlags.score, completeFlags.module)
		if err != nil {
			return err
		}
		if completeFlags.format == string(cli.FormatJSON) {
			return formatter.FormatTo(cmd.OutOrStdout(), ev)
		}
		if ev == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No intervention needed")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\nSwapped in %s (%s)\n", ev.Reason, ev.InterventionTaskRef, ev.InterventionTitle)
		if ev.Recommendation != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Recommendation: %s\n", ev.Recommendation)
		}
		return nil
	})
}

func parsePerformance(in map[string]string) (map[string]float64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(in))
	for module, v := range in {
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return nil, cli.NewUsageError("performance", "%s=%q is not a number", module, v)
		}
		out[module] = f
	}
	return out, nil
}
