package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/engine"
	"momentum-hq/engine/pkg/rules"
)

// diagnosticFlags binds the diagnostic answers shared by track assign and
// enroll.
type diagnosticFlags struct {
	score        float64
	days         int
	testType     string
	weakModule   string
	dailyMinutes int
	weekend      bool
}

func (d *diagnosticFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&d.score, "score", 0, "diagnostic band score, 0-9")
	fs.IntVar(&d.days, "days", 0, "days until the exam")
	fs.StringVar(&d.testType, "test-type", string(rules.TestAcademic), "academic or general")
	fs.StringVar(&d.weakModule, "weak-module", "", "weakest module: reading, writing, listening, speaking")
	fs.IntVar(&d.dailyMinutes, "daily-minutes", 30, "minutes available per day")
	fs.BoolVar(&d.weekend, "weekend", false, "learner is available at weekends")
}

func (d *diagnosticFlags) request() engine.AssignTrackRequest {
	return engine.AssignTrackRequest{
		DiagnosticScore:  d.score,
		DaysUntilExam:    d.days,
		TestType:         rules.TestType(d.testType),
		WeakModule:       d.weakModule,
		DailyMinutes:     d.dailyMinutes,
		WeekendAvailable: d.weekend,
	}
}

var trackFlags struct {
	diagnostic diagnosticFlags
}

var enrollFlags struct {
	name       string
	email      string
	format     string
	diagnostic diagnosticFlags
}

var streakFlags struct {
	format string
}

var interventionFlags struct {
	limit  int
	format string
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Study track commands",
}

var trackAssignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign a study track from diagnostic answers",
	Long: `Assign a study track without storing anything.

Examples:
  momentum track assign --score 5.0 --days 60 --test-type academic
  momentum track assign --score 6.0 --days 60 --test-type general --weak-module speaking`,
	RunE: assignTrack,
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a learner from diagnostic answers",
	Long: `Assign a track, store the learner and start an empty streak.

Enrolling an email that already exists returns the existing learner.

Example:
  momentum enroll --name Ana --email ana@example.com --score 5.0 --days 60`,
	RunE: enrollLearner,
}

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Daily streak commands",
}

var streakShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a learner's streak status",
	Args:  cobra.ExactArgs(1),
	RunE:  showStreak,
}

var streakUpdateCmd = &cobra.Command{
	Use:   "update <user-id>",
	Short: "Record today's activity for a learner",
	Args:  cobra.ExactArgs(1),
	RunE:  updateStreak,
}

var interventionsCmd = &cobra.Command{
	Use:   "interventions <user-id>",
	Short: "List a learner's task swaps, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  listInterventions,
}

func init() {
	rootCmd.AddCommand(trackCmd, enrollCmd, streakCmd, interventionsCmd)
	trackCmd.AddCommand(trackAssignCmd)
	streakCmd.AddCommand(streakShowCmd, streakUpdateCmd)

	trackFlags.diagnostic.register(trackAssignCmd.Flags())

	enrollFlags.diagnostic.register(enrollCmd.Flags())
	enrollCmd.Flags().StringVar(&enrollFlags.name, "name", "", "learner name")
	enrollCmd.Flags().StringVar(&enrollFlags.email, "email", "", "learner email")
	enrollCmd.Flags().StringVar(&enrollFlags.format, "format", "text", "output format: text, json")
	_ = enrollCmd.MarkFlagRequired("name")
	_ = enrollCmd.MarkFlagRequired("email")

	for _, c := range []*cobra.Command{streakShowCmd, streakUpdateCmd} {
		c.Flags().StringVar(&streakFlags.format, "format", "text", "output format: text, json")
	}

	interventionsCmd.Flags().IntVar(&interventionFlags.limit, "limit", 20, "maximum swaps to list (0 for all)")
	interventionsCmd.Flags().StringVar(&interventionFlags.format, "format", "text", "output format: text, json, csv")
}

func assignTrack(cmd *cobra.Command, args []string) error {
	track, rule, err := rules.AssignTrackExplain(rules.TrackInput{
		DiagnosticScore:  trackFlags.diagnostic.score,
		DaysUntilExam:    trackFlags.diagnostic.days,
		TestType:         rules.TestType(trackFlags.diagnostic.testType),
		WeakModule:       trackFlags.diagnostic.weakModule,
		DailyMinutes:     trackFlags.diagnostic.dailyMinutes,
		WeekendAvailable: trackFlags.diagnostic.weekend,
	})
	if err != nil {
		return cli.NewCommandError("track assign", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, rule %d)\n", track, track.DisplayName(), rule)
	return nil
}

func enrollLearner(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(enrollFlags.format))
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		req := engine.EnrollRequest{
			Name:               enrollFlags.name,
			Email:              enrollFlags.email,
			AssignTrackRequest: enrollFlags.diagnostic.request(),
		}
		res, err := a.engine.Enroll(ctx, req)
		if err != nil {
			return err
		}
		if enrollFlags.format == string(cli.FormatJSON) {
			return formatter.FormatTo(cmd.OutOrStdout(), res)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.Message)
		fmt.Fprintf(out, "learner_id: %s\ntrack: %s\nexam_date: %s\n",
			res.Learner.ID, res.Learner.TrackID, res.Learner.ExamDate.Format(time.DateOnly))
		return nil
	})
}

func showStreak(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(streakFlags.format))
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		view, err := a.engine.GetStreak(ctx, args[0])
		if err != nil {
			return err
		}
		return formatter.FormatTo(cmd.OutOrStdout(), streakTable{view})
	})
}

func updateStreak(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(streakFlags.format))
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		update, err := a.engine.UpdateStreak(ctx, args[0])
		if err != nil {
			return err
		}
		if streakFlags.format == string(cli.FormatJSON) {
			return formatter.FormatTo(cmd.OutOrStdout(), update)
		}
		fmt.Fprintln(cmd.OutOrStdout(), update.Message)
		if update.Milestone > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Milestone reached: %d days\n", update.Milestone)
		}
		return nil
	})
}

func listInterventions(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(interventionFlags.format))
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		events, err := a.engine.Interventions(ctx, args[0], interventionFlags.limit)
		if err != nil {
			return err
		}
		return formatter.FormatTo(cmd.OutOrStdout(), interventionTable(events))
	})
}

type streakTable struct {
	*engine.StreakView
}

func (s streakTable) Headers() []string {
	return []string{"STATUS", "CURRENT", "LONGEST", "LAST_ACTIVITY", "DAYS_UNTIL_RESCUE"}
}

func (s streakTable) Rows() [][]string {
	last := "-"
	if s.LastActivityDate != nil {
		last = s.LastActivityDate.Format(time.DateOnly)
	}
	return [][]string{{
		string(s.Status),
		strconv.Itoa(s.CurrentStreak),
		strconv.Itoa(s.LongestStreak),
		last,
		strconv.Itoa(s.DaysUntilRescue),
	}}
}

type interventionTable []rules.InterventionEvent

func (t interventionTable) Headers() []string {
	return []string{"CREATED", "MODULE", "REASON", "ORIGINAL", "REPLACEMENT", "TYPE"}
}

func (t interventionTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, ev := range t {
		rows[i] = []string{
			ev.CreatedAt.Format(time.RFC3339),
			ev.Module,
			ev.TriggerReason,
			ev.OriginalTaskRef,
			ev.InterventionTaskRef,
			ev.InterventionType,
		}
	}
	return rows
}
