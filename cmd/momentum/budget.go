package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/ledger"
)

var budgetFlags struct {
	format string
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect learner budgets",
}

var budgetShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a learner's spend for the current month",
	Long: `Show month-to-date spend, the remaining budget and tier-3 usage this week.

Examples:
  momentum budget show u1
  momentum budget show u1 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: showBudget,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetShowCmd)

	budgetShowCmd.Flags().StringVar(&budgetFlags.format, "format", "text", "output format: text, json, csv")
}

func showBudget(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(budgetFlags.format))
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		summary, err := a.engine.BudgetSummary(ctx, args[0])
		if err != nil {
			return err
		}
		return formatter.FormatTo(cmd.OutOrStdout(), summaryTable{summary})
	})
}

type summaryTable struct {
	*ledger.MonthlySummary
}

func (s summaryTable) Headers() []string {
	return []string{"USER", "SPEND_USD", "BUDGET_USD", "REMAINING_USD", "LIFETIME_USD", "TIER3_THIS_WEEK", "LAST_TIER3"}
}

func (s summaryTable) Rows() [][]string {
	last := "-"
	if s.LastTier3CallAt != nil {
		last = s.LastTier3CallAt.UTC().Format(time.RFC3339)
	}
	return [][]string{{
		s.UserID,
		usd(s.SpendUSD),
		usd(s.BudgetUSD),
		usd(s.RemainingUSD),
		usd(s.LifetimeSpendUSD),
		strconv.Itoa(s.Tier3CallsThisWeek) + "/" + strconv.Itoa(s.Tier3WeeklyLimit),
		last,
	}}
}

func usd(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
