package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/ledger"
	"momentum-hq/engine/pkg/usage"
)

var usageFlags struct {
	user   string
	tier   int
	since  time.Duration
	limit  int
	format string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the model usage log",
}

var usageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List model calls, newest first",
	Long: `List recorded model calls with their tokens, cost and outcome.

Examples:
  # Last day of calls for one learner
  momentum usage list --user u1 --since 24h

  # Every tier-3 call as CSV
  momentum usage list --tier 3 --limit 0 --format csv`,
	RunE: listUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageListCmd)

	f := usageListCmd.Flags()
	f.StringVar(&usageFlags.user, "user", "", "filter by user id")
	f.IntVar(&usageFlags.tier, "tier", 0, "filter by tier (2 or 3)")
	f.DurationVar(&usageFlags.since, "since", 0, "only calls newer than this, e.g. 24h")
	f.IntVar(&usageFlags.limit, "limit", 50, "maximum records (0 for all)")
	f.StringVar(&usageFlags.format, "format", "text", "output format: text, json, csv")
}

func listUsage(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(usageFlags.format))
	if err != nil {
		return err
	}
	filter, err := usageFilter(time.Now())
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		records, err := a.usage.List(ctx, filter)
		if err != nil {
			return err
		}
		return formatter.FormatTo(cmd.OutOrStdout(), usageTable(records))
	})
}

func usageFilter(now time.Time) (usage.Filter, error) {
	filter := usage.Filter{
		UserID: usageFlags.user,
		Limit:  usageFlags.limit,
	}
	if usageFlags.tier != 0 {
		tier := ledger.Tier(usageFlags.tier)
		if !tier.CostBearing() {
			return filter, cli.NewUsageError("tier", "must be 2 or 3, got %d", usageFlags.tier)
		}
		filter.Tier = tier
	}
	if usageFlags.since > 0 {
		filter.Since = now.Add(-usageFlags.since)
	}
	return filter, nil
}

type usageTable []*usage.Record

func (t usageTable) Headers() []string {
	return []string{"TIME", "USER", "OPERATION", "TIER", "MODEL", "TOKENS_IN", "TOKENS_OUT", "COST_USD", "OK"}
}

func (t usageTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		rows[i] = []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.UserID,
			r.Operation,
			r.Tier.String(),
			r.Model,
			strconv.Itoa(r.TokensIn),
			strconv.Itoa(r.TokensOut),
			usd(r.CostUSD),
			strconv.FormatBool(r.Success),
		}
	}
	return rows
}
