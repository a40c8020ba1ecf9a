package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/store"
)

var tasksFlags struct {
	batchSize int
	track     string
	limit     int
	format    string
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage the task catalogue",
}

var tasksImportCmd = &cobra.Command{
	Use:   "import <catalogue.yaml>",
	Short: "Load tasks from a YAML catalogue",
	Long: `Validate a YAML task catalogue and upsert every task.

The whole file is validated before anything is written. Tasks are keyed by
id, so importing the same file twice changes nothing.

Catalogue format:
  tasks:
    - id: f-001
      track_id: foundation
      title: Writing Strategy - Paragraph Structure
      type: strategy
      module: writing
      order_in_track: 3`,
	Args: cobra.ExactArgs(1),
	RunE: importTasks,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a track's tasks in order",
	RunE:  listTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksImportCmd, tasksListCmd)

	tasksImportCmd.Flags().IntVar(&tasksFlags.batchSize, "batch-size", 100, "tasks written per transaction")

	tasksListCmd.Flags().StringVar(&tasksFlags.track, "track", "", "track id (required)")
	tasksListCmd.Flags().IntVar(&tasksFlags.limit, "limit", 0, "maximum tasks to list (0 for all)")
	tasksListCmd.Flags().StringVar(&tasksFlags.format, "format", "text", "output format: text, json, csv")
	_ = tasksListCmd.MarkFlagRequired("track")
}

func importTasks(cmd *cobra.Command, args []string) error {
	tasks, err := store.LoadTasksFile(args[0])
	if err != nil {
		return cli.NewCommandError("tasks import", err)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks in catalogue")
		return nil
	}
	if tasksFlags.batchSize < 1 {
		return cli.NewUsageError("batch-size", "must be at least 1")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "tasks")
		progress.Start(int64(len(tasks)))
		for start := 0; start < len(tasks); start += tasksFlags.batchSize {
			end := min(start+tasksFlags.batchSize, len(tasks))
			if err := a.store.PutTasks(ctx, tasks[start:end]); err != nil {
				progress.Step(fmt.Sprintf("batch %d-%d", start+1, end), err)
				return err
			}
			progress.Advance(int64(end - start))
		}
		progress.Finish()
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d tasks\n", len(tasks))
		return nil
	})
}

func listTasks(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(tasksFlags.format))
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		tasks, err := a.store.ListTasks(ctx, rules.TrackID(tasksFlags.track), tasksFlags.limit)
		if err != nil {
			return err
		}
		return formatter.FormatTo(cmd.OutOrStdout(), taskTable(tasks))
	})
}

type taskTable []store.Task

func (t taskTable) Headers() []string {
	return []string{"ORDER", "ID", "TYPE", "MODULE", "TITLE"}
}

func (t taskTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, task := range t {
		rows[i] = []string{strconv.Itoa(task.OrderInTrack), task.ID, task.Type, task.Module, task.Title}
	}
	return rows
}
