/*
Package cli provides command-line helpers for the momentum command.

Output Formatting:

Command results are printed as text, JSON or CSV. Values that implement
Table render as aligned columns in text mode and as rows in CSV mode:

	formatter, err := cli.NewFormatter(cli.OutputFormat(flags.format))
	if err != nil {
		return err
	}
	return formatter.FormatTo(cmd.OutOrStdout(), summaryTable{summary})

Progress Reporting:

Batch commands such as task import and maintenance runs report progress:

	progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "jobs")
	progress.Start(int64(len(names)))
	for _, name := range names {
		_, err := sched.RunNow(ctx, name)
		progress.Step(name, err)
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	// ctx is cancelled on SIGINT or SIGTERM
*/
package cli
