package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/telemetry/health"
)

var runFlags struct {
	metricsListen   string
	dryRun          bool
	shutdownTimeout time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the maintenance scheduler and metrics endpoint",
	Long: `Start the long-running engine process.

The process opens the configured stores, starts the maintenance scheduler
(weekly tier-3 resets, monthly budget resets and the daily streak recompute)
and, when metrics are enabled, serves Prometheus metrics on /metrics next to the /healthz, /readyz and
/version probes.

Examples:
  # Start with default config
  momentum run

  # Start with a config file and expose metrics on all interfaces
  momentum run --config /etc/momentum/config.yaml --metrics-listen 0.0.0.0:9090

  # Validate config and open the stores without starting anything
  momentum run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.metricsListen, "metrics-listen", "", "override metrics listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and open stores, then exit")
	runCmd.Flags().DurationVar(&runFlags.shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
}

func runEngine(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		out := cmd.OutOrStdout()
		if runFlags.metricsListen != "" {
			a.cfg.Telemetry.Metrics.ListenAddress = runFlags.metricsListen
		}

		fmt.Fprintf(out, "Momentum %s\n", Version)
		fmt.Fprintf(out, "✓ Stores opened (ledger: %s, data: %s)\n", a.cfg.Storage.Ledger, a.cfg.Storage.Data)
		fmt.Fprintf(out, "✓ Providers initialized (%d providers)\n", len(a.providers.Names()))

		if runFlags.dryRun {
			report := a.health.Readiness(ctx)
			for _, name := range a.health.Names() {
				fmt.Fprintf(out, "  %-10s %s\n", name, report.Checks[name].Status)
			}
			if !report.Ready() {
				return fmt.Errorf("readiness checks failed: %s", report.Status)
			}
			fmt.Fprintln(out, "✓ Configuration valid")
			return nil
		}

		errChan := make(chan error, 1)

		if a.cfg.Maintenance.IsEnabled() {
			sched := a.scheduler()
			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("failed to start maintenance scheduler: %w", err)
			}
			defer sched.Stop()
			fmt.Fprintln(out, "✓ Maintenance scheduler started")
		}

		var srv *http.Server
		if a.metrics != nil {
			mux := http.NewServeMux()
			mux.Handle("/metrics", a.metrics.Handler())
			a.health.Mount(mux, health.BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate})
			srv = &http.Server{
				Addr:              a.cfg.Telemetry.Metrics.ListenAddress,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}
			go func() {
				slog.Info("starting metrics server", "address", ln.Addr().String())
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errChan <- fmt.Errorf("metrics server error: %w", err)
				}
			}()
			fmt.Fprintf(out, "✓ Metrics endpoint: http://%s/metrics\n", ln.Addr())
		}

		fmt.Fprintln(out, "\nPress Ctrl+C to stop")

		select {
		case err := <-errChan:
			return cli.NewCommandError("run", err)
		case <-ctx.Done():
			fmt.Fprintln(out, "\nShutting down gracefully...")
		}

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), runFlags.shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown failed", "error", err)
				return err
			}
		}

		fmt.Fprintln(out, "✓ Stopped")
		return nil
	})
}
