package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "momentum",
	Short: "Momentum - tiered decisions under a per-learner AI budget",
	Long: `Momentum decides what an IELTS learner should study next.

Every decision is first made by deterministic rules. Struggling learners
escalate to a cheap model for task selection and intervention diagnosis;
weekly reports use an expensive model at most once a week. Every model call
is charged to the learner's monthly budget, and once the budget is spent the
engine quietly falls back to rules and templates.

Configuration is read from --config (YAML) and MOMENTUM_* environment
variables. Without --config the defaults are used.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
}

// loadConfig reads the configuration, applies global flag overrides and
// installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if _, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return cfg, nil
}
