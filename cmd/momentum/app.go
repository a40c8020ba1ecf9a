package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"momentum-hq/engine/internal/sqlitedb"
	"momentum-hq/engine/pkg/cli"
	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/engine"
	"momentum-hq/engine/pkg/escalation"
	"momentum-hq/engine/pkg/ledger"
	ledgerstorage "momentum-hq/engine/pkg/ledger/storage"
	"momentum-hq/engine/pkg/maintenance"
	"momentum-hq/engine/pkg/providerfactory"
	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/store"
	"momentum-hq/engine/pkg/telemetry/health"
	"momentum-hq/engine/pkg/telemetry/metrics"
	"momentum-hq/engine/pkg/usage"
	usagestorage "momentum-hq/engine/pkg/usage/storage"

	"github.com/spf13/cobra"
)

// app is the fully wired engine for one command invocation.
type app struct {
	cfg        *config.Config
	metrics    *metrics.Collector
	ledger     *ledger.Tracker
	usage      usage.Storage
	recorder   *usage.Recorder
	store      store.Store
	providers  *providerfactory.Manager
	router     *escalation.Router
	engine     *engine.Engine
	thresholds rules.Thresholds
	health     *health.Checker

	// closers run in reverse order on Close.
	closers []io.Closer
}

// newApp opens the configured backends and wires the engine on top of them.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Telemetry.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Telemetry.Metrics, nil)
	}

	// One SQLite handle is shared by every sqlite-backed store.
	var db *sqlitedb.DB
	if cfg.Storage.Ledger == "sqlite" || cfg.Storage.Data == "sqlite" {
		db, err = sqlitedb.Open(sqlitedb.Config{
			Path:               cfg.Storage.SQLite.Path,
			BusyTimeout:        cfg.Storage.SQLite.BusyTimeout,
			CheckpointInterval: cfg.Storage.SQLite.CheckpointInterval,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
	}

	ledgerStore, err := openLedgerStore(ctx, cfg.Storage, db)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, ledgerStore)
	a.ledger = ledger.NewTracker(ledgerStore, ledger.Config{
		MonthlyBudgetUSD: cfg.Budget.MonthlyBudgetUSD,
		Tier3WeeklyLimit: cfg.Budget.Tier3WeeklyLimit,
	}, ledger.WithMetrics(a.metrics))

	switch cfg.Storage.Data {
	case "memory":
		a.store = store.NewMemoryStore()
		a.usage = usagestorage.NewMemoryStorage()
	case "sqlite":
		if a.store, err = store.NewSQLiteStoreFromDB(db); err != nil {
			return nil, err
		}
		if a.usage, err = usagestorage.NewSQLiteStorageFromDB(db); err != nil {
			return nil, err
		}
	default:
		return nil, cli.NewConfigError("storage.data", fmt.Sprintf("unsupported backend %q", cfg.Storage.Data))
	}
	a.closers = append(a.closers, a.store, a.usage)

	a.recorder = usage.NewRecorder(a.usage, a.ledger, &usage.Config{
		Enabled:      cfg.Recorder.IsEnabled(),
		AsyncBuffer:  cfg.Recorder.AsyncBuffer,
		WriteTimeout: cfg.Recorder.WriteTimeout,
	}, a.metrics)

	a.providers = providerfactory.NewManager()
	if err := a.providers.LoadFromConfig(cfg.Providers); err != nil {
		slog.Warn("some providers failed to initialize", "error", err)
	}
	a.closers = append(a.closers, a.providers, a.recorder)

	a.health = health.New(cfg.Telemetry.Metrics.HealthTimeout)
	if p, ok := ledgerStore.(pinger); ok {
		a.health.Register("ledger", p.Ping)
	}
	if db != nil {
		a.health.Register("sqlite", db.PingContext)
	}
	a.health.Register("providers", health.NonEmpty("providers", a.providers.Names))

	a.thresholds = thresholdsFrom(cfg.Rules)
	a.router = escalation.NewRouter(a.ledger, a.recorder, a.providers,
		escalation.ConfigFrom(cfg, a.thresholds),
		escalation.WithMetrics(a.metrics),
	)
	a.engine = engine.New(a.store, a.ledger, a.router, a.thresholds)

	return a, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func openLedgerStore(ctx context.Context, cfg config.StorageConfig, db *sqlitedb.DB) (ledger.Store, error) {
	switch cfg.Ledger {
	case "memory":
		return ledgerstorage.NewMemoryStore(), nil
	case "sqlite":
		return ledgerstorage.NewSQLiteStoreFromDB(db)
	case "postgres":
		return ledgerstorage.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
	case "redis":
		rs := ledgerstorage.NewRedisStore(ledgerstorage.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return rs, nil
	default:
		return nil, cli.NewConfigError("storage.ledger", fmt.Sprintf("unsupported backend %q", cfg.Ledger))
	}
}

func thresholdsFrom(cfg config.RulesConfig) rules.Thresholds {
	return rules.Thresholds{
		FailingScore:       cfg.FailingScore,
		EscalationAccuracy: cfg.EscalationAccuracy,
		EscalationFailures: cfg.EscalationFailures,
		Milestones:         append([]int(nil), cfg.Milestones...),
	}
}

// scheduler returns the maintenance scheduler for this app's stores.
func (a *app) scheduler() *maintenance.Scheduler {
	jobs := maintenance.NewJobs(a.ledger, a.store)
	return maintenance.NewScheduler(jobs.Definitions(a.cfg.Maintenance), a.cfg.Maintenance.MaxAttempts,
		maintenance.WithMetrics(a.metrics),
	)
}

// Close flushes the usage recorder and releases every backend.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp loads the configuration, wires the app and runs fn with a context
// that is cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	return nil
}
