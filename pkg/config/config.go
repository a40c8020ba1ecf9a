package config

import "time"

// Config is the root configuration structure for the Momentum decision engine.
// It contains every section the engine, its stores, the escalation router and
// the maintenance scheduler need. A Config is built once at startup and passed
// explicitly into constructors.
type Config struct {
	// Budget contains the per-user spending ceiling and the tier-3 weekly cap.
	Budget BudgetConfig `yaml:"budget" envPrefix:"BUDGET_"`

	// Tiers contains the model, pricing and timeout settings for the two
	// cost-bearing escalation tiers.
	Tiers TiersConfig `yaml:"tiers" envPrefix:"TIERS_"`

	// Rules contains the thresholds used by the deterministic rule classifier.
	Rules RulesConfig `yaml:"rules" envPrefix:"RULES_"`

	// Providers contains configuration for every model provider the tiers may
	// reference. Keys are provider names (e.g., "anthropic", "openai").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// RateLimit bounds how many provider calls the router may start per minute
	// across all learners. It models the provider account quota, not a
	// per-learner allowance.
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`

	// Storage selects and configures the ledger and learner data backends.
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`

	// Recorder configures the asynchronous usage log writer.
	Recorder RecorderConfig `yaml:"recorder" envPrefix:"RECORDER_"`

	// Maintenance configures the scheduled reset and recompute jobs.
	Maintenance MaintenanceConfig `yaml:"maintenance" envPrefix:"MAINTENANCE_"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// BudgetConfig contains per-user AI spending limits.
type BudgetConfig struct {
	// MonthlyBudgetUSD is the hard monthly spending ceiling per user.
	// Default: 0.50
	MonthlyBudgetUSD float64 `yaml:"monthly_budget_usd" env:"MONTHLY_USD"`

	// Tier3WeeklyLimit is the maximum number of tier-3 attempts per user per
	// ISO week.
	// Default: 1
	Tier3WeeklyLimit int `yaml:"tier3_weekly_limit" env:"TIER3_WEEKLY_LIMIT"`
}

// TiersConfig contains settings for the cost-bearing tiers.
type TiersConfig struct {
	// Tier2 is the cheap model tier used for task selection and diagnosis.
	Tier2 TierConfig `yaml:"tier2" envPrefix:"TIER2_"`

	// Tier3 is the expensive model tier used for weekly reports.
	Tier3 TierConfig `yaml:"tier3" envPrefix:"TIER3_"`

	// MaxTokens holds the completion budget per operation.
	MaxTokens MaxTokensConfig `yaml:"max_tokens" envPrefix:"MAX_TOKENS_"`
}

// TierConfig describes one escalation tier.
type TierConfig struct {
	// Enabled switches the tier on or off. A disabled tier always falls back.
	// Default: true
	Enabled *bool `yaml:"enabled" env:"ENABLED"`

	// Provider is the key into Config.Providers used for this tier.
	// Default: "anthropic"
	Provider string `yaml:"provider" env:"PROVIDER"`

	// Model is the model identifier sent to the provider.
	// Default tier 2: "claude-3-5-haiku-latest"; tier 3: "claude-sonnet-4-20250514"
	Model string `yaml:"model" env:"MODEL"`

	// InputRatePer1K is the USD price per 1000 input tokens.
	// Default tier 2: 0.00025; tier 3: 0.003
	InputRatePer1K float64 `yaml:"input_rate_per_1k" env:"INPUT_RATE_PER_1K"`

	// OutputRatePer1K is the USD price per 1000 output tokens.
	// Default tier 2: 0.00125; tier 3: 0.015
	OutputRatePer1K float64 `yaml:"output_rate_per_1k" env:"OUTPUT_RATE_PER_1K"`

	// Timeout bounds a single provider call. Exceeding it is treated as a
	// provider failure.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// IsEnabled reports whether the tier is switched on.
func (t TierConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// MaxTokensConfig holds the completion token budget per operation.
type MaxTokensConfig struct {
	// TaskSelection is the max_tokens for tier-2 task selection.
	// Default: 50
	TaskSelection int `yaml:"task_selection" env:"TASK_SELECTION"`

	// WeeklyReport is the max_tokens for tier-3 weekly reports.
	// Default: 500
	WeeklyReport int `yaml:"weekly_report" env:"WEEKLY_REPORT"`

	// InterventionDiagnosis is the max_tokens for tier-2 intervention diagnosis.
	// Default: 200
	InterventionDiagnosis int `yaml:"intervention_diagnosis" env:"INTERVENTION_DIAGNOSIS"`
}

// RulesConfig contains thresholds for the tier-1 rule classifier.
type RulesConfig struct {
	// FailingScore is the completion score below which an intervention
	// is triggered.
	// Default: 60
	FailingScore int `yaml:"failing_score" env:"FAILING_SCORE"`

	// EscalationAccuracy is the recent accuracy below which a learner is
	// considered struggling.
	// Default: 60
	EscalationAccuracy float64 `yaml:"escalation_accuracy" env:"ESCALATION_ACCURACY"`

	// EscalationFailures is the number of consecutive failures at which a
	// learner is considered struggling.
	// Default: 2
	EscalationFailures int `yaml:"escalation_failures" env:"ESCALATION_FAILURES"`

	// Milestones are the streak lengths that produce a milestone event.
	// Default: [7, 14, 30, 60, 90]
	Milestones []int `yaml:"milestones" env:"MILESTONES"`
}

// ProviderConfig contains configuration for a single model provider.
type ProviderConfig struct {
	// Type is the adapter to use: "anthropic", "openai" or "generic".
	// Inferred from the provider name when empty.
	Type string `yaml:"type"`

	// BaseURL is the base URL for the provider's API endpoint.
	// Example: "https://api.anthropic.com"
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the provider.
	// This should typically be loaded from an environment variable.
	APIKey string `yaml:"api_key"`

	// Timeout is the HTTP client timeout for this provider. Tier timeouts
	// are applied on top of it per call.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig bounds provider call throughput.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained number of provider calls allowed
	// per minute across all users. Zero disables the limiter.
	// Default: 50
	RequestsPerMinute int `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`

	// Burst is the maximum number of calls allowed at once.
	// Default: 10
	Burst int `yaml:"burst" env:"BURST"`
}

// StorageConfig selects the backends for ledger and learner data.
type StorageConfig struct {
	// Ledger is the budget ledger backend: "memory", "sqlite", "postgres" or "redis".
	// Default: "sqlite"
	Ledger string `yaml:"ledger" env:"LEDGER"`

	// Data is the backend for usage records, learners, streaks, tasks and
	// interventions: "memory" or "sqlite".
	// Default: "sqlite"
	Data string `yaml:"data" env:"DATA"`

	// SQLite configures the SQLite database shared by the sqlite backends.
	SQLite SQLiteConfig `yaml:"sqlite" envPrefix:"SQLITE_"`

	// Postgres configures the Postgres ledger backend.
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`

	// Redis configures the Redis ledger backend.
	Redis RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
}

// SQLiteConfig contains SQLite connection settings.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/momentum.db"
	Path string `yaml:"path" env:"PATH"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" env:"CHECKPOINT_INTERVAL"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	// DSN is the lib/pq connection string.
	DSN string `yaml:"dsn" env:"DSN"`

	// MaxOpenConns bounds the connection pool.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	// Default: "localhost:6379"
	Addr string `yaml:"addr" env:"ADDR"`

	// Password is the optional AUTH password.
	Password string `yaml:"password" env:"PASSWORD"`

	// DB is the logical database number.
	DB int `yaml:"db" env:"DB"`

	// KeyPrefix namespaces every ledger key.
	// Default: "momentum:ledger:"
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// RecorderConfig configures the usage recorder.
type RecorderConfig struct {
	// Enabled controls whether usage records are appended to the log.
	// Ledger commits happen regardless.
	// Default: true
	Enabled *bool `yaml:"enabled" env:"ENABLED"`

	// AsyncBuffer is the size of the pending append queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer" env:"ASYNC_BUFFER"`

	// WriteTimeout bounds a single append.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// IsEnabled reports whether usage appends are switched on.
func (r RecorderConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// MaintenanceConfig configures the scheduled maintenance jobs.
// Schedules use standard 5-field cron syntax and are evaluated in UTC.
type MaintenanceConfig struct {
	// Enabled controls whether `momentum run` starts the scheduler.
	// Default: true
	Enabled *bool `yaml:"enabled" env:"ENABLED"`

	// WeeklyResetSchedule runs ResetWeeklyLimits.
	// Default: "0 0 * * 1" (Monday 00:00)
	WeeklyResetSchedule string `yaml:"weekly_reset_schedule" env:"WEEKLY_RESET_SCHEDULE"`

	// MonthlyResetSchedule runs ResetMonthlyBudgets.
	// Default: "0 0 1 * *" (first of the month)
	MonthlyResetSchedule string `yaml:"monthly_reset_schedule" env:"MONTHLY_RESET_SCHEDULE"`

	// StreakSchedule runs RecomputeBrokenStreaks.
	// Default: "5 0 * * *" (daily 00:05)
	StreakSchedule string `yaml:"streak_schedule" env:"STREAK_SCHEDULE"`

	// MaxAttempts bounds retries of a failing job run.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// IsEnabled reports whether the scheduler should run.
func (m MaintenanceConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOGGING_"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level" env:"LEVEL"`

	// Format is the output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format" env:"FORMAT"`

	// AddSource adds file:line to every record.
	AddSource bool `yaml:"add_source" env:"ADD_SOURCE"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled controls whether `momentum run` serves /metrics.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// ListenAddress is where the metrics endpoint listens.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address" env:"LISTEN_ADDRESS"`

	// Namespace prefixes every metric name.
	// Default: "momentum"
	Namespace string `yaml:"namespace" env:"NAMESPACE"`

	// HealthTimeout bounds each readiness check on /readyz.
	// Default: 2s
	HealthTimeout time.Duration `yaml:"health_timeout" env:"HEALTH_TIMEOUT"`
}
