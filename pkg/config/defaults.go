package config

import "time"

// Default values for configuration fields.
const (
	// Budget defaults
	DefaultMonthlyBudgetUSD = 0.50
	DefaultTier3WeeklyLimit = 1

	// Tier defaults
	DefaultTierProvider        = "anthropic"
	DefaultTier2Model          = "claude-3-5-haiku-latest"
	DefaultTier2InputRate      = 0.00025
	DefaultTier2OutputRate     = 0.00125
	DefaultTier3Model          = "claude-sonnet-4-20250514"
	DefaultTier3InputRate      = 0.003
	DefaultTier3OutputRate     = 0.015
	DefaultTierTimeout         = 30 * time.Second
	DefaultTaskSelectionTokens = 50
	DefaultWeeklyReportTokens  = 500
	DefaultDiagnosisTokens     = 200

	// Rules defaults
	DefaultFailingScore       = 60
	DefaultEscalationAccuracy = 60.0
	DefaultEscalationFailures = 2

	// Provider defaults
	DefaultProviderTimeout = 60 * time.Second

	// Rate limit defaults
	DefaultRequestsPerMinute = 50
	DefaultRateLimitBurst    = 10

	// Storage defaults
	DefaultLedgerBackend            = "sqlite"
	DefaultDataBackend              = "sqlite"
	DefaultSQLitePath               = "data/momentum.db"
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultSQLiteCheckpointInterval = 5 * time.Minute
	DefaultPostgresMaxOpenConns     = 10
	DefaultRedisAddr                = "localhost:6379"
	DefaultRedisKeyPrefix           = "momentum:ledger:"

	// Recorder defaults
	DefaultRecorderAsyncBuffer  = 1000
	DefaultRecorderWriteTimeout = 5 * time.Second

	// Maintenance defaults
	DefaultWeeklyResetSchedule  = "0 0 * * 1"
	DefaultMonthlyResetSchedule = "0 0 1 * *"
	DefaultStreakSchedule       = "5 0 * * *"
	DefaultMaintenanceAttempts  = 3

	// Telemetry defaults
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultMetricsAddress = "127.0.0.1:9090"
	DefaultMetricsPrefix  = "momentum"
	DefaultHealthTimeout  = 2 * time.Second
)

// DefaultMilestones are the streak lengths that produce a milestone event.
var DefaultMilestones = []int{7, 14, 30, 60, 90}

// NewDefaultConfig returns a configuration with every default applied and a
// single anthropic provider entry without an API key.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Providers: map[string]ProviderConfig{
			DefaultTierProvider: {Type: "anthropic", BaseURL: "https://api.anthropic.com"},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default. Fields that
// were set explicitly are left unchanged.
func ApplyDefaults(cfg *Config) {
	// Budget defaults
	if cfg.Budget.MonthlyBudgetUSD == 0 {
		cfg.Budget.MonthlyBudgetUSD = DefaultMonthlyBudgetUSD
	}
	if cfg.Budget.Tier3WeeklyLimit == 0 {
		cfg.Budget.Tier3WeeklyLimit = DefaultTier3WeeklyLimit
	}

	// Tier defaults
	applyTierDefaults(&cfg.Tiers.Tier2, DefaultTier2Model, DefaultTier2InputRate, DefaultTier2OutputRate)
	applyTierDefaults(&cfg.Tiers.Tier3, DefaultTier3Model, DefaultTier3InputRate, DefaultTier3OutputRate)
	if cfg.Tiers.MaxTokens.TaskSelection == 0 {
		cfg.Tiers.MaxTokens.TaskSelection = DefaultTaskSelectionTokens
	}
	if cfg.Tiers.MaxTokens.WeeklyReport == 0 {
		cfg.Tiers.MaxTokens.WeeklyReport = DefaultWeeklyReportTokens
	}
	if cfg.Tiers.MaxTokens.InterventionDiagnosis == 0 {
		cfg.Tiers.MaxTokens.InterventionDiagnosis = DefaultDiagnosisTokens
	}

	// Rules defaults
	if cfg.Rules.FailingScore == 0 {
		cfg.Rules.FailingScore = DefaultFailingScore
	}
	if cfg.Rules.EscalationAccuracy == 0 {
		cfg.Rules.EscalationAccuracy = DefaultEscalationAccuracy
	}
	if cfg.Rules.EscalationFailures == 0 {
		cfg.Rules.EscalationFailures = DefaultEscalationFailures
	}
	if len(cfg.Rules.Milestones) == 0 {
		cfg.Rules.Milestones = append([]int(nil), DefaultMilestones...)
	}

	// Provider defaults - applied to each provider
	for name, provider := range cfg.Providers {
		if provider.Timeout == 0 {
			provider.Timeout = DefaultProviderTimeout
		}
		if provider.Type == "" {
			provider.Type = inferProviderType(name)
		}
		cfg.Providers[name] = provider
	}

	// Rate limit defaults
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultRateLimitBurst
	}

	// Storage defaults
	if cfg.Storage.Ledger == "" {
		cfg.Storage.Ledger = DefaultLedgerBackend
	}
	if cfg.Storage.Data == "" {
		cfg.Storage.Data = DefaultDataBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.SQLite.CheckpointInterval == 0 {
		cfg.Storage.SQLite.CheckpointInterval = DefaultSQLiteCheckpointInterval
	}
	if cfg.Storage.Postgres.MaxOpenConns == 0 {
		cfg.Storage.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Recorder defaults
	if cfg.Recorder.AsyncBuffer == 0 {
		cfg.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if cfg.Recorder.WriteTimeout == 0 {
		cfg.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}

	// Maintenance defaults
	if cfg.Maintenance.WeeklyResetSchedule == "" {
		cfg.Maintenance.WeeklyResetSchedule = DefaultWeeklyResetSchedule
	}
	if cfg.Maintenance.MonthlyResetSchedule == "" {
		cfg.Maintenance.MonthlyResetSchedule = DefaultMonthlyResetSchedule
	}
	if cfg.Maintenance.StreakSchedule == "" {
		cfg.Maintenance.StreakSchedule = DefaultStreakSchedule
	}
	if cfg.Maintenance.MaxAttempts == 0 {
		cfg.Maintenance.MaxAttempts = DefaultMaintenanceAttempts
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsAddress
	}
	if cfg.Telemetry.Metrics.HealthTimeout == 0 {
		cfg.Telemetry.Metrics.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsPrefix
	}
}

func applyTierDefaults(tier *TierConfig, model string, inputRate, outputRate float64) {
	if tier.Provider == "" {
		tier.Provider = DefaultTierProvider
	}
	if tier.Model == "" {
		tier.Model = model
	}
	if tier.InputRatePer1K == 0 {
		tier.InputRatePer1K = inputRate
	}
	if tier.OutputRatePer1K == 0 {
		tier.OutputRatePer1K = outputRate
	}
	if tier.Timeout == 0 {
		tier.Timeout = DefaultTierTimeout
	}
}

// inferProviderType infers the adapter type from the provider name.
func inferProviderType(name string) string {
	switch name {
	case "openai":
		return "openai"
	case "anthropic":
		return "anthropic"
	default:
		return "generic"
	}
}
