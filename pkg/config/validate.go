package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "budget.monthly_budget_usd").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateBudget(&cfg.Budget)...)
	errs = append(errs, validateTiers(&cfg.Tiers, cfg.Providers)...)
	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRecorder(&cfg.Recorder)...)
	errs = append(errs, validateMaintenance(&cfg.Maintenance)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateBudget(cfg *BudgetConfig) []FieldError {
	var errs []FieldError

	if cfg.MonthlyBudgetUSD < 0 {
		errs = append(errs, FieldError{
			Field:   "budget.monthly_budget_usd",
			Message: "monthly budget cannot be negative",
		})
	}
	if cfg.Tier3WeeklyLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "budget.tier3_weekly_limit",
			Message: "tier 3 weekly limit cannot be negative",
		})
	}

	return errs
}

func validateTiers(cfg *TiersConfig, providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validateTier("tiers.tier2", &cfg.Tier2, providers)...)
	errs = append(errs, validateTier("tiers.tier3", &cfg.Tier3, providers)...)

	if cfg.MaxTokens.TaskSelection < 0 {
		errs = append(errs, FieldError{Field: "tiers.max_tokens.task_selection", Message: "must be positive"})
	}
	if cfg.MaxTokens.WeeklyReport < 0 {
		errs = append(errs, FieldError{Field: "tiers.max_tokens.weekly_report", Message: "must be positive"})
	}
	if cfg.MaxTokens.InterventionDiagnosis < 0 {
		errs = append(errs, FieldError{Field: "tiers.max_tokens.intervention_diagnosis", Message: "must be positive"})
	}

	return errs
}

func validateTier(prefix string, tier *TierConfig, providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	if !tier.IsEnabled() {
		return nil
	}

	if _, ok := providers[tier.Provider]; !ok {
		errs = append(errs, FieldError{
			Field:   prefix + ".provider",
			Message: fmt.Sprintf("provider %q is not configured", tier.Provider),
		})
	}
	if tier.Model == "" {
		errs = append(errs, FieldError{
			Field:   prefix + ".model",
			Message: "model is required",
		})
	}
	if tier.InputRatePer1K < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".input_rate_per_1k",
			Message: "rate cannot be negative",
		})
	}
	if tier.OutputRatePer1K < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".output_rate_per_1k",
			Message: "rate cannot be negative",
		})
	}
	if tier.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".timeout",
			Message: "timeout must be positive",
		})
	}

	return errs
}

func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError

	if cfg.FailingScore < 0 || cfg.FailingScore > 100 {
		errs = append(errs, FieldError{
			Field:   "rules.failing_score",
			Message: "must be between 0 and 100",
		})
	}
	if cfg.EscalationAccuracy < 0 || cfg.EscalationAccuracy > 100 {
		errs = append(errs, FieldError{
			Field:   "rules.escalation_accuracy",
			Message: "must be between 0 and 100",
		})
	}
	if cfg.EscalationFailures < 0 {
		errs = append(errs, FieldError{
			Field:   "rules.escalation_failures",
			Message: "cannot be negative",
		})
	}
	for i, m := range cfg.Milestones {
		if m <= 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("rules.milestones[%d]", i),
				Message: "milestone must be positive",
			})
			continue
		}
		if i > 0 && m <= cfg.Milestones[i-1] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("rules.milestones[%d]", i),
				Message: "milestones must be strictly increasing",
			})
		}
	}

	return errs
}

func validateProviders(providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	for name, provider := range providers {
		prefix := fmt.Sprintf("providers.%s", name)

		switch provider.Type {
		case "", "anthropic", "openai", "generic":
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unsupported provider type %q (supported: anthropic, openai, generic)", provider.Type),
			})
		}

		if provider.BaseURL != "" {
			if _, err := url.Parse(provider.BaseURL); err != nil {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: fmt.Sprintf("invalid URL format: %v", err),
				})
			}
		}

		if provider.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "timeout must be positive",
			})
		}
	}

	return errs
}

func validateRateLimit(cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	if cfg.RequestsPerMinute < 0 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.requests_per_minute",
			Message: "cannot be negative",
		})
	}
	if cfg.Burst < 0 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.burst",
			Message: "cannot be negative",
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Ledger {
	case "memory", "sqlite":
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.dsn",
				Message: "DSN is required when storage.ledger is postgres",
			})
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "storage.redis.addr",
				Message: "address is required when storage.ledger is redis",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.ledger",
			Message: fmt.Sprintf("unsupported ledger backend %q (supported: memory, sqlite, postgres, redis)", cfg.Ledger),
		})
	}

	switch cfg.Data {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.data",
			Message: fmt.Sprintf("unsupported data backend %q (supported: memory, sqlite)", cfg.Data),
		})
	}

	if (cfg.Ledger == "sqlite" || cfg.Data == "sqlite") && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{
			Field:   "storage.sqlite.path",
			Message: "path is required for sqlite storage",
		})
	}

	return errs
}

func validateRecorder(cfg *RecorderConfig) []FieldError {
	var errs []FieldError

	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "recorder.async_buffer",
			Message: "cannot be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "recorder.write_timeout",
			Message: "timeout must be positive",
		})
	}

	return errs
}

func validateMaintenance(cfg *MaintenanceConfig) []FieldError {
	var errs []FieldError

	schedules := map[string]string{
		"maintenance.weekly_reset_schedule":  cfg.WeeklyResetSchedule,
		"maintenance.monthly_reset_schedule": cfg.MonthlyResetSchedule,
		"maintenance.streak_schedule":        cfg.StreakSchedule,
	}
	for field, expr := range schedules {
		if _, err := cron.ParseStandard(expr); err != nil {
			errs = append(errs, FieldError{
				Field:   field,
				Message: fmt.Sprintf("invalid cron schedule: %v", err),
			})
		}
	}

	if cfg.MaxAttempts < 1 {
		errs = append(errs, FieldError{
			Field:   "maintenance.max_attempts",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	return errs
}
