// Package config provides configuration management for the Momentum engine.
//
// Configuration is loaded from a YAML file, completed with defaults, optionally
// overridden from the environment and validated before use. The resulting
// *Config is passed explicitly to every constructor; there is no global
// configuration state.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("momentum.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("momentum.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention MOMENTUM_SECTION_FIELD:
//
//   - MOMENTUM_BUDGET_MONTHLY_USD overrides budget.monthly_budget_usd
//   - MOMENTUM_TIERS_TIER3_ENABLED overrides tiers.tier3.enabled
//   - MOMENTUM_STORAGE_LEDGER overrides storage.ledger
//   - MOMENTUM_PROVIDERS_ANTHROPIC_API_KEY overrides providers.anthropic.api_key
//
// # Example Configuration
//
//	budget:
//	  monthly_budget_usd: 0.50
//	  tier3_weekly_limit: 1
//
//	tiers:
//	  tier2:
//	    provider: anthropic
//	    model: claude-3-5-haiku-latest
//	  tier3:
//	    provider: anthropic
//	    model: claude-sonnet-4-20250514
//	    timeout: 30s
//
//	providers:
//	  anthropic:
//	    base_url: "https://api.anthropic.com"
//
//	storage:
//	  ledger: sqlite
//	  sqlite:
//	    path: data/momentum.db
package config
