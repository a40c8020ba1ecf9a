package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "MOMENTUM_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention MOMENTUM_SECTION_FIELD (e.g., MOMENTUM_BUDGET_MONTHLY_USD).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Struct fields are mapped through their env tags; provider entries are keyed by
// name and handled separately.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	for name := range cfg.Providers {
		applyProviderEnvOverrides(cfg, name)
	}
	// The default tier provider can be configured from the environment alone.
	if _, ok := cfg.Providers[DefaultTierProvider]; !ok {
		if key := os.Getenv(providerEnvKey(DefaultTierProvider, "API_KEY")); key != "" {
			if cfg.Providers == nil {
				cfg.Providers = make(map[string]ProviderConfig)
			}
			cfg.Providers[DefaultTierProvider] = ProviderConfig{
				Type:    "anthropic",
				BaseURL: "https://api.anthropic.com",
				APIKey:  key,
				Timeout: DefaultProviderTimeout,
			}
		}
	}

	return nil
}

// applyProviderEnvOverrides applies environment overrides for a specific provider.
func applyProviderEnvOverrides(cfg *Config, providerName string) {
	provider := cfg.Providers[providerName]

	if val := os.Getenv(providerEnvKey(providerName, "BASE_URL")); val != "" {
		provider.BaseURL = val
	}
	if val := os.Getenv(providerEnvKey(providerName, "API_KEY")); val != "" {
		provider.APIKey = val
	}
	if val := os.Getenv(providerEnvKey(providerName, "TIMEOUT")); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			provider.Timeout = d
		}
	}

	cfg.Providers[providerName] = provider
}

func providerEnvKey(providerName, field string) string {
	name := strings.ToUpper(strings.ReplaceAll(providerName, "-", "_"))
	return EnvPrefix + "PROVIDERS_" + name + "_" + field
}
