package providerfactory

import (
	"fmt"
	"log/slog"

	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/providers"
	"momentum-hq/engine/pkg/providers/anthropic"
	"momentum-hq/engine/pkg/providers/generic"
	"momentum-hq/engine/pkg/providers/openai"
)

// Provider type names accepted in configuration.
const (
	TypeAnthropic = "anthropic"
	TypeOpenAI    = "openai"
	TypeGeneric   = "generic"
)

// AdapterConfig converts a configuration entry into the adapter's config.
func AdapterConfig(name string, cfg config.ProviderConfig) providers.ProviderConfig {
	providerType := cfg.Type
	if providerType == "" {
		providerType = inferProviderType(name)
	}
	return providers.ProviderConfig{
		Name:    name,
		Type:    providerType,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	}
}

// NewProvider creates the adapter for one configured provider.
//
// The adapter is chosen from cfg.Type; when that is empty it is inferred
// from the name ("anthropic" and "openai" map to themselves, anything else
// is treated as an OpenAI-compatible generic endpoint).
func NewProvider(name string, cfg config.ProviderConfig) (providers.Provider, error) {
	pc := AdapterConfig(name, cfg)

	slog.Debug("creating provider", "name", pc.Name, "type", pc.Type, "base_url", pc.BaseURL)

	var (
		provider providers.Provider
		err      error
	)
	switch pc.Type {
	case TypeAnthropic:
		provider, err = anthropic.NewProvider(pc)
	case TypeOpenAI:
		provider, err = openai.NewProvider(pc)
	case TypeGeneric:
		provider, err = generic.NewProvider(pc)
	default:
		return nil, &providers.ConfigError{
			Provider: pc.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type: %q (supported: anthropic, openai, generic)", pc.Type),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", pc.Name, err)
	}
	return provider, nil
}

func inferProviderType(name string) string {
	switch name {
	case TypeAnthropic:
		return TypeAnthropic
	case TypeOpenAI:
		return TypeOpenAI
	default:
		return TypeGeneric
	}
}
