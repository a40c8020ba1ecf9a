package openai

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"momentum-hq/engine/pkg/providers"
)

// DefaultBaseURL is the public API endpoint, including the version path.
const DefaultBaseURL = "https://api.openai.com/v1"

// Provider is the OpenAI chat completions adapter. It also serves any
// OpenAI-compatible endpoint through the generic package.
type Provider struct {
	*providers.HTTPProvider
	logger *slog.Logger
}

// NewProvider creates a new OpenAI provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{Provider: "openai", Field: "name", Message: "provider name is required"}
	}
	if config.APIKey == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "api_key", Message: "API key is required for OpenAI"}
	}
	return newProvider(config), nil
}

// NewCompatibleProvider creates an adapter for an OpenAI-compatible server
// where the API key is optional.
func NewCompatibleProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{Provider: "generic", Field: "name", Message: "provider name is required"}
	}
	if config.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "base_url", Message: "base URL is required for OpenAI-compatible providers"}
	}
	return newProvider(config), nil
}

func newProvider(config providers.ProviderConfig) *Provider {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(config),
		logger:       slog.Default().With("component", "provider.openai", "provider", config.Name),
	}
	p.logger.Info("OpenAI provider initialized", "base_url", config.BaseURL)
	return p
}

// SendCompletion sends a chat completion request.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}

	cfg := p.GetConfig()
	headers := map[string]string{"Content-Type": "application/json"}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	var raw chatResponse
	if err := p.DoJSONRequest(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", transformRequest(req), &raw, headers); err != nil {
		return nil, err
	}

	resp, err := transformResponse(&raw)
	if err != nil {
		return nil, &providers.ParseError{Provider: p.GetName(), Cause: err}
	}

	p.logger.Debug("completion request succeeded",
		"model", resp.Model,
		"tokens_in", resp.Usage.PromptTokens,
		"tokens_out", resp.Usage.CompletionTokens,
	)
	return resp, nil
}
