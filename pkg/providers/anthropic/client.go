package anthropic

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"momentum-hq/engine/pkg/providers"
)

// Provider is the Anthropic Messages API adapter.
type Provider struct {
	*providers.HTTPProvider
	logger *slog.Logger
}

const (
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAnthropicVersion is the API version header value.
	DefaultAnthropicVersion = "2023-06-01"
)

// NewProvider creates a new Anthropic provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{Provider: "anthropic", Field: "name", Message: "provider name is required"}
	}
	if config.APIKey == "" {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "api_key", Message: "API key is required for Anthropic"}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(config),
		logger:       slog.Default().With("component", "provider.anthropic", "provider", config.Name),
	}
	p.logger.Info("Anthropic provider initialized", "base_url", config.BaseURL)
	return p, nil
}

// SendCompletion sends a completion request to the Messages API.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}
	body, err := transformRequest(req)
	if err != nil {
		return nil, err
	}

	cfg := p.GetConfig()
	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": DefaultAnthropicVersion,
		"Content-Type":      "application/json",
	}

	var raw messagesResponse
	if err := p.DoJSONRequest(ctx, http.MethodPost, cfg.BaseURL+"/v1/messages", body, &raw, headers); err != nil {
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
