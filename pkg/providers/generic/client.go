package generic

import (
	"momentum-hq/engine/pkg/providers"
	"momentum-hq/engine/pkg/providers/openai"
)

// Provider is an adapter for OpenAI-compatible servers such as Ollama,
// vLLM or LM Studio. The API key is optional.
type Provider struct {
	*openai.Provider
}

// NewProvider creates a generic OpenAI-compatible provider. BaseURL is
// required and should include the version path.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 5
	}
	p, err := openai.NewCompatibleProvider(config)
	if err != nil {
		return nil, err
	}
	return &Provider{Provider: p}, nil
}
