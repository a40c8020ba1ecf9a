package testutil

import (
	"sync"
	"time"

	"momentum-hq/engine/pkg/providers"
)

// ProviderConfig returns an adapter configuration pointing at baseURL.
func ProviderConfig(name, providerType, baseURL string) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:                name,
		Type:                providerType,
		BaseURL:             baseURL,
		APIKey:              "test-key",
		Timeout:             5 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	}
}

// UserRequest returns a single-turn request for model.
func UserRequest(model, content string, maxTokens int) *providers.CompletionRequest {
	return &providers.CompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []providers.Message{{Role: providers.RoleUser, Content: content}},
	}
}

// Clock is a settable clock for code that takes a func() time.Time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
