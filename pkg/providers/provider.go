package providers

import "context"

// Provider is the interface every model adapter implements. The escalation
// router only needs a single request/response completion; it never streams.
//
// Implementations must respect context cancellation and return promptly
// once the context is done. A context deadline surfaces as *TimeoutError so
// callers can tell a slow provider from a failing one.
//
// Example usage:
//
//	p, err := anthropic.NewProvider(cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	resp, err := p.SendCompletion(ctx, &CompletionRequest{
//	    Model:     "claude-3-5-haiku-latest",
//	    MaxTokens: 50,
//	    Messages:  []Message{{Role: RoleUser, Content: prompt}},
//	})
type Provider interface {
	// SendCompletion sends one completion request and returns the normalized
	// response. There are no retries: a failed call is the caller's signal
	// to fall back.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// GetName returns the provider's configured name (e.g., "anthropic").
	GetName() string

	// Close releases idle HTTP connections. The provider must not be used
	// afterwards.
	Close() error
}
