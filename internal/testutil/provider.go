package testutil

import (
	"context"
	"sync"
	"time"

	"momentum-hq/engine/pkg/providers"
)

// Reply is one scripted provider result.
type Reply struct {
	Content   string
	TokensIn  int
	TokensOut int
	Err       error

	// Block makes the call wait for its context to finish and return a
	// *providers.TimeoutError.
	Block bool
}

// ScriptedProvider is an in-process providers.Provider that returns scripted
// replies in order, repeating the last one once the script runs out.
type ScriptedProvider struct {
	name string

	mu       sync.Mutex
	replies  []Reply
	requests []*providers.CompletionRequest
	closed   bool
}

// NewScriptedProvider returns a provider that answers with replies.
func NewScriptedProvider(name string, replies ...Reply) *ScriptedProvider {
	return &ScriptedProvider{name: name, replies: replies}
}

// SendCompletion implements providers.Provider.
func (p *ScriptedProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var reply Reply
	switch n := len(p.replies); {
	case n == 0:
	case len(p.requests) <= n:
		reply = p.replies[len(p.requests)-1]
	default:
		reply = p.replies[n-1]
	}
	p.mu.Unlock()

	if reply.Block {
		start := time.Now()
		<-ctx.Done()
		return nil, &providers.TimeoutError{Provider: p.name, Timeout: time.Since(start)}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &providers.CompletionResponse{
		ID:           "scripted",
		Model:        req.Model,
		Content:      reply.Content,
		FinishReason: providers.FinishReasonStop,
		Usage: providers.TokenUsage{
			PromptTokens:     reply.TokensIn,
			CompletionTokens: reply.TokensOut,
			TotalTokens:      reply.TokensIn + reply.TokensOut,
		},
	}, nil
}

// GetName implements providers.Provider.
func (p *ScriptedProvider) GetName() string {
	return p.name
}

// Close implements providers.Provider.
func (p *ScriptedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Calls returns how many completions were requested.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// LastRequest returns the most recent request, or nil.
func (p *ScriptedProvider) LastRequest() *providers.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// Closed reports whether Close was called.
func (p *ScriptedProvider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
