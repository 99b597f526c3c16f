package resilience

import (
	"context"

	"github.com/MrWong99/studymate/pkg/provider/llm"
)

var _ llm.Provider = (*LLMFallback)(nil)

// LLMFallback is an [llm.Provider] that fails over across chat backends.
// Only opening a stream is covered; errors that arrive mid-stream reach the
// caller as an error chunk.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// NewLLMFallback creates an [LLMFallback] with primary tried first.
func NewLLMFallback(primary llm.Provider, name string, breaker CircuitBreakerConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, name, breaker)}
}

// AddFallback registers another backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.Add(name, p)
}

// Names lists the backends in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// StreamCompletion implements [llm.Provider].
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Try(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Try(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
