// Package mock provides a scripted llm.Provider for tests.
//
//	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "Hello"}}}
//	s := chat.NewSession(p, content, title)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/studymate/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Call is one recorded request.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider replays configured responses and records every request. Set the
// exported response fields before use.
type Provider struct {
	// StreamChunks are emitted in order by StreamCompletion.
	StreamChunks []llm.Chunk
	// StreamErr makes StreamCompletion fail before opening a channel.
	StreamErr error

	// CompleteResponse and CompleteErr are returned by Complete.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	mu sync.Mutex
	// StreamCalls and CompleteCalls record requests in arrival order. Read
	// them only after the provider is idle, or use [Provider.Calls].
	StreamCalls   []Call
	CompleteCalls []Call
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, Call{Ctx: ctx, Req: req})
	err := p.StreamErr
	chunks := append([]llm.Chunk(nil), p.StreamChunks...)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, Call{Ctx: ctx, Req: req})
	return p.CompleteResponse, p.CompleteErr
}

// Calls returns a copy of the StreamCompletion requests seen so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.StreamCalls...)
}
