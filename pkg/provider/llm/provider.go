// Package llm defines the Provider interface for text chat backends.
//
// An LLM provider wraps a remote or local model API (Gemini, OpenAI, Anthropic,
// a local Ollama instance, ...) and exposes a uniform interface for the
// follow-up chat to stream replies without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
	"strings"
)

// FinishReasonError marks a chunk that carries a mid-stream error in Text.
const FinishReasonError = "error"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before the history.
	// Providers without a dedicated system field prepend it as a "system"
	// message.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text of this chunk. When FinishReason is
	// [FinishReasonError] it holds the error message instead.
	Text string

	// FinishReason is set on the final chunk, e.g. "stop", "length" or
	// [FinishReasonError].
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return (or close its channel) as quickly as
// possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or when ctx is cancelled.
	//
	// Errors that occur after the channel is opened are surfaced as a Chunk
	// with FinishReason [FinishReasonError]; the initial error return is
	// non-nil only for failures that prevent the stream from starting.
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Collect drains ch, calling onDelta (if non-nil) for every non-empty text
// fragment, and returns the concatenated text. A [FinishReasonError] chunk
// ends collection with an error carrying its message.
func Collect(ctx context.Context, ch <-chan Chunk, onDelta func(string)) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return b.String(), nil
			}
			if c.FinishReason == FinishReasonError {
				msg := c.Text
				if msg == "" {
					msg = "stream failed"
				}
				return b.String(), errors.New(msg)
			}
			if c.Text == "" {
				continue
			}
			b.WriteString(c.Text)
			if onDelta != nil {
				onDelta(c.Text)
			}
		}
	}
}
