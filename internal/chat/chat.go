// Package chat implements the follow-up tutor conversation about a study
// guide. Text turns are streamed from an [llm.Provider]; voice turns
// committed by the voice pipeline are appended to the same transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/studymate/internal/observe"
	"github.com/MrWong99/studymate/pkg/provider/llm"
)

// SystemInstruction frames the tutor persona.
const SystemInstruction = "You are StudyMate AI, an expert tutor. You have just generated a study guide for a " +
	"student based on a text they provided. The study guide includes a summary, flashcards, and a quiz. Now, you " +
	"will answer the student's follow-up questions about the material. Be helpful, clear, and stay on topic. Use " +
	"Markdown for formatting when appropriate."

// contextLimit caps how much of the source text seeds the conversation.
const contextLimit = 10000

var (
	// ErrVoiceActive is returned by Send while a voice session is running.
	ErrVoiceActive = errors.New("chat: voice session active")

	// ErrBusy is returned by Send while a previous reply is still streaming.
	ErrBusy = errors.New("chat: reply in progress")

	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("chat: empty message")
)

// Role of a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one visible transcript entry.
type Message struct {
	Role Role
	Text string
}

// Option configures a [Session].
type Option func(*Session)

// WithVoiceActive installs a check that refuses text turns while it reports
// true.
func WithVoiceActive(fn func() bool) Option {
	return func(s *Session) { s.voiceActive = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithProviderName labels provider metrics. Default "chat".
func WithProviderName(name string) Option {
	return func(s *Session) { s.provider = name }
}

// Session is a follow-up conversation about one study guide. It is safe for
// concurrent use; only one text turn runs at a time.
type Session struct {
	llm         llm.Provider
	provider    string
	voiceActive func() bool
	log         *slog.Logger
	metrics     *observe.Metrics

	mu         sync.Mutex
	history    []llm.Message
	transcript []Message
	busy       bool
}

// NewSession seeds a conversation with the source content and the title of
// the generated guide.
func NewSession(p llm.Provider, content, title string, opts ...Option) *Session {
	s := &Session{
		llm:      p,
		provider: "chat",
		history: []llm.Message{
			{Role: llm.RoleUser, Content: "Here is the academic content I'm studying:\n\n" + truncateRunes(content, contextLimit)},
			{Role: llm.RoleAssistant, Content: fmt.Sprintf("Great! I have analyzed the text and created a study guide for you with the title \"%s\". I'm ready to help you with any questions you have about it.", title)},
		},
		transcript: []Message{{
			Role: RoleModel,
			Text: fmt.Sprintf("Great! I've prepared your study guide for \"%s\". How can I help you dive deeper into the material? You can type or start a voice conversation.", title),
		}},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Send streams the tutor's reply to text. onDelta, if non-nil, receives each
// fragment as it arrives. On failure the transcript records an apology
// carrying the error and the error is returned.
func (s *Session) Send(ctx context.Context, text string, onDelta func(string)) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if s.voiceActive != nil && s.voiceActive() {
		return "", ErrVoiceActive
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.busy = true
	s.transcript = append(s.transcript, Message{Role: RoleUser, Text: text})
	req := llm.CompletionRequest{
		SystemPrompt: SystemInstruction,
		Messages:     append(append([]llm.Message(nil), s.history...), llm.Message{Role: llm.RoleUser, Content: text}),
	}
	s.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "chat.send")
	defer span.End()
	start := time.Now()

	reply, err := s.stream(ctx, req, onDelta)
	s.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		observe.Fail(span, err)
		s.metrics.RecordProviderRequest(ctx, s.provider, "chat", "error")
		s.metrics.RecordProviderError(ctx, s.provider, "chat")
		observe.WithSpan(ctx, s.log).Error("chat: reply failed", "err", err)
		s.transcript = append(s.transcript, Message{Role: RoleModel, Text: "Sorry, I encountered an error: " + err.Error()})
		return "", fmt.Errorf("chat: send: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.provider, "chat", "ok")
	s.history = append(s.history,
		llm.Message{Role: llm.RoleUser, Content: text},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
	s.transcript = append(s.transcript, Message{Role: RoleModel, Text: reply})
	return reply, nil
}

func (s *Session) stream(ctx context.Context, req llm.CompletionRequest, onDelta func(string)) (string, error) {
	ch, err := s.llm.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.Collect(ctx, ch, onDelta)
}

// AppendVoiceTurn records a committed voice turn in the visible transcript.
// Blank text is ignored.
func (s *Session) AppendVoiceTurn(role Role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, Message{Role: role, Text: text})
	s.log.Debug("chat: voice turn recorded", "role", role, "len", len(text))
}

// Transcript returns a copy of the visible conversation.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// History returns a copy of the messages sent to the model on the next turn,
// the seed included.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
