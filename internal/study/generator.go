package study

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/studymate/internal/observe"
	"github.com/MrWong99/studymate/internal/resilience"
)

// DefaultModel is the model used for generation.
const DefaultModel = "gemini-2.5-flash"

// Backend performs one structured generation call and returns the raw JSON.
// Errors should carry an HTTP status (see [StatusCode]) where one exists.
type Backend interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// GenAIBackend calls the Gemini API through the genai SDK.
type GenAIBackend struct {
	client *genai.Client
	model  string
}

var _ Backend = (*GenAIBackend)(nil)

// NewGenAIBackend returns a Backend using client. An empty model selects
// [DefaultModel].
func NewGenAIBackend(client *genai.Client, model string) *GenAIBackend {
	if model == "" {
		model = DefaultModel
	}
	return &GenAIBackend{client: client, model: model}
}

// GenerateJSON implements [Backend].
func (b *GenAIBackend) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Option configures a [Generator].
type Option func(*Generator)

// WithRetryPolicy overrides the retry policy. Retryable is always replaced
// by [Retryable].
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(g *Generator) { g.retry = p }
}

// WithLanguage asks the model to write in lang (a name such as "English" or a code).
func WithLanguage(lang string) Option {
	return func(g *Generator) { g.language = lang }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithProviderName labels provider metrics. Default "gemini".
func WithProviderName(name string) Option {
	return func(g *Generator) { g.provider = name }
}

// Generator produces study guides.
type Generator struct {
	backend  Backend
	retry    resilience.RetryPolicy
	language string
	provider string
	log      *slog.Logger
	metrics  *observe.Metrics
}

// NewGenerator creates a Generator that calls backend.
func NewGenerator(backend Backend, opts ...Option) *Generator {
	g := &Generator{
		backend:  backend,
		retry:    resilience.RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second},
		provider: "gemini",
	}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	g.retry.Name = "generate"
	g.retry.Retryable = Retryable
	return g
}

// Generate builds a study guide from content. onStatus, if non-nil,
// receives progress messages while the service is busy. Every returned
// error is a [*UserError].
func (g *Generator) Generate(ctx context.Context, content string, profile StudentProfile, prefs Preferences, onStatus func(string)) (*Output, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &UserError{Message: MsgEmptyInput}
	}

	ctx, span := observe.StartSpan(ctx, "study.generate")
	defer span.End()
	start := time.Now()
	defer func() {
		g.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds())
	}()

	prompt := BuildPrompt(content, profile, prefs, g.language)
	schema := Schema()

	policy := g.retry
	policy.Logger = observe.WithSpan(ctx, g.log)
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.metrics.RecordRetry(ctx, "generate")
		msg := fmt.Sprintf("Attempt %d failed. Service is busy. Retrying in %gs...", attempt, delay.Seconds())
		if onStatus != nil {
			onStatus(msg)
		}
	}

	out, err := resilience.Retry(ctx, policy, func(ctx context.Context) (*Output, error) {
		raw, err := g.backend.GenerateJSON(ctx, prompt, schema)
		if err != nil {
			g.metrics.RecordProviderRequest(ctx, g.provider, "generate", "error")
			g.metrics.RecordProviderError(ctx, g.provider, "generate")
			return nil, err
		}
		g.metrics.RecordProviderRequest(ctx, g.provider, "generate", "ok")
		return parseOutput(raw, prefs)
	})
	if err != nil {
		observe.Fail(span, err)
		observe.WithSpan(ctx, g.log).Error("study: generation failed", "err", err)
		return nil, &UserError{Message: UserMessage(err), Err: err}
	}
	observe.WithSpan(ctx, g.log).Info("study: guide generated",
		"title", out.Summary.Title,
		"flashcards", len(out.Flashcards),
		"quiz", len(out.Quiz))
	return out, nil
}

// rawOutput mirrors Output with pointers so missing sections can be told
// apart from empty ones.
type rawOutput struct {
	Summary    *Summary       `json:"summary"`
	Flashcards []Flashcard    `json:"flashcards"`
	Quiz       []QuizQuestion `json:"quiz"`
	StudyPlan  *StudyPlan     `json:"study_plan"`
}

// parseOutput decodes the model's JSON and drops disabled sections.
func parseOutput(raw string, prefs Preferences) (*Output, error) {
	var r rawOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &r); err != nil {
		return nil, fmt.Errorf("study: parse response: %w", err)
	}

	out := &Output{
		Flashcards: []Flashcard{},
		Quiz:       []QuizQuestion{},
		StudyPlan:  StudyPlan{Schedule: []StudyPlanTask{}},
	}
	if r.Summary != nil {
		out.Summary = *r.Summary
	}
	if out.Summary.Glossary == nil {
		out.Summary.Glossary = []GlossaryTerm{}
	}
	if prefs.Flashcards.Enabled && r.Flashcards != nil {
		out.Flashcards = r.Flashcards
	}
	if prefs.Quiz.Enabled && r.Quiz != nil {
		out.Quiz = r.Quiz
	}
	if prefs.StudyPlan.Enabled && r.StudyPlan != nil {
		out.StudyPlan = *r.StudyPlan
		if out.StudyPlan.Schedule == nil {
			out.StudyPlan.Schedule = []StudyPlanTask{}
		}
	}
	return out, nil
}
