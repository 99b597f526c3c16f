// Package app wires the StudyMate subsystems into a running application.
//
// The App struct owns the full lifecycle: New assembles the generator,
// ingester and preferences, Generate produces a study guide and opens the
// follow-up chat and voice pipeline for it, Run serves the health endpoints
// alongside the caller's front end, and Shutdown tears everything down.
//
// All dependencies are injected through [Providers] and functional options;
// there is no package-level client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/studymate/internal/chat"
	"github.com/MrWong99/studymate/internal/config"
	"github.com/MrWong99/studymate/internal/health"
	"github.com/MrWong99/studymate/internal/ingest"
	"github.com/MrWong99/studymate/internal/observe"
	"github.com/MrWong99/studymate/internal/prefs"
	"github.com/MrWong99/studymate/internal/resilience"
	"github.com/MrWong99/studymate/internal/study"
	"github.com/MrWong99/studymate/internal/voice"
	"github.com/MrWong99/studymate/pkg/audio"
	"github.com/MrWong99/studymate/pkg/provider/live"
	"github.com/MrWong99/studymate/pkg/provider/llm"
)

// wedgedAfter is how long the voice pipeline may stay in a transitional
// state before readiness fails.
const wedgedAfter = 30 * time.Second

var (
	// ErrNoGuide is returned by operations that need a generated guide.
	ErrNoGuide = errors.New("app: no study guide generated yet")

	// ErrVoiceUnavailable is returned when no live or audio provider is
	// configured.
	ErrVoiceUnavailable = errors.New("app: voice chat not configured")
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Generation study.Backend
	Chat       llm.Provider
	Live       live.Provider
	Audio      audio.Platform
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	metrics   *observe.Metrics
	observer  voice.Observer
	ingester  *ingest.Ingester
	generator *study.Generator
	prefsPath string
	now       func() time.Time

	retrySleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	prefs      prefs.Prefs
	content    string
	guide      *study.Output
	chat       *chat.Session
	voice      *voice.Manager
	voiceState voice.State
	voiceSince time.Time
	stopOnce   sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVoiceObserver receives voice events in addition to the app's own
// bookkeeping.
func WithVoiceObserver(o voice.Observer) Option {
	return func(a *App) { a.observer = o }
}

// WithIngester replaces the ingester built from config.
func WithIngester(in *ingest.Ingester) Option {
	return func(a *App) { a.ingester = in }
}

// WithRetrySleep replaces the backoff sleep of generation retries.
func WithRetrySleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *App) { a.retrySleep = sleep }
}

// New assembles an App from cfg and providers. The preference file is read
// once here; a missing file yields the defaults.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Generation == nil {
		return nil, errors.New("app: a generation provider is required")
	}
	a := &App{
		cfg:        cfg,
		providers:  providers,
		now:        time.Now,
		voiceState: voice.StateIdle,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.observer == nil {
		a.observer = voice.NopObserver{}
	}

	// ── Ingestion ────────────────────────────────────────────────────────
	if a.ingester == nil {
		ingestOpts := []ingest.Option{
			ingest.WithHTTPClient(&http.Client{Timeout: cfg.Ingest.Timeout}),
			ingest.WithTranscriptService(cfg.Ingest.TranscriptService),
			ingest.WithMaxBytes(cfg.Ingest.MaxBytes),
			ingest.WithLogger(a.log),
		}
		if cfg.Ingest.ProxyURL != "" {
			ingestOpts = append(ingestOpts, ingest.WithProxy(cfg.Ingest.ProxyURL))
		}
		a.ingester = ingest.New(ingestOpts...)
	}

	// ── Generator ────────────────────────────────────────────────────────
	a.generator = study.NewGenerator(providers.Generation,
		study.WithRetryPolicy(resilience.RetryPolicy{
			Attempts:  cfg.Retry.Attempts,
			BaseDelay: cfg.Retry.BaseDelay,
			Sleep:     a.retrySleep,
		}),
		study.WithLanguage(cfg.Study.Language),
		study.WithLogger(a.log),
		study.WithMetrics(a.metrics),
		study.WithProviderName(cfg.Providers.Generation.Name),
	)

	// ── Preferences ──────────────────────────────────────────────────────
	path, err := prefs.ResolvePath(cfg.Prefs.Path)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.prefsPath = path
	p, err := prefs.Load(path)
	if err != nil {
		a.log.Warn("preferences unreadable, using defaults", "path", path, "err", err)
	}
	a.prefs = p

	return a, nil
}

// ─── Study guide ─────────────────────────────────────────────────────────────

// Source selects one input for [App.Ingest]. The first non-empty field wins
// in the order URL, File, Text.
type Source struct {
	Text string
	File string
	URL  string
}

// Ingest turns src into plain text. Errors are [*ingest.Error] values whose
// message is fit for display.
func (a *App) Ingest(ctx context.Context, src Source) (string, error) {
	switch {
	case src.URL != "":
		return a.ingester.FromURL(ctx, src.URL)
	case src.File != "":
		return a.ingester.FromFile(ctx, src.File)
	default:
		return a.ingester.FromText(src.Text)
	}
}

// Generate produces a study guide for content and opens a fresh follow-up
// chat and voice pipeline for it. A running voice session is stopped first.
// onStatus receives retry progress messages.
func (a *App) Generate(ctx context.Context, content string, onStatus func(string)) (*study.Output, error) {
	out, err := a.generator.Generate(ctx, content, a.cfg.Study.Profile, a.cfg.Study.Preferences, onStatus)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	old := a.voice
	a.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	var session *chat.Session
	if a.providers.Chat != nil {
		session = chat.NewSession(a.providers.Chat, content, out.Summary.Title,
			chat.WithVoiceActive(a.VoiceActive),
			chat.WithLogger(a.log),
			chat.WithMetrics(a.metrics),
			chat.WithProviderName(a.cfg.Providers.Chat.Name),
		)
	}

	var mgr *voice.Manager
	if a.providers.Live != nil && a.providers.Audio != nil {
		vc := a.cfg.Voice
		instructions := vc.Instructions
		if instructions == "" {
			instructions = VoiceInstructions(out.Summary.Title)
		}
		mgr = voice.NewManager(a.providers.Audio, a.providers.Live, voice.Config{
			InputSampleRate:  vc.InputSampleRate,
			OutputSampleRate: vc.OutputSampleRate,
			FrameSize:        vc.FrameSize,
			SendQueue:        vc.SendQueue,
			Instructions:     instructions,
			Voice:            vc.Voice,
			Logger:           a.log,
			Metrics:          a.metrics,
		}, &voiceObserver{app: a, next: a.observer})
	}

	a.mu.Lock()
	a.content = content
	a.guide = out
	a.chat = session
	a.voice = mgr
	a.voiceState = voice.StateIdle
	a.voiceSince = a.now()
	a.mu.Unlock()
	return out, nil
}

// VoiceInstructions is the default system instruction of a voice session
// about the guide titled title.
func VoiceInstructions(title string) string {
	return "You are StudyMate AI, an expert tutor. You have just generated a study guide for a student. " +
		"Now, you will have a voice conversation with them about the material. Be helpful, clear, and stay " +
		"on topic. The study guide title is \"" + title + "\"."
}

// Guide returns the current study guide, or nil.
func (a *App) Guide() *study.Output {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.guide
}

// Chat returns the follow-up conversation of the current guide, or nil when
// no guide exists or no chat provider is configured.
func (a *App) Chat() *chat.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chat
}

// ─── Voice ───────────────────────────────────────────────────────────────────

// VoiceActive reports whether a voice session is starting or running.
func (a *App) VoiceActive() bool {
	a.mu.Lock()
	mgr := a.voice
	a.mu.Unlock()
	if mgr == nil {
		return false
	}
	s := mgr.State()
	return s == voice.StateStarting || s == voice.StateActive
}

// ToggleVoice stops a starting or running session, or starts a new one.
// It reports whether voice is on afterwards.
func (a *App) ToggleVoice(ctx context.Context) (bool, error) {
	a.mu.Lock()
	mgr, guide := a.voice, a.guide
	a.mu.Unlock()
	if guide == nil {
		return false, ErrNoGuide
	}
	if mgr == nil {
		return false, ErrVoiceUnavailable
	}

	if a.VoiceActive() {
		mgr.Stop()
		return false, nil
	}
	if err := mgr.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// voiceObserver records voice turns in the chat transcript and tracks the
// pipeline state for readiness before forwarding each event.
type voiceObserver struct {
	app  *App
	next voice.Observer
}

func (o *voiceObserver) StateChanged(s voice.State) {
	o.app.mu.Lock()
	o.app.voiceState = s
	o.app.voiceSince = o.app.now()
	o.app.mu.Unlock()
	o.next.StateChanged(s)
}

func (o *voiceObserver) PartialChanged(user, model string) {
	o.next.PartialChanged(user, model)
}

func (o *voiceObserver) TurnCommitted(t voice.Turn) {
	if c := o.app.Chat(); c != nil {
		role := chat.RoleUser
		if t.Speaker == voice.SpeakerModel {
			role = chat.RoleModel
		}
		c.AppendVoiceTurn(role, t.Text)
	}
	o.next.TurnCommitted(t)
}

func (o *voiceObserver) Error(msg string) {
	o.next.Error(msg)
}

// ─── Preferences ─────────────────────────────────────────────────────────────

// Theme returns the current display theme.
func (a *App) Theme() prefs.Theme {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prefs.Theme
}

// ToggleTheme flips the theme and persists it. The in-memory theme changes
// even when saving fails.
func (a *App) ToggleTheme() (prefs.Theme, error) {
	a.mu.Lock()
	theme := a.prefs.Toggle()
	snapshot := a.prefs
	a.mu.Unlock()

	if err := prefs.Save(a.prefsPath, snapshot); err != nil {
		return theme, fmt.Errorf("app: save preferences: %w", err)
	}
	return theme, nil
}

// ─── Health ──────────────────────────────────────────────────────────────────

// Checkers returns the readiness probes of the app.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		{Name: "providers", Check: func(context.Context) error {
			if a.providers.Generation == nil {
				return errors.New("no generation provider")
			}
			if a.cfg.Providers.Generation.APIKey == "" {
				return errors.New("generation api key missing")
			}
			return nil
		}},
		{Name: "voice", Check: func(context.Context) error {
			a.mu.Lock()
			state, since := a.voiceState, a.voiceSince
			a.mu.Unlock()
			if state != voice.StateStarting && state != voice.StateClosing {
				return nil
			}
			if d := a.now().Sub(since); d > wedgedAfter {
				return fmt.Errorf("voice %s for %s", state, d.Round(time.Second))
			}
			return nil
		}},
	}
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run serves the health endpoints (when server.listen_addr is set) next to
// frontend and blocks until frontend returns or ctx is cancelled. The
// frontend's error is returned; a health server failure cancels it.
func (a *App) Run(ctx context.Context, frontend func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		handler := health.New(a.Checkers()...).Mux(a.metrics)
		g.Go(func() error {
			if err := health.Serve(gctx, addr, handler); err != nil {
				return fmt.Errorf("app: health server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return frontend(gctx)
	})
	return g.Wait()
}

// Shutdown stops any voice session. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")
		a.mu.Lock()
		mgr := a.voice
		a.mu.Unlock()
		if mgr == nil {
			return
		}
		done := make(chan struct{})
		go func() {
			mgr.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.log.Warn("shutdown deadline exceeded while stopping voice")
			err = ctx.Err()
		}
	})
	return err
}
