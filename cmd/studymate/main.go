// Command studymate turns a text, file or web page into a study guide and
// then lets the learner ask follow-up questions by typing or by voice.
//
// Usage:
//
//	studymate [-config studymate.yaml] (-text "..." | -file notes.txt | -url https://...)
//
// After the guide is printed, plain lines are sent to the tutor. /voice
// toggles the voice conversation, /theme toggles the display theme and
// /quit exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/studymate/internal/app"
	"github.com/MrWong99/studymate/internal/config"
	"github.com/MrWong99/studymate/internal/observe"
	"github.com/MrWong99/studymate/internal/resilience"
	"github.com/MrWong99/studymate/internal/study"
	"github.com/MrWong99/studymate/pkg/audio"
	"github.com/MrWong99/studymate/pkg/audio/pulse"
	"github.com/MrWong99/studymate/pkg/provider/live"
	livegemini "github.com/MrWong99/studymate/pkg/provider/live/gemini"
	"github.com/MrWong99/studymate/pkg/provider/llm"
	"github.com/MrWong99/studymate/pkg/provider/llm/anyllm"
	llmgemini "github.com/MrWong99/studymate/pkg/provider/llm/gemini"
	llmopenai "github.com/MrWong99/studymate/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	text := flag.String("text", "", "study material to use directly")
	file := flag.String("file", "", "path of a text file to study")
	url := flag.String("url", "", "YouTube video or article URL to study")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "studymate: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx)
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	term := newTerminal(os.Stdout)
	application, err := app.New(cfg, providers,
		app.WithLogger(logger),
		app.WithVoiceObserver(term),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	term.setTheme(application.Theme())

	// ── Study guide ───────────────────────────────────────────────────────────
	content, err := application.Ingest(ctx, app.Source{Text: *text, File: *file, URL: *url})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	out, err := application.Generate(ctx, content, term.status)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	term.printGuide(out, cfg.Study.Preferences)

	// ── REPL ──────────────────────────────────────────────────────────────────
	runErr := application.Run(ctx, func(ctx context.Context) error {
		return repl(ctx, os.Stdin, term, application)
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, io.EOF) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── Chat ──────────────────────────────────────────────────────────────────
	reg.RegisterChat("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []llmgemini.Option{}
		if entry.Model != "" {
			opts = append(opts, llmgemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, llmgemini.WithBaseURL(entry.BaseURL))
		}
		return llmgemini.New(ctx, entry.APIKey, opts...)
	})

	// The remaining chat backends go through any-llm-go and share the same
	// pattern: optional APIKey + optional BaseURL.
	for _, providerName := range anyllm.Backends {
		if providerName == "gemini" {
			continue
		}
		reg.RegisterChat(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterChat("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.APIKey != "" {
			opts = append(opts, llmopenai.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(entry.Model, opts...)
	})

	// ── Live ──────────────────────────────────────────────────────────────────
	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		if entry.APIKey == "" {
			return nil, errors.New("gemini-live: api key must not be empty")
		}
		var opts []livegemini.Option
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		return livegemini.New(entry.APIKey, opts...), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────
	reg.RegisterAudio("pulse", func(entry config.ProviderEntry) (audio.Platform, error) {
		opts := []pulse.Option{
			pulse.WithApplicationName("StudyMate"),
			pulse.WithLogger(slog.Default()),
		}
		if src := optString(entry.Options, "source"); src != "" {
			opts = append(opts, pulse.WithSource(src))
		}
		if sink := optString(entry.Options, "sink"); sink != "" {
			opts = append(opts, pulse.WithSink(sink))
		}
		return pulse.New(opts...), nil
	})
}

// buildProviders instantiates all providers named in cfg and returns them in
// an [app.Providers] struct. Only the generation backend is mandatory; a chat,
// live or audio provider that fails to build is logged and left nil.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	gen := cfg.Providers.Generation
	client, err := llmgemini.NewClient(ctx, gen.APIKey, gen.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create generation provider: %w", err)
	}
	ps.Generation = study.NewGenAIBackend(client, gen.Model)
	slog.Info("provider created", "kind", "generation", "name", gen.Name, "model", gen.Model)

	if p, err := reg.CreateChat(cfg.Providers.Chat); err != nil {
		slog.Warn("chat provider unavailable", "name", cfg.Providers.Chat.Name, "err", err)
	} else {
		fb := resilience.NewLLMFallback(p, cfg.Providers.Chat.Name, resilience.CircuitBreakerConfig{Name: "chat"})
		for _, entry := range cfg.Providers.ChatFallbacks {
			alt, err := reg.CreateChat(entry)
			if err != nil {
				slog.Warn("chat fallback unavailable", "name", entry.Name, "err", err)
				continue
			}
			fb.AddFallback(entry.Name, alt)
		}
		ps.Chat = fb
		slog.Info("provider created", "kind", "chat", "chain", fb.Names())
	}

	if p, err := reg.CreateLive(cfg.Providers.Live); err != nil {
		slog.Warn("live provider unavailable, voice chat disabled", "name", cfg.Providers.Live.Name, "err", err)
	} else {
		ps.Live = p
		slog.Info("provider created", "kind", "live", "name", cfg.Providers.Live.Name)
	}

	if p, err := reg.CreateAudio(cfg.Providers.Audio); err != nil {
		slog.Warn("audio platform unavailable, voice chat disabled", "name", cfg.Providers.Audio.Name, "err", err)
	} else {
		ps.Audio = p
		slog.Info("provider created", "kind", "audio", "name", cfg.Providers.Audio.Name)
	}

	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
