package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/studymate/internal/study"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"generation": {"gemini"},
	"chat":       {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "openai-compatible"},
	"live":       {"gemini-live"},
	"audio":      {"pulse"},
}

// API key environment variables consulted for Gemini entries, in order.
var geminiKeyEnv = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg with its default and
// resolves Gemini API keys from the environment.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	p := &cfg.Providers
	if p.Generation.Name == "" {
		p.Generation.Name = "gemini"
	}
	if p.Generation.Model == "" {
		p.Generation.Model = study.DefaultModel
	}
	if p.Chat.Name == "" {
		p.Chat.Name = "gemini"
		if p.Chat.Model == "" {
			p.Chat.Model = study.DefaultModel
		}
	}
	if p.Live.Name == "" {
		p.Live.Name = "gemini-live"
	}
	if p.Audio.Name == "" {
		p.Audio.Name = "pulse"
	}
	for _, e := range []*ProviderEntry{&p.Generation, &p.Chat, &p.Live} {
		resolveKey(e)
	}
	for i := range p.ChatFallbacks {
		resolveKey(&p.ChatFallbacks[i])
	}

	s := &cfg.Study
	dp := study.DefaultProfile()
	if s.Profile.Level == "" {
		s.Profile.Level = dp.Level
	}
	if s.Profile.LearningStyle == "" {
		s.Profile.LearningStyle = dp.LearningStyle
	}
	if len(s.Profile.Goals) == 0 {
		s.Profile.Goals = dp.Goals
	}
	df := study.DefaultPreferences()
	if s.Preferences == (study.Preferences{}) {
		s.Preferences = df
	}
	sp := &s.Preferences
	if sp.SummaryLength == "" {
		sp.SummaryLength = df.SummaryLength
	}
	if sp.Flashcards.Density == "" {
		sp.Flashcards.Density = df.Flashcards.Density
	}
	if sp.Flashcards.Count == 0 {
		sp.Flashcards.Count = df.Flashcards.Count
	}
	if sp.Quiz.Depth == "" {
		sp.Quiz.Depth = df.Quiz.Depth
	}
	if sp.Quiz.Count == 0 {
		sp.Quiz.Count = df.Quiz.Count
	}
	if sp.StudyPlan.Weeks == 0 {
		sp.StudyPlan.Weeks = df.StudyPlan.Weeks
	}
	if s.Language == "" {
		s.Language = "English"
	}

	v := &cfg.Voice
	if v.InputSampleRate == 0 {
		v.InputSampleRate = 16000
	}
	if v.OutputSampleRate == 0 {
		v.OutputSampleRate = 24000
	}
	if v.FrameSize == 0 {
		v.FrameSize = 4096
	}
	if v.SendQueue == 0 {
		v.SendQueue = 32
	}

	in := &cfg.Ingest
	if in.TranscriptService == "" {
		in.TranscriptService = "https://youtube-transcript-api.vercel.app/api/"
	}
	if in.Timeout == 0 {
		in.Timeout = 30 * time.Second
	}
	if in.MaxBytes == 0 {
		in.MaxBytes = 20 << 20
	}

	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 2 * time.Second
	}
}

// resolveKey fills a missing Gemini API key from the environment.
func resolveKey(e *ProviderEntry) {
	if e.APIKey != "" || (e.Name != "gemini" && e.Name != "gemini-live") {
		return
	}
	for _, env := range geminiKeyEnv {
		if v := os.Getenv(env); v != "" {
			e.APIKey = v
			return
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	if g := cfg.Providers.Generation.Name; g != "" && g != "gemini" {
		errs = append(errs, fmt.Errorf("providers.generation.name %q is invalid; only gemini supports structured output", g))
	}
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	for i, fb := range cfg.Providers.ChatFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.chat_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("chat", fb.Name)
	}
	if cfg.Providers.Generation.Name == "gemini" && cfg.Providers.Generation.APIKey == "" {
		slog.Warn("no Gemini API key configured; set providers.generation.api_key or GEMINI_API_KEY")
	}

	// Study
	if err := cfg.Study.Profile.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("study.profile: %w", err))
	}
	if err := cfg.Study.Preferences.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("study.preferences: %w", err))
	}

	// Voice
	v := cfg.Voice
	if v.InputSampleRate < 0 || v.OutputSampleRate < 0 {
		errs = append(errs, errors.New("voice sample rates must be positive"))
	}
	if v.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("voice.frame_size %d must be positive", v.FrameSize))
	}
	if v.SendQueue < 0 {
		errs = append(errs, fmt.Errorf("voice.send_queue %d must be positive", v.SendQueue))
	}

	// Ingest
	if cfg.Ingest.Timeout < 0 {
		errs = append(errs, fmt.Errorf("ingest.timeout %s must not be negative", cfg.Ingest.Timeout))
	}
	if cfg.Ingest.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("ingest.max_bytes %d must not be negative", cfg.Ingest.MaxBytes))
	}

	// Retry
	if cfg.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("retry.attempts %d must be at least 1", cfg.Retry.Attempts))
	}
	if cfg.Retry.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay %s must not be negative", cfg.Retry.BaseDelay))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
