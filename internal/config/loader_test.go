package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/studymate/internal/config"
	"github.com/MrWong99/studymate/internal/study"
)

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.Generation.Name != "gemini" || cfg.Providers.Generation.Model != study.DefaultModel {
		t.Errorf("generation = %+v", cfg.Providers.Generation)
	}
	if cfg.Providers.Chat.Name != "gemini" || cfg.Providers.Live.Name != "gemini-live" || cfg.Providers.Audio.Name != "pulse" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if v := cfg.Voice; v.InputSampleRate != 16000 || v.OutputSampleRate != 24000 || v.FrameSize != 4096 || v.SendQueue != 32 {
		t.Errorf("voice = %+v", v)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.BaseDelay != 2*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Study.Language != "English" {
		t.Errorf("language = %q", cfg.Study.Language)
	}
	if cfg.Study.Preferences != study.DefaultPreferences() {
		t.Errorf("preferences = %+v", cfg.Study.Preferences)
	}
	if cfg.Ingest.Timeout != 30*time.Second || cfg.Ingest.MaxBytes != 20<<20 {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
}

func TestApplyDefaults_GeminiKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  chat:
    name: ollama
    model: llama3.2
  live:
    name: gemini-live
    api_key: explicit
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.Generation.APIKey != "google-key" {
		t.Errorf("generation key = %q", cfg.Providers.Generation.APIKey)
	}
	if cfg.Providers.Live.APIKey != "explicit" {
		t.Errorf("live key overwritten: %q", cfg.Providers.Live.APIKey)
	}
	if cfg.Providers.Chat.APIKey != "" {
		t.Errorf("non-gemini chat got a gemini key: %q", cfg.Providers.Chat.APIKey)
	}

	t.Setenv("GEMINI_API_KEY", "gemini-key")
	cfg = config.Default()
	if cfg.Providers.Generation.APIKey != "gemini-key" {
		t.Errorf("GEMINI_API_KEY should win, got %q", cfg.Providers.Generation.APIKey)
	}
}

func TestApplyDefaults_PartialPreferences(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(`
study:
  profile:
    level: grad
  preferences:
    summary_length: long
    quiz:
      enabled: true
      depth: challenging
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	p := cfg.Study.Profile
	if p.Level != study.LevelGrad || p.LearningStyle != study.StyleMixed || len(p.Goals) != 1 {
		t.Errorf("profile = %+v", p)
	}
	prefs := cfg.Study.Preferences
	if prefs.SummaryLength != "long" || prefs.Quiz.Count != 5 || prefs.Quiz.Depth != "challenging" {
		t.Errorf("preferences = %+v", prefs)
	}
	if prefs.Flashcards.Enabled {
		t.Error("flashcards enabled although the file set preferences without them")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen: \":8080\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: verbose
providers:
  generation:
    name: ollama
  chat_fallbacks:
    - model: missing-name
study:
  profile:
    level: phd
voice:
  frame_size: -1
retry:
  attempts: -2
`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"server.log_level",
		"providers.generation.name",
		"providers.chat_fallbacks[0].name is required",
		"unknown level",
		"voice.frame_size",
		"retry.attempts",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "studymate.yaml")
	body := "server:\n  listen_addr: \":9090\"\n  log_level: debug\ningest:\n  proxy_url: https://proxy.example/raw\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Ingest.ProxyURL != "https://proxy.example/raw" {
		t.Errorf("proxy = %q", cfg.Ingest.ProxyURL)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "example-key")

	cfg, err := config.Load(filepath.Join("..", "..", "configs", "studymate.example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if got := len(cfg.Providers.ChatFallbacks); got != 2 {
		t.Errorf("chat fallbacks = %d, want 2", got)
	}
	if cfg.Providers.Generation.APIKey != "example-key" {
		t.Error("generation key not taken from the environment")
	}
	if cfg.Ingest.Timeout != 30*time.Second || cfg.Retry.BaseDelay != 2*time.Second {
		t.Errorf("durations = %v/%v", cfg.Ingest.Timeout, cfg.Retry.BaseDelay)
	}
	if cfg.Study.Preferences.StudyPlan.Weeks != 4 {
		t.Errorf("study plan weeks = %d", cfg.Study.Preferences.StudyPlan.Weeks)
	}
}
