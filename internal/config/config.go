// Package config provides the configuration schema, loader, and provider registry
// for StudyMate.
package config

import (
	"time"

	"github.com/MrWong99/studymate/internal/study"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for StudyMate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Study     StudyConfig     `yaml:"study"`
	Voice     VoiceConfig     `yaml:"voice"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retry     RetryConfig     `yaml:"retry"`
	Prefs     PrefsConfig     `yaml:"prefs"`
}

// ServerConfig holds the health endpoint address and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics
	// (e.g., ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation backs each
// capability. Chat, Live and Audio entries are looked up in the [Registry].
type ProvidersConfig struct {
	// Generation is the structured study guide backend. Only "gemini" is
	// supported.
	Generation ProviderEntry `yaml:"generation"`

	// Chat is the primary follow-up chat model.
	Chat ProviderEntry `yaml:"chat"`

	// ChatFallbacks are tried in order when Chat fails.
	ChatFallbacks []ProviderEntry `yaml:"chat_fallbacks"`

	// Live is the realtime voice service.
	Live ProviderEntry `yaml:"live"`

	// Audio is the local microphone and speaker platform.
	Audio ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Gemini entries fall back to GEMINI_API_KEY or GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// StudyConfig holds the learner profile and generation preferences.
type StudyConfig struct {
	Profile     study.StudentProfile `yaml:"profile"`
	Preferences study.Preferences    `yaml:"preferences"`

	// Language is the output language. Default "English".
	Language string `yaml:"language"`
}

// VoiceConfig configures the realtime voice pipeline.
type VoiceConfig struct {
	// InputSampleRate is the rate sent to the live service. Default 16000.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the rate of audio received from it. Default 24000.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// FrameSize is the capture frame length in samples. Default 4096.
	FrameSize int `yaml:"frame_size"`

	// SendQueue bounds outgoing audio chunks. Default 32.
	SendQueue int `yaml:"send_queue"`

	// Instructions is the system instruction for the voice model.
	Instructions string `yaml:"instructions"`

	// Voice is the prebuilt voice name (e.g., "Puck").
	Voice string `yaml:"voice"`
}

// IngestConfig configures URL and file ingestion.
type IngestConfig struct {
	// TranscriptService is the base URL of the caption service.
	TranscriptService string `yaml:"transcript_service"`

	// ProxyURL routes fetches through a raw pass-through proxy. Optional.
	ProxyURL string `yaml:"proxy_url"`

	// Timeout bounds a single fetch. Default 30s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxBytes caps how much is read from a file or response. Default 20 MiB.
	MaxBytes int64 `yaml:"max_bytes"`
}

// RetryConfig tunes study guide generation retries.
type RetryConfig struct {
	// Attempts is the total number of tries. Default 3.
	Attempts int `yaml:"attempts"`

	// BaseDelay is the wait before the second attempt; it doubles after
	// each failure. Default 2s.
	BaseDelay time.Duration `yaml:"base_delay"`
}

// PrefsConfig locates the preference file.
type PrefsConfig struct {
	// Path overrides $XDG_CONFIG_HOME/studymate/prefs.yaml.
	Path string `yaml:"path"`
}
