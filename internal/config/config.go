package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config stores runtime configuration.
type Config struct {
	Deepgram  DeepgramConfig
	Anthropic AnthropicConfig
	Audio     AudioConfig
	Glossary  GlossaryConfig
	Session   SessionConfig
	UI        UIConfig
	Telemetry TelemetryConfig

	// EnvFiles lists the dotenv files that were found and applied.
	EnvFiles []string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type AnthropicConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int
	SystemPromptFile string
}

type AudioConfig struct {
	Backend       string
	FFmpegCommand string
	InputFormat   string
	InputDevice   string
	SampleRate    int
	Channels      int
	ChunkDuration time.Duration
	QueueDepth    int
}

// ChunkSamples is the number of frames in one chunk.
func (a AudioConfig) ChunkSamples() int {
	return int(int64(a.SampleRate) * a.ChunkDuration.Milliseconds() / 1000)
}

type GlossaryConfig struct {
	Path string
}

type SessionConfig struct {
	StreamingGrace time.Duration
	LogDir         string
	LogEnabled     bool
}

type UIConfig struct {
	Hotkey        string
	Notifications bool
}

type TelemetryConfig struct {
	LogLevel    string
	LogPretty   bool
	MetricsAddr string
}

const (
	AudioBackendMalgo  = "malgo"
	AudioBackendFFmpeg = "ffmpeg"
)

type environment struct {
	DeepgramAPIKey      string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramAPIBase     string `envconfig:"DEEPGRAM_API_BASE" default:"https://api.deepgram.com/v1"`
	DeepgramModel       string `envconfig:"DEEPGRAM_MODEL" default:"nova-3"`
	DeepgramLanguage    string `envconfig:"DEEPGRAM_LANGUAGE" default:"de"`
	DeepgramSmartFormat bool   `envconfig:"DEEPGRAM_SMART_FORMAT" default:"true"`

	AnthropicAPIKey    string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL   string `envconfig:"ANTHROPIC_BASE_URL"`
	AnthropicModel     string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5-20250929"`
	AnthropicMaxTokens int    `envconfig:"ANTHROPIC_MAX_TOKENS" default:"600"`
	SystemPromptFile   string `envconfig:"STUPIDISCO_SYSTEM_PROMPT_FILE"`

	AudioBackend     string        `envconfig:"STUPIDISCO_AUDIO_BACKEND" default:"malgo"`
	FFmpegCommand    string        `envconfig:"STUPIDISCO_FFMPEG_COMMAND" default:"ffmpeg"`
	AudioInputFormat string        `envconfig:"STUPIDISCO_AUDIO_INPUT_FORMAT"`
	AudioInputDevice string        `envconfig:"STUPIDISCO_AUDIO_INPUT_DEVICE"`
	SampleRate       int           `envconfig:"STUPIDISCO_SAMPLE_RATE" default:"16000"`
	Channels         int           `envconfig:"STUPIDISCO_CHANNELS" default:"1"`
	ChunkDuration    time.Duration `envconfig:"STUPIDISCO_AUDIO_CHUNK" default:"100ms"`
	QueueDepth       int           `envconfig:"STUPIDISCO_AUDIO_QUEUE_DEPTH" default:"64"`

	GlossaryFile string `envconfig:"STUPIDISCO_GLOSSARY_FILE"`

	StreamingGrace time.Duration `envconfig:"STUPIDISCO_STREAMING_GRACE" default:"1s"`
	SessionDir     string        `envconfig:"STUPIDISCO_SESSION_DIR"`
	SessionLog     bool          `envconfig:"STUPIDISCO_SESSION_LOG" default:"true"`

	Hotkey        string `envconfig:"STUPIDISCO_HOTKEY"`
	Notifications bool   `envconfig:"STUPIDISCO_NOTIFICATIONS" default:"false"`

	LogLevel    string `envconfig:"STUPIDISCO_LOG_LEVEL" default:"info"`
	LogPretty   bool   `envconfig:"STUPIDISCO_LOG_PRETTY" default:"false"`
	MetricsAddr string `envconfig:"STUPIDISCO_METRICS_ADDR"`
}

// HomeDir is the per-user directory holding .env, the glossary and session logs.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".stupidisco"), nil
}

// Load applies ./.env and ~/.stupidisco/.env without overriding variables
// that are already set, then resolves the environment with defaults.
func Load() (Config, error) {
	appDir, err := HomeDir()
	if err != nil {
		return Config{}, err
	}

	var loaded []string
	for _, path := range []string{".env", filepath.Join(appDir, ".env")} {
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}

	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(env.DeepgramAPIKey),
			APIBaseURL:  strings.TrimSpace(env.DeepgramAPIBase),
			Model:       env.DeepgramModel,
			Language:    env.DeepgramLanguage,
			SmartFormat: env.DeepgramSmartFormat,
		},
		Anthropic: AnthropicConfig{
			APIKey:           strings.TrimSpace(env.AnthropicAPIKey),
			BaseURL:          strings.TrimSpace(env.AnthropicBaseURL),
			Model:            env.AnthropicModel,
			MaxTokens:        env.AnthropicMaxTokens,
			SystemPromptFile: env.SystemPromptFile,
		},
		Audio: AudioConfig{
			Backend:       strings.ToLower(strings.TrimSpace(env.AudioBackend)),
			FFmpegCommand: env.FFmpegCommand,
			InputFormat:   env.AudioInputFormat,
			InputDevice:   env.AudioInputDevice,
			SampleRate:    env.SampleRate,
			Channels:      env.Channels,
			ChunkDuration: env.ChunkDuration,
			QueueDepth:    env.QueueDepth,
		},
		Glossary: GlossaryConfig{
			Path: firstNonEmpty(env.GlossaryFile, filepath.Join(appDir, "glossary.yaml")),
		},
		Session: SessionConfig{
			StreamingGrace: env.StreamingGrace,
			LogDir:         firstNonEmpty(env.SessionDir, filepath.Join(appDir, "sessions")),
			LogEnabled:     env.SessionLog,
		},
		UI: UIConfig{
			Hotkey:        strings.TrimSpace(env.Hotkey),
			Notifications: env.Notifications,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    env.LogLevel,
			LogPretty:   env.LogPretty,
			MetricsAddr: strings.TrimSpace(env.MetricsAddr),
		},
		EnvFiles: loaded,
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkDuration < 10*time.Millisecond {
		cfg.Audio.ChunkDuration = 100 * time.Millisecond
	}
	if cfg.Anthropic.MaxTokens <= 0 {
		cfg.Anthropic.MaxTokens = 600
	}
	if cfg.Session.StreamingGrace < 0 {
		cfg.Session.StreamingGrace = time.Second
	}

	return cfg, nil
}

// Validate reports everything that prevents the recording pipeline from
// running.
func (c Config) Validate() error {
	var errs []error
	if c.Deepgram.APIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY is required"))
	}
	if c.Anthropic.APIKey == "" {
		errs = append(errs, errors.New("ANTHROPIC_API_KEY is required"))
	}
	switch c.Audio.Backend {
	case AudioBackendMalgo, AudioBackendFFmpeg:
	default:
		errs = append(errs, fmt.Errorf("unsupported audio backend %q", c.Audio.Backend))
	}
	return errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
