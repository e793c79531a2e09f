package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"stupidisco/internal/audio"
	"stupidisco/internal/config"
	"stupidisco/internal/glossary"
	"stupidisco/internal/hotkey"
	"stupidisco/internal/journal"
	"stupidisco/internal/logging"
	"stupidisco/internal/metrics"
	"stupidisco/internal/notify"
	"stupidisco/internal/ports"
	"stupidisco/internal/providers/claude"
	"stupidisco/internal/providers/deepgram"
	"stupidisco/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Devices    ports.DeviceLister
	Notifier   ports.Notifier
	Metrics    *metrics.Recorder
	Hotkeys    hotkey.Registrar
	Hotkey     hotkey.Combo
	Journal    *journal.Journal
}

// Build wires the runtime graph for cfg. Missing API keys are
// reported as an error since no recording can succeed without them.
func Build(cfg config.Config) (Services, error) {
	log := logging.For("bootstrap")
	if err := cfg.Validate(); err != nil {
		return Services{Config: cfg}, err
	}

	terms, err := glossary.Load(cfg.Glossary.Path)
	if err != nil {
		return Services{Config: cfg}, err
	}

	systemPrompt := ""
	if path := strings.TrimSpace(cfg.Anthropic.SystemPromptFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Services{Config: cfg}, fmt.Errorf("failed to read system prompt %q: %w", path, err)
		}
		systemPrompt = string(raw)
	}

	comboText := cfg.UI.Hotkey
	if comboText == "" {
		comboText = hotkey.DefaultCombo()
	}
	combo, err := hotkey.ParseCombo(comboText)
	if err != nil {
		return Services{Config: cfg}, err
	}

	var capture ports.AudioCapture
	var devices ports.DeviceLister
	switch cfg.Audio.Backend {
	case config.AudioBackendFFmpeg:
		capture = audio.NewFFMPEGCapture(cfg.Audio.FFmpegCommand)
	default:
		malgoCapture := audio.NewMalgoCapture(cfg.Audio.QueueDepth)
		capture, devices = malgoCapture, malgoCapture
	}

	var sessionLog ports.SessionLog
	var sessionJournal *journal.Journal
	if cfg.Session.LogEnabled {
		sessionJournal, err = journal.Open(cfg.Session.LogDir)
		if err != nil {
			log.Warn().Err(err).Msg("session log disabled")
		} else {
			sessionLog = sessionJournal
		}
	}

	var notifier ports.Notifier = notify.Discard{}
	if cfg.UI.Notifications {
		notifier = notify.NewDesktop("")
	}

	recorder := metrics.NewRecorder()

	controller := usecase.NewSessionController(
		capture,
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}),
		claude.NewGenerator(claude.Config{
			APIKey:       cfg.Anthropic.APIKey,
			BaseURL:      cfg.Anthropic.BaseURL,
			Model:        cfg.Anthropic.Model,
			MaxTokens:    int64(cfg.Anthropic.MaxTokens),
			SystemPrompt: systemPrompt,
		}),
		terms,
		sessionLog,
		recorder,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:   cfg.Audio.SampleRate,
				Channels:     cfg.Audio.Channels,
				ChunkSamples: cfg.Audio.ChunkSamples(),
				InputFormat:  cfg.Audio.InputFormat,
				InputDevice:  cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			StreamingGrace: cfg.Session.StreamingGrace,
		},
	)

	log.Info().
		Str("audio_backend", cfg.Audio.Backend).
		Int("glossary_terms", terms.Len()).
		Bool("session_log", sessionLog != nil).
		Strs("env_files", cfg.EnvFiles).
		Msg("services ready")

	return Services{
		Controller: controller,
		Config:     cfg,
		Devices:    devices,
		Notifier:   notifier,
		Metrics:    recorder,
		Hotkeys:    hotkey.NewListener(),
		Hotkey:     combo,
		Journal:    sessionJournal,
	}, nil
}
