package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stupidisco/internal/config"
)

func validConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Deepgram:  config.DeepgramConfig{APIKey: "dg", Model: "nova-3", Language: "de", SmartFormat: true},
		Anthropic: config.AnthropicConfig{APIKey: "an", MaxTokens: 600},
		Audio: config.AudioConfig{
			Backend:       config.AudioBackendFFmpeg,
			FFmpegCommand: "ffmpeg",
			SampleRate:    16000,
			Channels:      1,
			ChunkDuration: 100 * time.Millisecond,
		},
		Glossary: config.GlossaryConfig{Path: filepath.Join(dir, "glossary.yaml")},
		Session:  config.SessionConfig{StreamingGrace: time.Second, LogDir: filepath.Join(dir, "sessions"), LogEnabled: true},
		UI:       config.UIConfig{Hotkey: "Ctrl+Shift+R"},
	}
}

func TestBuildSuccess(t *testing.T) {
	t.Parallel()

	services, err := Build(validConfig(t))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Metrics == nil || services.Notifier == nil || services.Hotkeys == nil {
		t.Fatalf("expected a complete graph: %+v", services)
	}
	if services.Journal == nil {
		t.Fatalf("expected session journal")
	}
	if services.Devices != nil {
		t.Fatalf("ffmpeg backend does not enumerate devices")
	}
	if services.Hotkey.String() == "" {
		t.Fatalf("expected parsed hotkey")
	}
}

func TestBuildRequiresKeys(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Deepgram.APIKey = ""
	cfg.Anthropic.APIKey = ""

	_, err := Build(cfg)
	if err == nil {
		t.Fatalf("expected missing key error")
	}
	if !strings.Contains(err.Error(), "DEEPGRAM_API_KEY") || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Fatalf("expected both keys reported, got %v", err)
	}
}

func TestBuildFailsOnInvalidGlossary(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	if err := os.WriteFile(cfg.Glossary.Path, []byte("terms:\n  - to: nothing\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected build error due to invalid glossary")
	}
}

func TestBuildFailsOnInvalidHotkey(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.UI.Hotkey = "Shift"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected hotkey error")
	}
}

func TestBuildReadsSystemPrompt(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Anthropic.SystemPromptFile = filepath.Join(t.TempDir(), "missing.txt")
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected missing prompt file error")
	}
}
