package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"stupidisco/internal/bootstrap"
	"stupidisco/internal/config"
	"stupidisco/internal/domain"
	"stupidisco/internal/logging"
	"stupidisco/internal/ports"
	"stupidisco/internal/usecase"
)

const (
	eventStatus     = "stupidisco:status"
	eventPartial    = "stupidisco:partial"
	eventFinal      = "stupidisco:final"
	eventAnswer     = "stupidisco:answer"
	eventAnswerDone = "stupidisco:answer-done"
	eventError      = "stupidisco:error"
)

type emitFunc func(ctx context.Context, name string, data ...interface{})

// App is the Wails application root. It owns the controller loop and
// forwards controller events to the frontend in order.
type App struct {
	ctx    context.Context
	runCtx context.Context
	cancel context.CancelFunc
	emit   emitFunc
	log    zerolog.Logger

	services   bootstrap.Services
	controller *usecase.SessionController
	clipboard  ports.Clipboard
	notifier   ports.Notifier
	cfg        config.Config
	bootErr    error

	wg sync.WaitGroup
}

func NewApp() *App {
	return &App{
		emit:      runtime.EventsEmit,
		clipboard: &wailsClipboard{},
		log:       logging.For("app"),
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load()
	if err != nil {
		a.fail(err)
		return
	}
	logging.Init(cfg.Telemetry.LogLevel, cfg.Telemetry.LogPretty)
	a.log = logging.For("app")
	a.cfg = cfg

	services, err := bootstrap.Build(cfg)
	if err != nil {
		a.fail(err)
		return
	}
	a.attach(ctx, services)

	if err := services.Metrics.Serve(a.runCtx, cfg.Telemetry.MetricsAddr); err != nil {
		a.log.Warn().Err(err).Msg("metrics listener unavailable")
	}
	if err := services.Hotkeys.Register(services.Hotkey, a.onHotkey); err != nil {
		a.log.Warn().Err(err).Str("hotkey", services.Hotkey.String()).Msg("could not register hotkey")
	}
}

// attach starts the controller loop and the event forwarder.
func (a *App) attach(ctx context.Context, services bootstrap.Services) {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCtx = runCtx
	a.cancel = cancel
	a.services = services
	a.controller = services.Controller
	a.notifier = services.Notifier

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.controller.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("controller stopped")
		}
	}()
	go func() {
		defer a.wg.Done()
		a.forward(a.controller.Events())
	}()
}

func (a *App) shutdown(_ context.Context) {
	if a.services.Hotkeys != nil {
		if err := a.services.Hotkeys.Unregister(); err != nil {
			a.log.Warn().Err(err).Msg("failed to release hotkey")
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *App) fail(err error) {
	a.bootErr = err
	a.log.Error().Err(err).Msg("startup failed")
	a.dispatch(domain.ErrorNotice(domain.ErrorCodeStartup, err.Error()))
}

func (a *App) onHotkey() {
	if _, err := a.Toggle(); err != nil {
		a.log.Warn().Err(err).Msg("hotkey toggle failed")
	}
}

// Toggle starts recording when idle and stops it when recording.
func (a *App) Toggle() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Toggle(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Start begins recording. Pressing start while busy is ignored.
func (a *App) Start() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx); err != nil && !errors.Is(err, usecase.ErrSessionActive) {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Stop ends recording and requests an answer.
func (a *App) Stop() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Stop(a.ctx); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Abort discards an in-progress recording.
func (a *App) Abort() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.Abort(a.ctx); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return err
	}
	return nil
}

// Regenerate asks for a fresh answer to the last question.
func (a *App) Regenerate() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Regenerate(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// CopyAnswer writes the completed answer to the clipboard.
func (a *App) CopyAnswer() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	text, final := a.controller.Answer()
	if !final || strings.TrimSpace(text) == "" {
		return errors.New("no completed answer to copy")
	}
	if err := a.clipboard.SetText(a.ctx, text); err != nil {
		a.dispatch(domain.ErrorNotice(domain.ErrorCodeClipboard, err.Error()))
		return err
	}
	return nil
}

// ListInputDevices returns the capture devices the audio backend can open.
func (a *App) ListInputDevices() ([]domain.InputDevice, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	if a.services.Devices == nil {
		return nil, fmt.Errorf("audio backend %q cannot list devices", a.cfg.Audio.Backend)
	}
	return a.services.Devices.InputDevices()
}

// SelectInputDevice sets the device used by the next recording.
func (a *App) SelectInputDevice(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SelectInputDevice(a.ctx, id)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{State: domain.SessionStateIdle}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	info := map[string]string{
		"transcriber":  "Deepgram",
		"sttModel":     a.cfg.Deepgram.Model,
		"language":     a.cfg.Deepgram.Language,
		"answerModel":  a.cfg.Anthropic.Model,
		"audioBackend": a.cfg.Audio.Backend,
		"audioInput":   a.cfg.Audio.InputDevice,
		"glossaryFile": a.cfg.Glossary.Path,
		"hotkey":       a.services.Hotkey.String(),
	}
	if a.services.Journal != nil {
		info["sessionLog"] = a.services.Journal.Path()
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) forward(events <-chan domain.Event) {
	for event := range events {
		a.dispatch(event)
	}
}

// dispatch maps one controller event onto its frontend event.
func (a *App) dispatch(event domain.Event) {
	if a.ctx == nil || a.emit == nil {
		return
	}

	switch event.Kind {
	case domain.EventStatusChanged:
		a.emit(a.ctx, eventStatus, map[string]interface{}{
			"state":         string(event.State),
			"reason":        string(event.Reason),
			"message":       sessionReasonMessage(event.Reason),
			"canRegenerate": event.CanRegenerate,
		})
	case domain.EventPartialTranscript:
		a.emit(a.ctx, eventPartial, map[string]string{"text": event.Text})
	case domain.EventFinalTranscript:
		a.emit(a.ctx, eventFinal, map[string]string{"text": event.Text})
	case domain.EventAnswerToken:
		a.emit(a.ctx, eventAnswer, map[string]string{"text": event.Text})
	case domain.EventAnswerDone:
		a.emit(a.ctx, eventAnswerDone, map[string]string{"text": event.Text})
	case domain.EventError:
		message := errorMessage(event.Code, event.Text)
		a.emit(a.ctx, eventError, map[string]string{
			"code":    string(event.Code),
			"message": message,
			"detail":  event.Text,
		})
		if a.notifier != nil {
			if err := a.notifier.Notify("stupidisco", message+": "+event.Text); err != nil {
				a.log.Debug().Err(err).Msg("desktop notification failed")
			}
		}
	default:
		a.log.Warn().Str("kind", string(event.Kind)).Msg("unknown controller event")
	}
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady, domain.SessionReasonAnswerReady:
		return "Ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording..."
	case domain.SessionReasonTranscribing:
		return "Transcribing..."
	case domain.SessionReasonGenerating:
		return "Thinking..."
	case domain.SessionReasonRegenerating:
		return "Regenerating..."
	case domain.SessionReasonNoSpeech:
		return "No speech detected. Try again."
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonCaptureFailed:
		return "Microphone unavailable"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.SessionReasonGenerationFailed:
		return "Answer failed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioCapture:
		return "Microphone error"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Deepgram"
	case domain.ErrorCodeGeneration:
		return "Claude"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeSessionLog:
		return "Session log write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
