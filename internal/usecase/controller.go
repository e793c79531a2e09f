package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stupidisco/internal/domain"
	"stupidisco/internal/logging"
	"stupidisco/internal/ports"
)

var (
	ErrNoActiveSession       = errors.New("no active recording session")
	ErrSessionActive         = errors.New("a recording or answer is already in progress")
	ErrRegenerateUnavailable = errors.New("no completed answer to regenerate")
	ErrControllerStopped     = errors.New("session controller is not running")

	errDrainStalled = errors.New("transcription stalled while finishing")
)

const defaultStreamingGrace = time.Second

// Config controls recording and answer behavior.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	StreamingGrace time.Duration
	EventBuffer    int
}

// SessionController orchestrates recording, transcription and answer
// generation. All state lives on the goroutine running Run; the exported
// methods post commands to it and return without waiting for I/O.
type SessionController struct {
	audio     ports.AudioCapture
	provider  ports.TranscriptionProvider
	generator ports.AnswerGenerator
	finalizer answerFinalizer
	metrics   ports.Metrics
	cfg       Config
	log       zerolog.Logger

	inbox   chan any
	events  chan domain.Event
	done    chan struct{}
	runOnce sync.Once

	statusMu sync.Mutex
	status   domain.Status

	// Owned by the loop.
	state        domain.SessionState
	reason       domain.SessionStateReason
	transcript   domain.Transcript
	answer       domain.Answer
	lastQuestion string
	current      *activeSession
	generation   *activeGeneration
	stoppedAt    time.Time
}

func NewSessionController(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	generator ports.AnswerGenerator,
	rewriter ports.TranscriptRewriter,
	sessionLog ports.SessionLog,
	metrics ports.Metrics,
	cfg Config,
) *SessionController {
	if cfg.Audio.ChunkSamples <= 0 {
		cfg.Audio.ChunkSamples = 1600
	}
	if cfg.StreamingGrace <= 0 {
		cfg.StreamingGrace = defaultStreamingGrace
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	log := logging.For("controller")

	return &SessionController{
		audio:     audio,
		provider:  provider,
		generator: generator,
		finalizer: newAnswerFinalizer(rewriter, sessionLog, log),
		metrics:   metrics,
		cfg:       cfg,
		log:       log,
		inbox:     make(chan any, 64),
		events:    make(chan domain.Event, cfg.EventBuffer),
		done:      make(chan struct{}),
		state:     domain.SessionStateIdle,
		status:    domain.Status{State: domain.SessionStateIdle},
	}
}

// Events returns the ordered stream of updates for the display layer. It is
// closed when Run returns.
func (c *SessionController) Events() <-chan domain.Event {
	return c.events
}

// Run processes commands and session events until ctx is cancelled.
func (c *SessionController) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("session controller is already running")
	}
	defer close(c.events)
	defer close(c.done)

	c.publish(ctx, domain.StatusChanged(domain.SessionStateIdle, domain.SessionReasonReady))
	c.syncStatus()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case msg := <-c.inbox:
			c.handle(ctx, msg)
			c.syncStatus()
		}
	}
}

// Start begins a new recording. It is a no-op returning ErrSessionActive
// unless the controller is idle.
func (c *SessionController) Start(ctx context.Context) error {
	return c.command(ctx, command{kind: commandStart})
}

// Stop ends the recording; the transcript is answered asynchronously.
func (c *SessionController) Stop(ctx context.Context) error {
	return c.command(ctx, command{kind: commandStop})
}

// Toggle starts when idle and stops when recording.
func (c *SessionController) Toggle(ctx context.Context) error {
	return c.command(ctx, command{kind: commandToggle})
}

// Abort discards an in-progress recording without generating an answer.
func (c *SessionController) Abort(ctx context.Context) error {
	return c.command(ctx, command{kind: commandAbort})
}

// Regenerate asks for a new answer to the last transcript.
func (c *SessionController) Regenerate(ctx context.Context) error {
	return c.command(ctx, command{kind: commandRegenerate})
}

// SelectInputDevice sets the capture device used by the next recording.
func (c *SessionController) SelectInputDevice(ctx context.Context, device string) error {
	return c.command(ctx, command{kind: commandSelectDevice, device: device})
}

// Status returns the last published status snapshot.
func (c *SessionController) Status() domain.Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// Answer returns the current answer text and whether it completed.
func (c *SessionController) Answer() (string, bool) {
	status := c.Status()
	return status.Answer, status.AnswerFinal
}

func (c *SessionController) command(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.inbox <- cmd:
	case <-c.done:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands a message from a worker goroutine to the loop.
func (c *SessionController) post(msg any) {
	select {
	case c.inbox <- msg:
	case <-c.done:
	}
}

func (c *SessionController) publish(ctx context.Context, event domain.Event) {
	if event.Kind == domain.EventStatusChanged {
		c.reason = event.Reason
		event.CanRegenerate = c.canRegenerate()
	}
	c.syncStatus()
	select {
	case c.events <- event:
	case <-ctx.Done():
	}
}

func (c *SessionController) handle(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case command:
		m.reply <- c.handleCommand(ctx, m)
	case sessionOpened:
		c.handleSessionOpened(ctx, m)
	case transcriptReceived:
		c.handleTranscript(ctx, m)
	case sessionFault:
		c.handleFault(ctx, m)
	case sessionDrained:
		c.handleDrained(ctx, m)
	case answerReceived:
		c.handleAnswer(ctx, m)
	default:
		c.log.Warn().Str("type", fmt.Sprintf("%T", msg)).Msg("unknown loop message")
	}
}

func (c *SessionController) handleCommand(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case commandStart:
		return c.startRecording(ctx)
	case commandStop:
		return c.stopRecording(ctx)
	case commandToggle:
		switch c.state {
		case domain.SessionStateIdle:
			return c.startRecording(ctx)
		case domain.SessionStateRecording:
			return c.stopRecording(ctx)
		default:
			return nil
		}
	case commandAbort:
		return c.abortRecording(ctx)
	case commandRegenerate:
		return c.regenerate(ctx)
	case commandSelectDevice:
		c.cfg.Audio.InputDevice = cmd.device
		c.log.Info().Str("device", cmd.device).Msg("input device selected")
		return nil
	default:
		return fmt.Errorf("unknown command %d", cmd.kind)
	}
}

func (c *SessionController) startRecording(ctx context.Context) error {
	if c.state != domain.SessionStateIdle {
		return ErrSessionActive
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	active := newActiveSession(uuid.NewString(), cancel)
	c.current = active
	c.transcript.Reset()
	c.state = domain.SessionStateRecording
	c.metrics.RecordingStarted()

	c.log.Info().Str("session_id", active.id).Str("device", c.cfg.Audio.InputDevice).Msg("recording started")
	c.publish(ctx, domain.StatusChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted))

	go c.openSession(sessionCtx, active, c.cfg.Audio, c.cfg.Streaming)
	return nil
}

func (c *SessionController) openSession(ctx context.Context, active *activeSession, audioCfg ports.AudioConfig, streamCfg ports.StreamingConfig) {
	stream, err := c.provider.StartStreaming(ctx, streamCfg)
	if err != nil {
		c.post(sessionOpened{session: active, code: domain.ErrorCodeTranscription, err: err})
		return
	}

	audioSession, err := c.audio.Start(ctx, audioCfg)
	if err != nil {
		_ = stream.Close()
		c.post(sessionOpened{session: active, code: domain.ErrorCodeAudioCapture, err: err})
		return
	}

	c.post(sessionOpened{session: active, audio: audioSession, stream: stream})
}

func (c *SessionController) handleSessionOpened(ctx context.Context, m sessionOpened) {
	active := m.session
	if c.current != active {
		// Aborted before the connection was ready.
		if m.audio != nil {
			_ = m.audio.Stop()
		}
		if m.stream != nil {
			_ = m.stream.Close()
		}
		return
	}

	if m.err != nil {
		active.cancel()
		c.current = nil
		c.log.Error().Err(m.err).Str("session_id", active.id).Str("code", string(m.code)).Msg("failed to open recording session")
		c.metrics.RecordingFinished("failed", 0)

		reason := domain.SessionReasonCaptureFailed
		if m.code == domain.ErrorCodeTranscription {
			reason = domain.SessionReasonTranscriptionFailed
		}
		c.publish(ctx, domain.ErrorNotice(m.code, m.err.Error()))
		c.finish(ctx, reason)
		return
	}

	active.audio = m.audio
	active.stream = m.stream

	report := func(code domain.ErrorCode, err error) {
		c.post(sessionFault{session: active, code: code, err: err})
	}
	relay := func(event domain.TranscriptEvent) {
		c.post(transcriptReceived{session: active, event: event})
	}
	go consumeTranscriptionEvents(active.stream, relay, report, active.eventsDone)
	go pumpAudioChunks(active.audio, active.stream, c.cfg.Audio.ChunkBytes(), c.metrics, report, active.audioDone)

	if active.stopRequested {
		c.beginDrain(active)
	}
}

func (c *SessionController) handleTranscript(ctx context.Context, m transcriptReceived) {
	if c.current != m.session {
		return
	}

	switch m.event.Kind {
	case domain.TranscriptKindFinal:
		c.transcript.Finalize(m.event.Text)
		c.publish(ctx, domain.FinalTranscript(c.transcript.Confirmed()))
	default:
		c.transcript.SetPartial(m.event.Text)
		c.publish(ctx, domain.PartialTranscript(c.transcript.Display()))
	}
}

func (c *SessionController) handleFault(ctx context.Context, m sessionFault) {
	active := m.session
	if c.current != active {
		return
	}

	logEvent := c.log.Warn().Err(m.err).Str("session_id", active.id).Str("code", string(m.code))
	if active.draining && m.code != domain.ErrorCodeTranscription {
		logEvent.Msg("ignoring audio fault during teardown")
		return
	}
	if m.code == domain.ErrorCodeAudioCapture {
		// A lost microphone ends the attempt; a partial transcript is not
		// answered. Stream send failures are connection drops and wait for Stop.
		c.current = nil
		go active.teardown()
		logEvent.Msg("recording ended by audio fault")
		c.metrics.RecordingFinished("failed", c.transcript.Segments())
		if !active.faulted {
			c.publish(ctx, domain.ErrorNotice(m.code, m.err.Error()))
		}
		c.finish(ctx, domain.SessionReasonCaptureFailed)
		return
	}
	if active.faulted {
		logEvent.Msg("additional session fault")
		return
	}
	active.faulted = true
	logEvent.Msg("session fault")
	c.publish(ctx, domain.ErrorNotice(m.code, m.err.Error()))
}

func (c *SessionController) stopRecording(ctx context.Context) error {
	active := c.current
	if c.state != domain.SessionStateRecording || active == nil {
		return ErrNoActiveSession
	}

	c.state = domain.SessionStateThinking
	c.stoppedAt = time.Now()
	c.publish(ctx, domain.StatusChanged(domain.SessionStateThinking, domain.SessionReasonTranscribing))

	if !active.opened() {
		active.stopRequested = true
		return nil
	}
	c.beginDrain(active)
	return nil
}

// beginDrain stops capture, signals end-of-stream and waits, off the loop,
// for trailing transcript events before reporting back. The whole drain is
// bounded by StreamingGrace; a pump stuck in SendAudio is released by
// closing the stream.
func (c *SessionController) beginDrain(active *activeSession) {
	active.draining = true
	deadline := time.Now().Add(c.cfg.StreamingGrace)

	go func() {
		expired := time.NewTimer(time.Until(deadline))
		defer expired.Stop()

		audioErr := active.audio.Stop()
		var streamErr error
		select {
		case <-active.audioDone:
			_ = active.stream.CloseSend()
			streamErr = waitForStream(active.stream, time.Until(deadline))
		case <-expired.C:
			streamErr = active.stream.Close()
			if streamErr == nil {
				streamErr = errDrainStalled
			}
			<-active.audioDone
		}
		<-active.eventsDone
		c.post(sessionDrained{session: active, audioErr: audioErr, streamErr: streamErr})
	}()
}

func (c *SessionController) handleDrained(ctx context.Context, m sessionDrained) {
	active := m.session
	if c.current != active {
		return
	}
	c.current = nil
	active.cancel()

	logger := c.log.With().Str("session_id", active.id).Logger()
	if m.audioErr != nil {
		logger.Warn().Err(m.audioErr).Msg("audio capture did not stop cleanly")
	}

	question := c.transcript.Confirmed()
	if question == "" {
		if m.streamErr != nil || active.faulted {
			if !active.faulted {
				c.publish(ctx, domain.ErrorNotice(domain.ErrorCodeTranscription, m.streamErr.Error()))
			}
			logger.Warn().Err(m.streamErr).Msg("transcription failed without text")
			c.metrics.RecordingFinished("failed", 0)
			c.finish(ctx, domain.SessionReasonTranscriptionFailed)
			return
		}
		logger.Info().Msg("no speech detected")
		c.metrics.RecordingFinished("no_speech", 0)
		c.finish(ctx, domain.SessionReasonNoSpeech)
		return
	}

	logger.Info().Int("segments", c.transcript.Segments()).Int("chars", len(question)).Msg("transcript ready")
	c.metrics.RecordingFinished("transcribed", c.transcript.Segments())
	c.lastQuestion = question
	c.publish(ctx, domain.FinalTranscript(question))
	c.startGeneration(ctx, question, domain.SessionReasonGenerating, c.stoppedAt)
}

func (c *SessionController) abortRecording(ctx context.Context) error {
	active := c.current
	if c.state != domain.SessionStateRecording || active == nil {
		return ErrNoActiveSession
	}
	c.current = nil
	c.log.Info().Str("session_id", active.id).Msg("recording discarded")
	c.metrics.RecordingFinished("discarded", 0)

	go active.teardown()
	c.finish(ctx, domain.SessionReasonRecordingDiscarded)
	return nil
}

func (c *SessionController) regenerate(ctx context.Context) error {
	if c.state != domain.SessionStateIdle || c.lastQuestion == "" || !c.answer.Final {
		return ErrRegenerateUnavailable
	}
	c.startGeneration(ctx, c.lastQuestion, domain.SessionReasonRegenerating, time.Now())
	return nil
}

func (c *SessionController) startGeneration(ctx context.Context, question string, reason domain.SessionStateReason, since time.Time) {
	genCtx, cancel := context.WithCancel(ctx)
	generation := &activeGeneration{
		id:        uuid.NewString(),
		question:  question,
		cancel:    cancel,
		startedAt: since,
	}
	c.generation = generation
	c.answer.Reset()
	c.state = domain.SessionStateThinking

	c.publish(ctx, domain.AnswerToken(""))
	c.publish(ctx, domain.StatusChanged(domain.SessionStateThinking, reason))

	go c.runGeneration(genCtx, generation)
}

func (c *SessionController) runGeneration(ctx context.Context, generation *activeGeneration) {
	stream, err := c.generator.Generate(ctx, c.finalizer.Prompt(generation.question))
	if err != nil {
		c.post(answerReceived{generation: generation, update: domain.AnswerUpdate{Err: err}})
		return
	}

	terminal := false
	for update := range stream.Updates() {
		c.post(answerReceived{generation: generation, update: update})
		if update.Done || update.Err != nil {
			terminal = true
			break
		}
	}
	if !terminal {
		c.post(answerReceived{generation: generation, update: domain.AnswerUpdate{Err: errors.New("answer stream ended unexpectedly")}})
	}
}

func (c *SessionController) handleAnswer(ctx context.Context, m answerReceived) {
	generation := m.generation
	if c.generation != generation {
		return
	}
	update := m.update
	logger := c.log.With().Str("generation_id", generation.id).Logger()

	switch {
	case update.Err != nil:
		c.generation = nil
		generation.cancel()
		c.answer.Final = false
		c.metrics.AnswerFinished("failed", firstTokenLatency(generation), time.Since(generation.startedAt))
		logger.Error().Err(update.Err).Msg("answer generation failed")
		c.publish(ctx, domain.ErrorNotice(domain.ErrorCodeGeneration, update.Err.Error()))
		c.finish(ctx, domain.SessionReasonGenerationFailed)

	case update.Done:
		c.generation = nil
		generation.cancel()
		if update.Text != "" {
			c.answer.Text = update.Text
		}
		c.answer.Final = true
		total := time.Since(generation.startedAt)
		c.metrics.AnswerFinished("completed", firstTokenLatency(generation), total)
		logger.Info().Dur("total_latency", total).Int("chars", len(c.answer.Text)).Msg("answer complete")

		c.publish(ctx, domain.AnswerDone(c.answer.Text))
		if err := c.finalizer.Record(generation.question, c.answer.Text); err != nil {
			logger.Warn().Err(err).Msg("failed to append session log")
			c.publish(ctx, domain.ErrorNotice(domain.ErrorCodeSessionLog, err.Error()))
		}
		c.finish(ctx, domain.SessionReasonAnswerReady)

	default:
		if generation.firstAt.IsZero() && update.Text != "" {
			generation.firstAt = time.Now()
			logger.Info().Dur("first_token_latency", generation.firstAt.Sub(generation.startedAt)).Msg("first answer chunk")
		}
		c.answer.Text = update.Text
		c.publish(ctx, domain.AnswerToken(update.Text))
	}
}

func firstTokenLatency(generation *activeGeneration) time.Duration {
	if generation.firstAt.IsZero() {
		return 0
	}
	return generation.firstAt.Sub(generation.startedAt)
}

// finish returns to idle and announces why.
func (c *SessionController) finish(ctx context.Context, reason domain.SessionStateReason) {
	c.state = domain.SessionStateIdle
	c.publish(ctx, domain.StatusChanged(domain.SessionStateIdle, reason))
}

func (c *SessionController) shutdown() {
	if c.current != nil {
		c.current.teardown()
		c.current = nil
	}
	if c.generation != nil {
		c.generation.cancel()
		c.generation = nil
	}
	c.state = domain.SessionStateIdle
	c.syncStatus()
}

func (c *SessionController) syncStatus() {
	status := domain.Status{
		State:         c.state,
		Active:        c.state != domain.SessionStateIdle,
		Message:       string(c.reason),
		Transcript:    c.transcript.Display(),
		Answer:        c.answer.Text,
		AnswerFinal:   c.answer.Final,
		CanRegenerate: c.canRegenerate(),
	}

	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()
}

func (c *SessionController) canRegenerate() bool {
	return c.state == domain.SessionStateIdle && c.lastQuestion != "" && c.answer.Final
}

type noopMetrics struct{}

func (noopMetrics) RecordingStarted()                                   {}
func (noopMetrics) RecordingFinished(string, int)                       {}
func (noopMetrics) AnswerFinished(string, time.Duration, time.Duration) {}
func (noopMetrics) AudioChunkSent(int)                                  {}
