package ports

import (
	"context"
	"io"
	"time"

	"stupidisco/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate   int
	Channels     int
	ChunkSamples int
	InputFormat  string
	InputDevice  string
}

// ChunkBytes is the size of one s16le chunk.
func (c AudioConfig) ChunkBytes() int {
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	return c.ChunkSamples * channels * 2
}

// AudioSession is a live capture session producing s16le PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// DeviceLister enumerates capture-capable input devices.
type DeviceLister interface {
	InputDevices() ([]domain.InputDevice, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active speech-to-text connection.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// AnswerStream delivers the accumulated answer of one generation. The
// channel is closed after a Done or Err update.
type AnswerStream interface {
	Updates() <-chan domain.AnswerUpdate
}

// AnswerGenerator issues one streaming generation request per call.
type AnswerGenerator interface {
	Generate(ctx context.Context, transcript string) (AnswerStream, error)
}

// TranscriptRewriter corrects transcript text before it is sent for an answer.
type TranscriptRewriter interface {
	Apply(text string) (string, error)
}

// SessionLog persists question/answer pairs.
type SessionLog interface {
	Append(question string, answer string) error
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Notifier shows transient desktop notifications.
type Notifier interface {
	Notify(title string, message string) error
}

// Metrics records pipeline outcomes.
type Metrics interface {
	RecordingStarted()
	RecordingFinished(outcome string, segments int)
	AnswerFinished(outcome string, firstToken time.Duration, total time.Duration)
	AudioChunkSent(bytes int)
}
