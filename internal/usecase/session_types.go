package usecase

import (
	"time"

	"stupidisco/internal/domain"
	"stupidisco/internal/ports"
)

// activeSession is one Recording→Thinking cycle. Its fields are owned by
// the controller loop; the goroutines it spawns only touch the channels.
type activeSession struct {
	id     string
	cancel func()
	audio  ports.AudioSession
	stream ports.StreamingSession

	stopRequested bool
	draining      bool
	faulted       bool

	eventsDone chan struct{}
	audioDone  chan struct{}
}

func newActiveSession(id string, cancel func()) *activeSession {
	return &activeSession{
		id:         id,
		cancel:     cancel,
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}
}

func (s *activeSession) opened() bool {
	return s.stream != nil && s.audio != nil
}

// teardown releases every resource without waiting for trailing events.
func (s *activeSession) teardown() {
	s.cancel()
	if s.audio != nil {
		_ = s.audio.Stop()
	}
	if s.stream != nil {
		_ = s.stream.Close()
	}
}

type activeGeneration struct {
	id        string
	question  string
	cancel    func()
	startedAt time.Time
	firstAt   time.Time
}

type commandKind int

const (
	commandStart commandKind = iota
	commandStop
	commandToggle
	commandAbort
	commandRegenerate
	commandSelectDevice
)

// Loop messages. Commands carry a reply channel; everything else is posted
// by the session goroutines.
type (
	command struct {
		kind   commandKind
		device string
		reply  chan error
	}

	sessionOpened struct {
		session *activeSession
		audio   ports.AudioSession
		stream  ports.StreamingSession
		code    domain.ErrorCode
		err     error
	}

	transcriptReceived struct {
		session *activeSession
		event   domain.TranscriptEvent
	}

	sessionFault struct {
		session *activeSession
		code    domain.ErrorCode
		err     error
	}

	sessionDrained struct {
		session   *activeSession
		audioErr  error
		streamErr error
	}

	answerReceived struct {
		generation *activeGeneration
		update     domain.AnswerUpdate
	}
)
