package deepgram

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"stupidisco/internal/domain"
)

var errSendClosed = errors.New("audio stream is already closed")

const writeTimeout = 5 * time.Second

// session is one /listen connection. The writer owns outgoing frames, the
// reader owns incoming ones; both stop before events is closed. outbox is
// never closed so senders cannot race the end of the stream.
type session struct {
	conn *websocket.Conn

	events   chan domain.TranscriptEvent
	outbox   chan []byte
	sendDone chan struct{}
	finished chan struct{}
	quit     chan struct{}
	readDone chan struct{}
	loops    sync.WaitGroup

	failure firstError

	sendOnce  sync.Once
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn) *session {
	s := &session{
		conn:     conn,
		events:   make(chan domain.TranscriptEvent, 64),
		outbox:   make(chan []byte, 32),
		sendDone: make(chan struct{}),
		finished: make(chan struct{}),
		quit:     make(chan struct{}),
		readDone: make(chan struct{}),
	}

	s.loops.Add(2)
	go s.read()
	go s.write()
	go func() {
		s.loops.Wait()
		close(s.events)
		close(s.finished)
		_ = conn.Close()
	}()
	return s
}

func (s *session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case <-s.sendDone:
		return errSendClosed
	default:
	}

	select {
	case s.outbox <- append([]byte(nil), chunk...):
		return nil
	case <-s.sendDone:
		return errSendClosed
	case <-s.finished:
		if err := s.failure.get(); err != nil {
			return err
		}
		return errors.New("deepgram session closed")
	}
}

// CloseSend flushes queued audio and then asks Deepgram to finalize.
func (s *session) CloseSend() error {
	s.sendOnce.Do(func() { close(s.sendDone) })
	return nil
}

func (s *session) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *session) Wait() error {
	<-s.finished
	return s.failure.get()
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.failure.mute()
		close(s.quit)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	return s.Wait()
}

func (s *session) write() {
	defer s.loops.Done()

	for {
		select {
		case chunk := <-s.outbox:
			if !s.send(websocket.BinaryMessage, chunk, "failed to send audio") {
				return
			}
		case <-s.sendDone:
			s.flush()
			return
		case <-s.readDone:
			return
		case <-s.quit:
			return
		}
	}
}

// flush writes audio still queued at CloseSend, then CloseStream.
func (s *session) flush() {
	for {
		select {
		case chunk := <-s.outbox:
			if !s.send(websocket.BinaryMessage, chunk, "failed to send audio") {
				return
			}
		case <-s.quit:
			return
		default:
			s.send(websocket.TextMessage, closeStreamMessage, "failed to close stream")
			return
		}
	}
}

// send writes one frame with a deadline so a stalled socket cannot hold
// the writer forever.
func (s *session) send(kind int, payload []byte, what string) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(kind, payload); err != nil {
		s.failure.record(fmt.Errorf("%s: %w", what, err))
		_ = s.conn.Close()
		return false
	}
	return true
}

func (s *session) read() {
	defer s.loops.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.failure.record(fmt.Errorf("failed to read provider event: %w", err))
			// Unblocks a writer stuck on a dead connection.
			_ = s.conn.Close()
			return
		}

		msg, err := decodeMessage(payload)
		if err != nil {
			continue
		}
		if msg.isError() {
			s.failure.record(msg.failure())
			_ = s.conn.Close()
			return
		}
		if event, ok := msg.transcript(); ok {
			s.emit(event)
		}
	}
}

// emit waits for the consumer so no transcript is dropped.
func (s *session) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.quit:
	}
}

// firstError keeps the first reportable failure of a session. Normal
// close frames and anything after a local Close are not failures.
type firstError struct {
	mu    sync.Mutex
	err   error
	muted atomic.Bool
}

func (f *firstError) record(err error) {
	if err == nil || f.muted.Load() {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && websocket.IsCloseError(closeErr,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *firstError) mute() {
	f.muted.Store(true)
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
