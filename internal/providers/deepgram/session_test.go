package deepgram

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

func TestSessionSendAudioClosed(t *testing.T) {
	t.Parallel()

	s := &session{outbox: make(chan []byte, 1), sendDone: make(chan struct{})}
	_ = s.CloseSend()
	if err := s.SendAudio([]byte("x")); !errors.Is(err, errSendClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestSessionCloseSendIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &session{outbox: make(chan []byte, 1), sendDone: make(chan struct{})}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected second error: %v", err)
	}
}

func TestFirstErrorIgnoresCloseFrames(t *testing.T) {
	t.Parallel()

	var f firstError
	f.record(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if f.get() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	f.record(errors.New("boom"))
	if f.get() == nil || f.get().Error() != "boom" {
		t.Fatalf("expected non-close error to be captured")
	}
}

func TestFirstErrorKeepsFirst(t *testing.T) {
	t.Parallel()

	var f firstError
	f.record(errors.New("first"))
	f.record(errors.New("second"))
	if f.get() == nil || f.get().Error() != "first" {
		t.Fatalf("expected first error to win")
	}
}

func TestFirstErrorMutedAfterLocalClose(t *testing.T) {
	t.Parallel()

	var f firstError
	f.mute()
	f.record(errors.New("use of closed network connection"))
	if f.get() != nil {
		t.Fatalf("expected errors after a local close to be ignored")
	}
}

func TestFirstErrorIgnoresWrappedCloseFrames(t *testing.T) {
	t.Parallel()

	var f firstError
	f.record(fmt.Errorf("failed to read provider event: %w", &websocket.CloseError{Code: websocket.CloseGoingAway}))
	if f.get() != nil {
		t.Fatalf("expected wrapped close frame to be ignored, got %v", f.get())
	}

	f.record(fmt.Errorf("failed to read provider event: %w", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	if f.get() == nil {
		t.Fatalf("expected abnormal closure to be captured")
	}
}

func TestSessionSendAudioRacingClose(t *testing.T) {
	t.Parallel()

	chunk := make([]byte, 320)
	for i := 0; i < 500; i++ {
		s := &session{
			outbox:   make(chan []byte, 1),
			sendDone: make(chan struct{}),
			finished: make(chan struct{}),
		}

		var wg sync.WaitGroup
		wg.Add(3)
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				for k := 0; k < 4; k++ {
					if err := s.SendAudio(chunk); err != nil && !errors.Is(err, errSendClosed) {
						t.Errorf("unexpected send error: %v", err)
						return
					}
				}
			}()
		}
		go func() {
			defer wg.Done()
			_ = s.CloseSend()
		}()

		// Nobody drains outbox, so a sender may only be released by CloseSend.
		wg.Wait()
	}
}
