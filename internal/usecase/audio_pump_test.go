package usecase

import (
	"errors"
	"sync"
	"testing"
	"time"

	"stupidisco/internal/domain"
)

func TestPumpAudioChunksForwardsInOrder(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("ab"), []byte("cd"), []byte("e")}}
	stream := newFakeStreamingSession()
	metrics := &countingMetrics{}
	done := make(chan struct{})

	go pumpAudioChunks(audio, stream, 256, metrics, failOnFault(t), done)
	<-done

	var got []byte
	for _, chunk := range stream.sent {
		got = append(got, chunk...)
	}
	if string(got) != "abcde" {
		t.Fatalf("expected audio in capture order, got %q", got)
	}
	if metrics.bytes != 5 {
		t.Fatalf("expected 5 bytes recorded, got %d", metrics.bytes)
	}
}

func TestPumpAudioChunksReportsSendError(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("abc")}}
	stream := &sendErrStream{err: errors.New("send failed")}
	faults := &faultRecorder{}
	done := make(chan struct{})

	go pumpAudioChunks(audio, stream, 256, noopMetrics{}, faults.report, done)
	<-done

	if codes := faults.snapshot(); len(codes) != 1 || codes[0] != domain.ErrorCodeAudioStream {
		t.Fatalf("expected audio stream fault, got %v", codes)
	}
}

func TestPumpAudioChunksReportsReadError(t *testing.T) {
	t.Parallel()

	audio := &errorAudioSession{err: errors.New("read failed")}
	faults := &faultRecorder{}
	done := make(chan struct{})

	go pumpAudioChunks(audio, &sendErrStream{}, 256, noopMetrics{}, faults.report, done)
	<-done

	if codes := faults.snapshot(); len(codes) != 1 || codes[0] != domain.ErrorCodeAudioCapture {
		t.Fatalf("expected audio capture fault, got %v", codes)
	}
}

func TestConsumeTranscriptionEventsReportsWaitError(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.waitErr = errors.New("socket closed")
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "eins"}
	_ = stream.CloseSend()

	var relayed []string
	faults := &faultRecorder{}
	done := make(chan struct{})
	go consumeTranscriptionEvents(stream, func(event domain.TranscriptEvent) {
		relayed = append(relayed, event.Text)
	}, faults.report, done)
	<-done

	if len(relayed) != 1 || relayed[0] != "eins" {
		t.Fatalf("unexpected relayed events: %q", relayed)
	}
	if codes := faults.snapshot(); len(codes) != 1 || codes[0] != domain.ErrorCodeTranscription {
		t.Fatalf("expected transcription fault, got %v", codes)
	}
}

func TestWaitForStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := &blockingWaitStream{done: make(chan struct{}), waitErr: errors.New("closed")}
	err := waitForStream(stream, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if stream.closeCalls == 0 {
		t.Fatalf("expected close to be called on timeout")
	}
}

func failOnFault(t *testing.T) faultReporter {
	return func(code domain.ErrorCode, err error) {
		t.Errorf("unexpected fault %s: %v", code, err)
	}
}

type faultRecorder struct {
	mu    sync.Mutex
	codes []domain.ErrorCode
}

func (f *faultRecorder) report(code domain.ErrorCode, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
}

func (f *faultRecorder) snapshot() []domain.ErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ErrorCode(nil), f.codes...)
}

type countingMetrics struct {
	noopMetrics
	bytes int
}

func (m *countingMetrics) AudioChunkSent(n int) { m.bytes += n }

type sendErrStream struct {
	err error
}

func (s *sendErrStream) SendAudio(_ []byte) error { return s.err }
func (s *sendErrStream) CloseSend() error         { return nil }
func (s *sendErrStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *sendErrStream) Wait() error  { return nil }
func (s *sendErrStream) Close() error { return nil }

type errorAudioSession struct {
	err error
}

func (s *errorAudioSession) Read(_ []byte) (int, error) { return 0, s.err }
func (s *errorAudioSession) Close() error               { return nil }
func (s *errorAudioSession) Stop() error                { return nil }

type blockingWaitStream struct {
	done       chan struct{}
	waitErr    error
	closeCalls int
}

func (s *blockingWaitStream) SendAudio(_ []byte) error { return nil }
func (s *blockingWaitStream) CloseSend() error         { return nil }
func (s *blockingWaitStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *blockingWaitStream) Wait() error {
	<-s.done
	return s.waitErr
}
func (s *blockingWaitStream) Close() error {
	s.closeCalls++
	close(s.done)
	return nil
}
