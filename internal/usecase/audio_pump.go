package usecase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"stupidisco/internal/domain"
	"stupidisco/internal/ports"
)

const defaultChunkBytes = 3200

type faultReporter func(code domain.ErrorCode, err error)

// pumpAudioChunks forwards fixed-size chunks in capture order until the
// audio session ends. A short final chunk is forwarded as is.
func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	metrics ports.Metrics,
	report faultReporter,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = defaultChunkBytes
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				report(domain.ErrorCodeAudioStream, fmt.Errorf("failed to stream audio: %w", sendErr))
				return
			}
			metrics.AudioChunkSent(n)
		}
		if err != nil {
			if !isEndOfCapture(err) {
				report(domain.ErrorCodeAudioCapture, fmt.Errorf("audio capture error: %w", err))
			}
			return
		}
	}
}

func isEndOfCapture(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed)
}

// consumeTranscriptionEvents relays provider events in arrival order and
// reports the stream's terminal error, if any.
func consumeTranscriptionEvents(
	session ports.StreamingSession,
	relay func(domain.TranscriptEvent),
	report faultReporter,
	done chan struct{},
) {
	defer close(done)

	for event := range session.Events() {
		relay(event)
	}
	if err := session.Wait(); err != nil {
		report(domain.ErrorCodeTranscription, err)
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
