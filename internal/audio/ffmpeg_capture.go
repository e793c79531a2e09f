package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stupidisco/internal/logging"
	"stupidisco/internal/ports"
)

const (
	ffmpegStartupWindow = 250 * time.Millisecond
	ffmpegStopTimeout  = 1200 * time.Millisecond
)

// FFMPEGCapture streams microphone PCM through an ffmpeg child process. It
// serves hosts where the native audio backend cannot open the microphone.
type FFMPEGCapture struct {
	command string
	log     zerolog.Logger
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, log: logging.For("audio")}
}

// DefaultInputFormat is the ffmpeg capture demuxer for the running OS.
func DefaultInputFormat() (format string, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// ffmpegArgs asks ffmpeg for raw s16le on stdout.
func ffmpegArgs(cfg ports.AudioConfig) []string {
	sampleRate, channels := cfg.SampleRate, cfg.Channels
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	format, device := DefaultInputFormat()
	if cfg.InputFormat != "" {
		format = cfg.InputFormat
	}
	if cfg.InputDevice != "" {
		device = cfg.InputDevice
	}

	return []string{
		"-nostdin", "-hide_banner",
		"-loglevel", "warning",
		"-f", format,
		"-i", device,
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-",
	}
}

// Start launches ffmpeg and fails if it exits during the startup window,
// which is how a missing device or demuxer shows up.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	args := ffmpegArgs(cfg)
	cmd := exec.CommandContext(ctx, c.command, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	select {
	case err := <-exited:
		detail := strings.TrimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("ffmpeg exited before capture started: %s", detail)
	case <-time.After(ffmpegStartupWindow):
	}

	c.log.Debug().Strs("args", args).Int("pid", cmd.Process.Pid).Msg("ffmpeg capture started")
	return &ffmpegSession{stdout: stdout, stderr: stderr, process: cmd.Process, exited: exited}, nil
}

type ffmpegSession struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	exited  <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg so it flushes, and kills it after ffmpegStopTimeout.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.process.Signal(os.Interrupt)

		var err error
		select {
		case err = <-s.exited:
		case <-time.After(ffmpegStopTimeout):
			_ = s.process.Kill()
			err = <-s.exited
		}
		err = normalizeStopErr(err)

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && err == nil {
			err = closeErr
		}
		if err != nil && s.stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(s.stderr.String()))
		}
		s.stopErr = err
	})
	return s.stopErr
}

// normalizeStopErr treats a non-zero exit as normal since ffmpeg exits
// that way when interrupted.
func normalizeStopErr(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
