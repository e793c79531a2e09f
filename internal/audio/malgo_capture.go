package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"stupidisco/internal/domain"
	"stupidisco/internal/logging"
	"stupidisco/internal/ports"
)

// MalgoCapture records from an input device through miniaudio.
type MalgoCapture struct {
	queueDepth int
	log        zerolog.Logger
}

func NewMalgoCapture(queueDepth int) *MalgoCapture {
	return &MalgoCapture{queueDepth: queueDepth, log: logging.For("audio")}
}

func (c *MalgoCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkSamples <= 0 {
		cfg.ChunkSamples = cfg.SampleRate / 10
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.ChunkSamples)

	var selected *malgo.DeviceInfo
	if name := strings.TrimSpace(cfg.InputDevice); name != "" && name != "default" {
		selected, err = findCaptureDevice(mctx, name)
		if err != nil {
			releaseContext(mctx)
			return nil, err
		}
		deviceConfig.Capture.DeviceID = selected.ID.Pointer()
	}

	queue := newPCMQueue(c.queueDepth)
	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			queue.push(input)
		},
	})
	if err != nil {
		releaseContext(mctx)
		return nil, fmt.Errorf("failed to open input device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		releaseContext(mctx)
		return nil, fmt.Errorf("failed to start input device: %w", err)
	}

	c.log.Debug().
		Str("device", cfg.InputDevice).
		Int("sample_rate", cfg.SampleRate).
		Int("chunk_samples", cfg.ChunkSamples).
		Msg("capture started")

	session := &malgoSession{
		queue:    queue,
		device:   device,
		ctx:      mctx,
		selected: selected,
		log:      c.log,
	}
	go func() {
		<-ctx.Done()
		_ = session.Stop()
	}()
	return session, nil
}

// InputDevices lists capture devices known to the audio backend.
func (c *MalgoCapture) InputDevices() ([]domain.InputDevice, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise audio context: %w", err)
	}
	defer releaseContext(mctx)

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	devices := make([]domain.InputDevice, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, domain.InputDevice{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}

func findCaptureDevice(mctx *malgo.AllocatedContext, want string) (*malgo.DeviceInfo, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}
	for i := range infos {
		if infos[i].ID.String() == want || strings.EqualFold(infos[i].Name(), want) {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", want)
}

func releaseContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}

type malgoSession struct {
	queue  *pcmQueue
	device *malgo.Device
	ctx    *malgo.AllocatedContext
	// Keeps the device id memory alive while the device runs.
	selected *malgo.DeviceInfo
	log      zerolog.Logger

	stopOnce sync.Once
	stopErr  error
}

func (s *malgoSession) Read(p []byte) (int, error) {
	return s.queue.Read(p)
}

func (s *malgoSession) Close() error {
	return s.Stop()
}

// Stop halts the device. Buffers already queued remain readable.
func (s *malgoSession) Stop() error {
	s.stopOnce.Do(func() {
		if err := s.device.Stop(); err != nil {
			s.stopErr = errors.Join(s.stopErr, fmt.Errorf("failed to stop input device: %w", err))
		}
		s.device.Uninit()
		releaseContext(s.ctx)
		s.selected = nil
		s.queue.close()

		if dropped := s.queue.droppedChunks(); dropped > 0 {
			s.log.Warn().Int64("dropped_chunks", dropped).Msg("audio reader fell behind")
		}
	})
	return s.stopErr
}
