package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoBackend implements OutputBackend on top of miniaudio via malgo. It
// owns a malgo context and one playback device opened in pull mode with the
// bridge wired into the data callback.
type MalgoBackend struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	mutex  sync.Mutex
	closed bool
}

// NewMalgoBackend creates a backend with its own malgo context.
func NewMalgoBackend() (*MalgoBackend, error) {
	slog.Debug("initializing malgo context")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize malgo context", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStreamInitFailed, err)
	}

	slog.Debug("malgo context initialized")
	return &MalgoBackend{ctx: ctx}, nil
}

// Open configures a playback device for the requested stream without
// starting it. The negotiated format is always 32-bit float interleaved;
// malgo refuses the stream if the device cannot be driven that way.
func (mb *MalgoBackend) Open(cfg StreamConfig, bridge *Bridge) error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return ErrBackendClosed
	}
	if mb.device != nil {
		return fmt.Errorf("%w: stream already open", ErrStreamInitFailed)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = cfg.Channels
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if cfg.DeviceID != nil {
		id := *cfg.DeviceID
		deviceConfig.Playback.DeviceID = id.Pointer()
	}

	slog.Debug("opening malgo playback device",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"explicit_device", cfg.DeviceID != nil)

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			bridge.FillBytes(pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(mb.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		slog.Error("failed to initialize playback device",
			"sample_rate", cfg.SampleRate,
			"channels", cfg.Channels,
			"error", err)
		return fmt.Errorf("%w: %v", ErrStreamInitFailed, err)
	}

	mb.device = device
	slog.Info("malgo playback device opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels)
	return nil
}

// Start activates the opened device. The platform begins invoking the data
// callback on its own realtime thread.
func (mb *MalgoBackend) Start() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return ErrBackendClosed
	}
	if mb.device == nil {
		return fmt.Errorf("%w: no open stream", ErrStreamInitFailed)
	}

	if err := mb.device.Start(); err != nil {
		slog.Error("failed to start playback device", "error", err)
		return fmt.Errorf("%w: %v", ErrStreamInitFailed, err)
	}

	slog.Info("malgo playback started")
	return nil
}

// Stop halts the device. malgo blocks until the in-flight data callback has
// returned, so no invocation can occur after Stop returns.
func (mb *MalgoBackend) Stop() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.device == nil {
		return nil
	}

	if err := mb.device.Stop(); err != nil {
		slog.Error("failed to stop playback device", "error", err)
		return err
	}

	slog.Debug("malgo playback stopped")
	return nil
}

// Close releases the device and the malgo context. malgo requires both
// Uninit and Free on the context.
func (mb *MalgoBackend) Close() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		slog.Debug("malgo backend already closed")
		return nil
	}
	mb.closed = true

	if mb.device != nil {
		mb.device.Uninit()
		mb.device = nil
	}

	if mb.ctx != nil {
		if err := mb.ctx.Uninit(); err != nil {
			slog.Error("failed to uninitialize malgo context", "error", err)
			return err
		}
		mb.ctx.Free()
		mb.ctx = nil
	}

	slog.Debug("malgo backend closed")
	return nil
}
