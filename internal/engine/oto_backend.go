package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoBackend implements OutputBackend on the oto player. oto only drives the
// system default device, so it serves as the fallback where malgo misbehaves
// (WSL crackling). The bridge's io.Reader side feeds the player.
type OtoBackend struct {
	ctx    *oto.Context
	player *oto.Player
	mutex  sync.Mutex
	closed bool
}

// NewOtoBackend creates an oto-based backend.
func NewOtoBackend() *OtoBackend {
	slog.Debug("creating oto backend")
	return &OtoBackend{}
}

// Open prepares an oto context and player for the requested stream. oto has
// no device selection, so an explicit device is refused.
func (ob *OtoBackend) Open(cfg StreamConfig, bridge *Bridge) error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return ErrBackendClosed
	}
	if ob.player != nil {
		return fmt.Errorf("%w: stream already open", ErrStreamInitFailed)
	}
	if cfg.DeviceID != nil {
		slog.Error("oto backend cannot select a specific device")
		return fmt.Errorf("%w: oto backend only drives the default device", ErrDeviceUnavailable)
	}

	op := &oto.NewContextOptions{
		SampleRate:   int(cfg.SampleRate),
		ChannelCount: int(cfg.Channels),
		Format:       oto.FormatFloat32LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		slog.Error("failed to create oto context",
			"sample_rate", cfg.SampleRate,
			"channels", cfg.Channels,
			"error", err)
		return fmt.Errorf("%w: %v", ErrStreamInitFailed, err)
	}
	<-ready

	ob.ctx = ctx
	ob.player = ctx.NewPlayer(bridge)

	slog.Info("oto playback stream opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels)
	return nil
}

// Start begins pulling from the bridge.
func (ob *OtoBackend) Start() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return ErrBackendClosed
	}
	if ob.player == nil {
		return fmt.Errorf("%w: no open stream", ErrStreamInitFailed)
	}

	ob.player.Play()
	slog.Info("oto playback started")
	return nil
}

// Stop pauses the player. oto's Pause returns after the player has stopped
// requesting data from the reader.
func (ob *OtoBackend) Stop() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.player == nil {
		return nil
	}

	ob.player.Pause()
	slog.Debug("oto playback stopped")
	return nil
}

// Close releases the player. The oto context itself cannot be torn down
// (the library keeps it for the process lifetime).
func (ob *OtoBackend) Close() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		slog.Debug("oto backend already closed")
		return nil
	}
	ob.closed = true

	if ob.player != nil {
		if err := ob.player.Close(); err != nil {
			slog.Error("failed to close oto player", "error", err)
			return err
		}
		ob.player = nil
	}

	slog.Debug("oto backend closed")
	return nil
}
