package engine

import (
	"errors"

	"github.com/gen2brain/malgo"
)

// Lifecycle and stream errors shared by all OutputBackend implementations
// and surfaced through Engine.
var (
	ErrInvalidParameter  = errors.New("invalid stream parameter")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrStreamInitFailed  = errors.New("failed to initialize audio stream")
	ErrAlreadyStarted    = errors.New("engine already started")
	ErrBackendClosed     = errors.New("output backend is closed")
)

// StreamConfig describes the output stream an Engine asks a backend to open.
// DeviceID is nil for the system default device.
type StreamConfig struct {
	SampleRate float64
	Channels   uint32
	DeviceID   *malgo.DeviceID
}

// OutputBackend abstracts the platform audio output primitive. Open wires the
// bridge into the platform's pull callback without starting it; Start begins
// real-time invocation on a platform-managed thread; Stop blocks until the
// in-flight callback (if any) has returned and guarantees no further
// invocation. Close releases platform resources.
type OutputBackend interface {
	Open(cfg StreamConfig, bridge *Bridge) error
	Start() error
	Stop() error
	Close() error
}
