package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/odaacabeef/stems/internal/device"
)

// State is the lifecycle position of an Engine.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DeviceResolver maps a registry token back to a platform device identifier.
// *device.Registry satisfies it.
type DeviceResolver interface {
	Resolve(token uint32) (malgo.DeviceID, bool)
}

// Engine owns device selection, stream configuration, and the
// create/start/destroy lifecycle of one low-latency playback stream. The
// caller serializes lifecycle calls; the fill function runs on the
// platform's realtime thread between Start and Destroy.
//
// Destroy must be called exactly once when the engine is no longer needed.
// Using an engine after Destroy is a caller error.
type Engine struct {
	sampleRate  float64
	channels    uint32
	deviceID    uint32
	resolved    *malgo.DeviceID
	backendType string

	bridge  *Bridge
	backend OutputBackend
	factory BackendFactory

	state atomic.Int32
	mutex sync.Mutex
}

// Option adjusts engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	backend     OutputBackend
	resolver    DeviceResolver
	factory     BackendFactory
	backendType string
}

// WithBackend injects a specific output backend instead of the factory's
// auto-detected one.
func WithBackend(b OutputBackend) Option {
	return func(o *engineOptions) { o.backend = b }
}

// WithResolver injects the device resolver used to validate a non-zero
// device token at creation time.
func WithResolver(r DeviceResolver) Option {
	return func(o *engineOptions) { o.resolver = r }
}

// WithFactory injects the backend factory used when no backend is given.
func WithFactory(f BackendFactory) Option {
	return func(o *engineOptions) { o.factory = f }
}

// WithBackendType selects which backend the factory builds at Start
// ("auto", "malgo", "oto"). Ignored when WithBackend is also given.
func WithBackendType(backendType string) Option {
	return func(o *engineOptions) { o.backendType = backendType }
}

// New creates a playback engine bound to a device and a fill function. The
// device token comes from device.FindDeviceByName; 0 selects the system
// default. No stream is opened until Start. The fill function must remain
// valid until Destroy returns; the engine never calls it before Start or
// after Destroy.
//
// Fails with ErrInvalidParameter when sampleRate <= 0 or channels == 0, and
// with ErrDeviceUnavailable when a non-zero device token cannot be resolved.
func New(sampleRate float64, channels, deviceID uint32, fill FillFunc, opts ...Option) (*Engine, error) {
	if sampleRate <= 0 {
		slog.Error("rejected engine creation", "sample_rate", sampleRate)
		return nil, fmt.Errorf("%w: sample rate %v", ErrInvalidParameter, sampleRate)
	}
	if channels == 0 {
		slog.Error("rejected engine creation", "channels", channels)
		return nil, fmt.Errorf("%w: channel count 0", ErrInvalidParameter)
	}
	if fill == nil {
		slog.Error("rejected engine creation: nil fill function")
		return nil, fmt.Errorf("%w: nil fill function", ErrInvalidParameter)
	}

	var options engineOptions
	for _, opt := range opts {
		opt(&options)
	}

	e := &Engine{
		sampleRate:  sampleRate,
		channels:    channels,
		deviceID:    deviceID,
		backendType: options.backendType,
		bridge:      NewBridge(fill, channels),
		backend:     options.backend,
		factory:     options.factory,
	}
	if e.factory == nil {
		e.factory = NewBackendFactory()
	}
	if e.backendType == "" {
		e.backendType = "auto"
	}

	if deviceID != 0 {
		resolver := options.resolver
		if resolver == nil {
			resolver = device.Default()
		}
		id, ok := resolver.Resolve(deviceID)
		if !ok {
			slog.Error("device token did not resolve", "device_id", deviceID)
			return nil, fmt.Errorf("%w: device token %d", ErrDeviceUnavailable, deviceID)
		}
		e.resolved = &id
	}

	e.state.Store(int32(StateCreated))
	slog.Debug("engine created",
		"sample_rate", sampleRate,
		"channels", channels,
		"device_id", deviceID)
	return e, nil
}

// Start opens and activates the output stream. After a successful return the
// platform invokes the fill function on its realtime thread. Start succeeds
// at most once per engine; a second call fails with ErrAlreadyStarted.
func (e *Engine) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if State(e.state.Load()) != StateCreated {
		slog.Error("start rejected", "state", e.State().String())
		return ErrAlreadyStarted
	}

	if e.backend == nil {
		backend, err := e.factory.CreateBackend(e.backendType)
		if err != nil {
			slog.Error("backend creation failed", "error", err)
			return fmt.Errorf("%w: %v", ErrStreamInitFailed, err)
		}
		e.backend = backend
	}

	cfg := StreamConfig{
		SampleRate: e.sampleRate,
		Channels:   e.channels,
		DeviceID:   e.resolved,
	}

	if err := e.backend.Open(cfg, e.bridge); err != nil {
		slog.Error("stream open failed", "error", err)
		return err
	}
	if err := e.backend.Start(); err != nil {
		slog.Error("stream start failed", "error", err)
		if closeErr := e.backend.Close(); closeErr != nil {
			slog.Error("backend close after failed start", "error", closeErr)
		}
		return err
	}

	e.state.Store(int32(StateStarted))
	slog.Info("engine started",
		"sample_rate", e.sampleRate,
		"channels", e.channels,
		"device_id", e.deviceID)
	return nil
}

// Destroy stops the stream and releases all resources. It is valid from any
// state and blocks until the realtime thread's in-flight fill invocation has
// completed: after Destroy returns, the fill function is never called again.
// Teardown failures are logged, not surfaced, because no recovery action
// exists once teardown begins.
func (e *Engine) Destroy() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	prev := State(e.state.Swap(int32(StateStopped)))
	e.bridge.Shutdown()

	if e.backend != nil {
		if err := e.backend.Stop(); err != nil {
			slog.Error("stream stop during destroy", "error", err)
		}
		if err := e.backend.Close(); err != nil {
			slog.Error("backend close during destroy", "error", err)
		}
		e.backend = nil
	}

	slog.Info("engine destroyed", "previous_state", prev.String())
}

// State returns the engine's lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// SampleRate returns the configured sample rate in Hz.
func (e *Engine) SampleRate() float64 {
	return e.sampleRate
}

// Channels returns the configured output channel count.
func (e *Engine) Channels() uint32 {
	return e.channels
}

// DeviceID returns the device token the engine was created with (0 means
// system default).
func (e *Engine) DeviceID() uint32 {
	return e.deviceID
}

// FillInvocations reports how many times the fill function has run.
func (e *Engine) FillInvocations() uint64 {
	return e.bridge.Invocations()
}
