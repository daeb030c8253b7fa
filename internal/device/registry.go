// Package device enumerates playback devices and resolves display names to
// opaque device tokens.
package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// Info describes one enumerated playback device. Token is the opaque
// identifier handed to the engine; it is only meaningful to the registry
// that produced it and is never stable across reboots or reconnection.
type Info struct {
	Token     uint32
	Name      string
	IsDefault bool

	raw malgo.DeviceID
}

// NewInfo builds an Info for an injected enumerator. The registry assigns
// the token itself during enumeration.
func NewInfo(name string, isDefault bool, id malgo.DeviceID) Info {
	return Info{Name: name, IsDefault: isDefault, raw: id}
}

// Enumerator lists the platform's playback devices. Injected so registry
// behavior is testable without audio hardware.
type Enumerator interface {
	Playback() ([]Info, error)
}

// Registry assigns stable-within-enumeration tokens to playback devices and
// resolves display names to tokens. Token 0 is reserved: it means both "use
// the system default device" and "name not found" — callers cannot tell the
// two apart from the return value alone. That conflation is part of the
// contract, not something the registry papers over.
type Registry struct {
	enum    Enumerator
	mutex   sync.Mutex
	devices []Info
	fresh   bool
}

// NewRegistry creates a registry backed by the platform enumerator.
func NewRegistry() *Registry {
	slog.Debug("creating device registry")
	return &Registry{enum: &malgoEnumerator{}}
}

// NewRegistryWithEnumerator creates a registry with an injected enumerator
// for testing.
func NewRegistryWithEnumerator(e Enumerator) *Registry {
	return &Registry{enum: e}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry. Tokens from
// FindDeviceByName resolve against the same enumeration snapshot.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// FindDeviceByName resolves a playback device display name to its token
// using the process-wide registry.
func FindDeviceByName(name string) uint32 {
	return Default().FindDeviceByName(name)
}

// Refresh re-enumerates playback devices and reassigns tokens. Tokens
// handed out before a refresh are invalidated.
func (r *Registry) Refresh() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.refreshLocked()
}

func (r *Registry) refreshLocked() error {
	devices, err := r.enum.Playback()
	if err != nil {
		slog.Error("playback device enumeration failed", "error", err)
		return fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	// Tokens are 1-based enumeration positions; 0 stays reserved for the
	// default-device sentinel.
	for i := range devices {
		devices[i].Token = uint32(i + 1)
	}

	r.devices = devices
	r.fresh = true

	slog.Debug("playback devices enumerated", "count", len(devices))
	return nil
}

func (r *Registry) ensureLocked() error {
	if r.fresh {
		return nil
	}
	return r.refreshLocked()
}

// List returns the enumerated playback devices, enumerating on first use.
func (r *Registry) List() ([]Info, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.ensureLocked(); err != nil {
		return nil, err
	}

	out := make([]Info, len(r.devices))
	copy(out, r.devices)
	return out, nil
}

// FindDeviceByName scans enumerated devices for a case-sensitive exact match
// on the display name and returns its token. Returns 0 when no device
// matches — the same sentinel that selects the default device.
func (r *Registry) FindDeviceByName(name string) uint32 {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.ensureLocked(); err != nil {
		slog.Error("device lookup failed", "name", name, "error", err)
		return 0
	}

	for _, d := range r.devices {
		if d.Name == name {
			slog.Debug("device resolved by name", "name", name, "token", d.Token)
			return d.Token
		}
	}

	slog.Debug("no device matched name", "name", name)
	return 0
}

// Resolve maps a token back to the platform device identifier for stream
// opening. Reports false for token 0 and for tokens from a stale
// enumeration.
func (r *Registry) Resolve(token uint32) (malgo.DeviceID, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if token == 0 {
		return malgo.DeviceID{}, false
	}
	if err := r.ensureLocked(); err != nil {
		return malgo.DeviceID{}, false
	}

	idx := int(token) - 1
	if idx < 0 || idx >= len(r.devices) {
		return malgo.DeviceID{}, false
	}
	return r.devices[idx].raw, true
}

// malgoEnumerator enumerates through a short-lived malgo context. Device
// enumeration is rare enough that context setup per call is fine.
type malgoEnumerator struct{}

func (m *malgoEnumerator) Playback() ([]Info, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize enumeration context: %w", err)
	}
	defer func() {
		if err := ctx.Uninit(); err != nil {
			slog.Error("failed to uninitialize enumeration context", "error", err)
		}
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, err
	}

	devices := make([]Info, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Info{
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
			raw:       info.ID,
		})
	}
	return devices, nil
}
