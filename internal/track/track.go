// Package track holds in-memory playback tracks with audio-thread safe
// controls. All control state is atomic so the realtime mixer can read it
// without locks while the UI or CLI thread adjusts it.
package track

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync/atomic"

	"github.com/odaacabeef/stems/internal/decoder"
)

// atomicFloat32 stores a float32 as its bit pattern for lock-free access.
type atomicFloat32 struct {
	bits atomic.Uint32
}

func (a *atomicFloat32) Load() float32 {
	return math.Float32frombits(a.bits.Load())
}

func (a *atomicFloat32) Store(v float32) {
	a.bits.Store(math.Float32bits(v))
}

// Track is one audio file loaded into memory for playback. Samples are
// interleaved for stereo sources. Position is a frame index, not a sample
// index.
type Track struct {
	Name     string
	samples  []float32
	channels uint32

	position   atomic.Uint64
	monitoring atomic.Bool
	solo       atomic.Bool
	level      atomicFloat32
	pan        atomicFloat32
	peak       atomicFloat32
}

// New creates a track over decoded samples. Level defaults to 1.0, pan to
// center, monitoring on.
func New(name string, samples []float32, channels uint32) *Track {
	t := &Track{
		Name:     name,
		samples:  samples,
		channels: channels,
	}
	t.monitoring.Store(true)
	t.level.Store(1.0)
	return t
}

// Load decodes an audio file into a track. The file's sample rate must
// match the session rate exactly; there is no resampling. Mono and stereo
// sources only.
func Load(registry *decoder.Registry, path string, sessionRate uint32) (*Track, error) {
	slog.Debug("loading track", "path", path, "session_rate", sessionRate)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	data, err := registry.DecodeFile(path, f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if data.SampleRate != sessionRate {
		slog.Error("sample rate mismatch",
			"path", path,
			"file_rate", data.SampleRate,
			"session_rate", sessionRate)
		return nil, fmt.Errorf("sample rate mismatch: %s is %dHz, expected %dHz",
			path, data.SampleRate, sessionRate)
	}
	if data.Channels != 1 && data.Channels != 2 {
		slog.Error("unsupported channel count", "path", path, "channels", data.Channels)
		return nil, fmt.Errorf("unsupported channel count: %s has %d channels, expected 1 or 2",
			path, data.Channels)
	}

	slog.Info("track loaded",
		"path", path,
		"frames", data.Frames(),
		"channels", data.Channels)

	return New(path, data.Samples, data.Channels), nil
}

// Channels returns 1 for mono or 2 for stereo.
func (t *Track) Channels() uint32 {
	return t.channels
}

// NumFrames returns the track length in frames.
func (t *Track) NumFrames() int {
	return len(t.samples) / int(t.channels)
}

// Sample returns the sample for a frame and channel without bounds checks
// beyond the frame range; the mixer guarantees frame < NumFrames().
func (t *Track) Sample(frame int, channel uint32) float32 {
	return t.samples[frame*int(t.channels)+int(channel)]
}

// Position returns the current playback frame index.
func (t *Track) Position() int {
	return int(t.position.Load())
}

// SetPosition sets the playback frame index.
func (t *Track) SetPosition(frame int) {
	t.position.Store(uint64(frame))
}

// Advance moves the position forward and reports the frame it consumed.
func (t *Track) Advance() int {
	return int(t.position.Add(1)) - 1
}

// Reset rewinds the track to the beginning.
func (t *Track) Reset() {
	t.position.Store(0)
}

// Finished reports whether playback has consumed every frame.
func (t *Track) Finished() bool {
	return t.Position() >= t.NumFrames()
}

// IsMonitoring reports whether the track is heard in the output.
func (t *Track) IsMonitoring() bool {
	return t.monitoring.Load()
}

// SetMonitoring toggles whether the track is heard in the output.
func (t *Track) SetMonitoring(on bool) {
	t.monitoring.Store(on)
}

// IsSolo reports the solo flag.
func (t *Track) IsSolo() bool {
	return t.solo.Load()
}

// SetSolo toggles the solo flag.
func (t *Track) SetSolo(on bool) {
	t.solo.Store(on)
}

// Level returns the track gain in [0, 1].
func (t *Track) Level() float32 {
	return t.level.Load()
}

// SetLevel sets the track gain, clamped to [0, 1].
func (t *Track) SetLevel(level float32) {
	t.level.Store(clamp(level, 0, 1))
}

// Pan returns the stereo position in [-1, 1].
func (t *Track) Pan() float32 {
	return t.pan.Load()
}

// SetPan sets the stereo position, clamped to [-1, 1].
func (t *Track) SetPan(pan float32) {
	t.pan.Store(clamp(pan, -1, 1))
}

// PeakLevel returns the current peak meter value.
func (t *Track) PeakLevel() float32 {
	return t.peak.Load()
}

// UpdatePeakLevel raises the peak meter; called from the audio thread.
func (t *Track) UpdatePeakLevel(peak float32) {
	if peak > t.peak.Load() {
		t.peak.Store(peak)
	}
}

// DecayPeakLevel lowers the peak meter; called from the UI thread.
func (t *Track) DecayPeakLevel(rate float32) {
	next := t.peak.Load() - rate
	if next < 0 {
		next = 0
	}
	t.peak.Store(next)
}

// PanGains returns the equal-power (left, right) gains for the current pan.
func (t *Track) PanGains() (float32, float32) {
	// Map pan -1..1 onto 0..pi/2
	angle := float64(t.Pan()+1) * math.Pi / 4
	return float32(math.Cos(angle)), float32(math.Sin(angle))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
