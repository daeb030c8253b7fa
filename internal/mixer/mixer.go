// Package mixer produces the engine's output by mixing playback tracks in
// real time. The Fill method is the engine fill function: it runs on the
// platform's realtime thread and touches only atomics and preallocated
// state.
package mixer

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/odaacabeef/stems/internal/engine"
	"github.com/odaacabeef/stems/internal/track"
)

// Mixer mixes tracks into an interleaved output stream. The stereo mix is
// routed onto a configurable output channel pair so aggregate devices can
// monitor on channels other than 1-2.
type Mixer struct {
	tracks []*track.Track

	left  uint32 // output channel index for the mix left
	right uint32 // output channel index for the mix right

	playing atomic.Bool
	volume  atomic.Uint32 // float32 bits

	capture      *engine.RingBuffer
	captureArmed atomic.Bool
}

// New creates a mixer routing the stereo mix onto output channels 0 and 1.
func New(tracks []*track.Track) *Mixer {
	return NewWithRouting(tracks, 0, 1)
}

// NewWithRouting creates a mixer with an explicit output channel pair
// (0-based indexes into the device's interleaved frame).
func NewWithRouting(tracks []*track.Track, left, right uint32) *Mixer {
	m := &Mixer{
		tracks: tracks,
		left:   left,
		right:  right,
	}
	m.volume.Store(math.Float32bits(1.0))

	slog.Debug("mixer created",
		"tracks", len(tracks),
		"monitor_left", left,
		"monitor_right", right)
	return m
}

// SetCapture attaches a ring buffer that receives the stereo mix while
// playing and armed. The writer side of the buffer belongs to the mixer's
// realtime thread; exactly one consumer may drain it.
func (m *Mixer) SetCapture(rb *engine.RingBuffer) {
	m.capture = rb
}

// ArmCapture toggles whether the mix is tapped into the capture buffer.
func (m *Mixer) ArmCapture(armed bool) {
	m.captureArmed.Store(armed)
	slog.Debug("capture arm changed", "armed", armed)
}

// CaptureArmed reports the capture arm state.
func (m *Mixer) CaptureArmed() bool {
	return m.captureArmed.Load()
}

// Volume returns the master volume in [0, 1].
func (m *Mixer) Volume() float32 {
	return math.Float32frombits(m.volume.Load())
}

// SetVolume sets the master volume, clamped to [0, 1].
func (m *Mixer) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	m.volume.Store(math.Float32bits(v))
}

// Start rewinds every track and begins mixing on the next fill request.
func (m *Mixer) Start() {
	for _, t := range m.tracks {
		t.Reset()
	}
	m.playing.Store(true)
	slog.Info("playback started", "tracks", len(m.tracks))
}

// Stop silences the mix on the next fill request (~one period of latency)
// and rewinds the tracks. Queued capture samples are dropped.
func (m *Mixer) Stop() {
	m.playing.Store(false)
	if m.capture != nil {
		m.capture.Drain()
	}
	for _, t := range m.tracks {
		t.Reset()
	}
	slog.Info("playback stopped")
}

// IsPlaying reports whether the mixer is producing audio.
func (m *Mixer) IsPlaying() bool {
	return m.playing.Load()
}

// AllFinished reports whether every track has played to its end.
func (m *Mixer) AllFinished() bool {
	for _, t := range m.tracks {
		if !t.Finished() {
			return false
		}
	}
	return true
}

// Tracks returns the mixer's tracks.
func (m *Mixer) Tracks() []*track.Track {
	return m.tracks
}

// Fill is the engine fill function. It writes frameCount*channelCount
// interleaved samples: silence when stopped, otherwise the routed stereo
// mix. Runs on the realtime thread; no allocations, no locks.
func (m *Mixer) Fill(buffer []float32, frameCount, channelCount uint32) {
	for i := range buffer {
		buffer[i] = 0
	}

	if !m.playing.Load() {
		return
	}
	if m.left >= channelCount || m.right >= channelCount {
		return
	}

	// Solo scan once per buffer, not per frame
	anySolo := false
	for _, t := range m.tracks {
		if t.IsSolo() {
			anySolo = true
			break
		}
	}

	masterVolume := m.Volume()
	capturing := m.captureArmed.Load() && m.capture != nil

	for frame := uint32(0); frame < frameCount; frame++ {
		var mixLeft, mixRight float32

		for _, t := range m.tracks {
			if t.Finished() {
				continue
			}

			pos := t.Advance()

			audible := t.IsMonitoring()
			if anySolo {
				audible = t.IsSolo()
			}
			if !audible {
				continue
			}

			level := t.Level()
			leftGain, rightGain := t.PanGains()

			var sampleLeft, sampleRight float32
			if t.Channels() == 1 {
				s := t.Sample(pos, 0) * level
				sampleLeft = s * leftGain
				sampleRight = s * rightGain
			} else {
				sampleLeft = t.Sample(pos, 0) * level * leftGain
				sampleRight = t.Sample(pos, 1) * level * rightGain
			}

			peak := absf(sampleLeft)
			if r := absf(sampleRight); r > peak {
				peak = r
			}
			t.UpdatePeakLevel(peak)

			mixLeft += sampleLeft
			mixRight += sampleRight
		}

		mixLeft *= masterVolume
		mixRight *= masterVolume

		base := frame * channelCount
		buffer[base+m.left] = mixLeft
		buffer[base+m.right] = mixRight

		if capturing {
			pair := [2]float32{mixLeft, mixRight}
			m.capture.Write(pair[:])
		}
	}
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
