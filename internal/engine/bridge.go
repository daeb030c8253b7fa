package engine

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
)

// FillFunc produces audio on demand. It must fill buffer with exactly
// frameCount*channelCount interleaved float32 samples before returning. It
// runs on a realtime-priority thread distinct from the caller thread: it must
// not block, allocate, or take locks that the caller thread can hold for
// unbounded time. Missing the deadline causes an audible glitch, not a
// correctness failure.
type FillFunc func(buffer []float32, frameCount, channelCount uint32)

// Bridge is the real-time trampoline between a platform output callback and
// a FillFunc. It validates each platform request, forwards exactly one fill
// call per request, and converts the produced samples into whatever byte
// layout the backend needs. A panicking fill function is swallowed and the
// buffer zero-filled so nothing unwinds into the platform's audio thread.
type Bridge struct {
	fill     FillFunc
	channels uint32
	scratch  []float32
	stopped  atomic.Bool
	calls    atomic.Uint64
}

// defaultScratchFrames sizes the initial conversion buffer. Platform period
// sizes above this grow the scratch once, outside the steady state.
const defaultScratchFrames = 4096

// NewBridge creates a bridge forwarding platform requests to fill.
func NewBridge(fill FillFunc, channels uint32) *Bridge {
	return &Bridge{
		fill:     fill,
		channels: channels,
		scratch:  make([]float32, defaultScratchFrames*int(channels)),
	}
}

// Fill produces frameCount frames of interleaved samples into out. Zero-frame
// requests return without invoking the fill function. After Shutdown, or when
// the fill function panics, out is zero-filled instead.
func (b *Bridge) Fill(out []float32, frameCount uint32) {
	if frameCount == 0 {
		return
	}
	if b.stopped.Load() {
		zeroSamples(out)
		return
	}

	b.calls.Add(1)
	b.invoke(out, frameCount)
}

// invoke runs the user fill function with panic containment.
func (b *Bridge) invoke(out []float32, frameCount uint32) {
	defer func() {
		if r := recover(); r != nil {
			zeroSamples(out)
			slog.Error("fill function panicked, substituting silence", "panic", r)
		}
	}()
	b.fill(out, frameCount, b.channels)
}

// FillBytes services a platform request for little-endian float32 bytes
// (the malgo data callback hands a raw byte buffer).
func (b *Bridge) FillBytes(out []byte, frameCount uint32) {
	samples := int(frameCount) * int(b.channels)
	if len(b.scratch) < samples {
		// Platform asked for a larger period than provisioned. Allocating
		// here risks a glitch on this one request but keeps the contract.
		b.scratch = make([]float32, samples)
	}

	buf := b.scratch[:samples]
	zeroSamples(buf)
	b.Fill(buf, frameCount)

	for i, s := range buf {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(s))
	}
}

// Read services a pull-based byte reader (the oto player drives its source
// through io.Reader). The request length is truncated to whole frames.
func (b *Bridge) Read(p []byte) (int, error) {
	frameBytes := 4 * int(b.channels)
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	n := frames * frameBytes
	b.FillBytes(p[:n], uint32(frames))
	return n, nil
}

// Shutdown marks the bridge stopped. Subsequent platform requests produce
// silence and do not reach the fill function. The platform stream must still
// be stopped by the backend; Shutdown only severs the user callback.
func (b *Bridge) Shutdown() {
	b.stopped.Store(true)
}

// Invocations returns how many times the fill function has been entered.
func (b *Bridge) Invocations() uint64 {
	return b.calls.Load()
}

// Channels returns the interleaved channel count of the fill contract.
func (b *Bridge) Channels() uint32 {
	return b.channels
}

func zeroSamples(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

var _ io.Reader = (*Bridge)(nil)
