package engine

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestBridgeFillBufferLengthContract(t *testing.T) {
	// A request for 512 frames at 2 channels must hand the fill function
	// exactly 1024 float slots.
	var observedLen int
	var observedFrames, observedChannels uint32

	bridge := NewBridge(func(buffer []float32, frameCount, channelCount uint32) {
		observedLen = len(buffer)
		observedFrames = frameCount
		observedChannels = channelCount
	}, 2)

	out := make([]float32, 1024)
	bridge.Fill(out, 512)

	if observedLen != 1024 {
		t.Errorf("expected buffer of exactly 1024 slots, got %d", observedLen)
	}
	if observedFrames != 512 || observedChannels != 2 {
		t.Errorf("expected frame_count=512 channel_count=2, got %d/%d", observedFrames, observedChannels)
	}
}

func TestBridgeZeroFrameRequestSkipsFill(t *testing.T) {
	called := false
	bridge := NewBridge(func(buffer []float32, frameCount, channelCount uint32) {
		called = true
	}, 2)

	bridge.Fill(nil, 0)

	if called {
		t.Error("fill function must not run for a zero-frame request")
	}
	if bridge.Invocations() != 0 {
		t.Errorf("expected 0 invocations, got %d", bridge.Invocations())
	}
}

func TestBridgePanicSubstitutesSilence(t *testing.T) {
	bridge := NewBridge(func(buffer []float32, frameCount, channelCount uint32) {
		buffer[0] = 0.5
		panic("fill gone wrong")
	}, 1)

	out := []float32{9, 9, 9, 9}
	bridge.Fill(out, 4)

	for i, s := range out {
		if s != 0 {
			t.Errorf("sample %d: expected silence after panic, got %v", i, s)
		}
	}
	if bridge.Invocations() != 1 {
		t.Errorf("expected the panicking invocation to be counted, got %d", bridge.Invocations())
	}
}

func TestBridgeShutdownSeversFillFunction(t *testing.T) {
	calls := 0
	bridge := NewBridge(func(buffer []float32, frameCount, channelCount uint32) {
		calls++
		for i := range buffer {
			buffer[i] = 1
		}
	}, 2)

	out := make([]float32, 8)
	bridge.Fill(out, 4)
	if calls != 1 {
		t.Fatalf("expected 1 call before shutdown, got %d", calls)
	}

	bridge.Shutdown()
	bridge.Fill(out, 4)

	if calls != 1 {
		t.Errorf("fill function ran after shutdown: %d calls", calls)
	}
	for i, s := range out {
		if s != 0 {
			t.Errorf("sample %d: expected silence after shutdown, got %v", i, s)
		}
	}
}

func TestBridgeFillBytesLittleEndianFloat(t *testing.T) {
	bridge := NewBridge(func(buffer []float32, frameCount, channelCount uint32) {
		for i := range buffer {
			buffer[i] = 0.25
		}
	}, 2)

	out := make([]byte, 4*4) // 2 frames, 2 channels
	bridge.FillBytes(out, 2)

	for i := 0; i < 4; i++ {
		bits := binary.LittleEndian.Uint32(out[4*i:])
		if got := math.Float32frombits(bits); got != 0.25 {
			t.Errorf("sample %d: expected 0.25, got %v", i, got)
		}
	}
}

func TestBridgeReadTruncatesToWholeFrames(t *testing.T) {
	bridge := NewBridge(func(buffer []float32, frameCount, channelCount uint32) {
		for i := range buffer {
			buffer[i] = 1
		}
	}, 2)

	// 2 channels = 8 bytes per frame; 13 bytes holds 1 whole frame
	p := make([]byte, 13)
	n, err := bridge.Read(p)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if n != 8 {
		t.Errorf("expected 8 bytes (1 whole frame), got %d", n)
	}
}

func TestBridgeReadTinyRequestReturnsZero(t *testing.T) {
	bridge := NewBridge(func(buffer []float32, frameCount, channelCount uint32) {}, 2)

	n, err := bridge.Read(make([]byte, 3))
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 bytes for sub-frame request, got %d", n)
	}
	if bridge.Invocations() != 0 {
		t.Errorf("expected no fill invocation, got %d", bridge.Invocations())
	}
}

func TestBridgeGrowsScratchForOversizedPeriod(t *testing.T) {
	bridge := NewBridge(func(buffer []float32, frameCount, channelCount uint32) {
		for i := range buffer {
			buffer[i] = 0.5
		}
	}, 2)

	frames := uint32(defaultScratchFrames * 2)
	out := make([]byte, int(frames)*2*4)
	bridge.FillBytes(out, frames)

	bits := binary.LittleEndian.Uint32(out[len(out)-4:])
	if got := math.Float32frombits(bits); got != 0.5 {
		t.Errorf("expected last sample 0.5 after scratch growth, got %v", got)
	}
}
