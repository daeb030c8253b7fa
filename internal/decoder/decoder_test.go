package decoder

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// generateTestWAV builds a minimal 16-bit PCM WAV file in memory.
func generateTestWAV(sampleRate uint32, channels uint16, frames int) []byte {
	dataSize := frames * int(channels) * 2
	buf := &bytes.Buffer{}

	// RIFF header
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt subchunk (PCM)
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, channels)
	binary.Write(buf, binary.LittleEndian, sampleRate)
	binary.Write(buf, binary.LittleEndian, sampleRate*uint32(channels)*2) // byte rate
	binary.Write(buf, binary.LittleEndian, channels*2)                    // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))                    // bits per sample

	// data subchunk: a quiet ramp
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < frames; i++ {
		v := int16(i * 100)
		for ch := uint16(0); ch < channels; ch++ {
			binary.Write(buf, binary.LittleEndian, v)
		}
	}

	return buf.Bytes()
}

func TestWavDecoderCanDecode(t *testing.T) {
	dec := NewWavDecoder()

	testCases := []struct {
		filename string
		expected bool
	}{
		{"kick.wav", true},
		{"snare.WAV", true},
		{"bass.wave", true},
		{"vocals.mp3", false},
		{"", false},
		{"wav", false},
		{"kick.wav.bak", false},
	}

	for _, tc := range testCases {
		if got := dec.CanDecode(tc.filename); got != tc.expected {
			t.Errorf("CanDecode(%q) = %v, expected %v", tc.filename, got, tc.expected)
		}
	}
}

func TestWavDecoderDecode(t *testing.T) {
	dec := NewWavDecoder()

	data := generateTestWAV(48000, 2, 64)
	decoded, err := dec.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.SampleRate != 48000 {
		t.Errorf("expected 48000 Hz, got %d", decoded.SampleRate)
	}
	if decoded.Channels != 2 {
		t.Errorf("expected 2 channels, got %d", decoded.Channels)
	}
	if decoded.Frames() != 64 {
		t.Errorf("expected 64 frames, got %d", decoded.Frames())
	}

	// Samples must be normalized to [-1, 1]
	for i, s := range decoded.Samples {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}

	// Frame 10 holds int16 value 1000 on both channels
	want := float32(1000) / 32768
	if got := decoded.Samples[20]; math.Abs(float64(got-want)) > 1e-4 {
		t.Errorf("expected sample ~%v, got %v", want, got)
	}
}

func TestWavDecoderDecodeInvalidData(t *testing.T) {
	dec := NewWavDecoder()

	t.Run("empty data", func(t *testing.T) {
		data, err := dec.Decode(bytes.NewReader(nil))
		if err == nil {
			t.Fatal("expected error for empty data")
		}
		if data != nil {
			t.Error("expected nil data on error")
		}
	})

	t.Run("invalid WAV header", func(t *testing.T) {
		data, err := dec.Decode(bytes.NewReader([]byte("not a wav file")))
		if err == nil {
			t.Fatal("expected error for invalid WAV data")
		}
		if data != nil {
			t.Error("expected nil data on error")
		}
	})
}

func TestMp3DecoderCanDecode(t *testing.T) {
	dec := NewMp3Decoder()

	testCases := []struct {
		filename string
		expected bool
	}{
		{"song.mp3", true},
		{"song.MP3", true},
		{"clip.mpeg", true},
		{"kick.wav", false},
		{"", false},
	}

	for _, tc := range testCases {
		if got := dec.CanDecode(tc.filename); got != tc.expected {
			t.Errorf("CanDecode(%q) = %v, expected %v", tc.filename, got, tc.expected)
		}
	}
}

func TestMp3DecoderDecodeInvalidData(t *testing.T) {
	dec := NewMp3Decoder()

	if _, err := dec.Decode(bytes.NewReader([]byte("definitely not mpeg audio"))); err == nil {
		t.Fatal("expected error for invalid MP3 data")
	}
}

func TestAiffDecoderCanDecode(t *testing.T) {
	dec := NewAiffDecoder()

	testCases := []struct {
		filename string
		expected bool
	}{
		{"horn.aiff", true},
		{"horn.aif", true},
		{"horn.AIFF", true},
		{"horn.wav", false},
		{"", false},
	}

	for _, tc := range testCases {
		if got := dec.CanDecode(tc.filename); got != tc.expected {
			t.Errorf("CanDecode(%q) = %v, expected %v", tc.filename, got, tc.expected)
		}
	}
}

func TestAiffDecoderDecodeInvalidData(t *testing.T) {
	dec := NewAiffDecoder()

	if _, err := dec.Decode(bytes.NewReader([]byte("FORMnope"))); err == nil {
		t.Fatal("expected error for invalid AIFF data")
	}
}

func TestRegistryDetectFormatByExtension(t *testing.T) {
	registry := NewDefaultRegistry()

	tests := []struct {
		filename string
		format   string
	}{
		{"kick.wav", "WAV"},
		{"song.mp3", "MP3"},
		{"horn.aiff", "AIFF"},
	}

	for _, tt := range tests {
		dec := registry.DetectFormat(tt.filename)
		if dec == nil {
			t.Errorf("%s: expected decoder, got nil", tt.filename)
			continue
		}
		if dec.FormatName() != tt.format {
			t.Errorf("%s: expected %s decoder, got %s", tt.filename, tt.format, dec.FormatName())
		}
	}

	if dec := registry.DetectFormat("notes.txt"); dec != nil {
		t.Errorf("expected nil decoder for unsupported extension, got %s", dec.FormatName())
	}
	if dec := registry.DetectFormat(""); dec != nil {
		t.Error("expected nil decoder for empty filename")
	}
}

func TestRegistryMagicBytesBeatExtension(t *testing.T) {
	registry := NewDefaultRegistry()

	// WAV content with a misleading extension must still pick the WAV decoder
	data := generateTestWAV(44100, 1, 16)
	dec := registry.DetectFormatWithContent("mislabeled.mp3", bytes.NewReader(data))
	if dec == nil {
		t.Fatal("expected a decoder")
	}
	if dec.FormatName() != "WAV" {
		t.Errorf("expected magic bytes to select WAV, got %s", dec.FormatName())
	}
}

func TestRegistryDecodeFile(t *testing.T) {
	registry := NewDefaultRegistry()

	data := generateTestWAV(48000, 2, 32)
	decoded, err := registry.DecodeFile("loop.wav", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Frames() != 32 || decoded.Channels != 2 {
		t.Errorf("unexpected decode result: %d frames, %d channels",
			decoded.Frames(), decoded.Channels)
	}
}

func TestRegistryDecodeFileUnsupported(t *testing.T) {
	registry := NewDefaultRegistry()

	_, err := registry.DecodeFile("notes.txt", bytes.NewReader([]byte("plain text")))
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestRegistryGetSupportedFormats(t *testing.T) {
	registry := NewDefaultRegistry()

	formats := registry.GetSupportedFormats()
	if len(formats) != 3 {
		t.Fatalf("expected 3 formats, got %d: %v", len(formats), formats)
	}
	expected := []string{"WAV", "MP3", "AIFF"}
	for i, f := range expected {
		if formats[i] != f {
			t.Errorf("format %d: expected %s, got %s", i, f, formats[i])
		}
	}
}
