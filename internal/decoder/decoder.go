// Package decoder turns audio files into interleaved float32 sample data
// ready for the playback engine.
package decoder

import (
	"errors"
	"io"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// AudioData is decoded audio normalized to interleaved float32 in [-1, 1].
type AudioData struct {
	Samples    []float32 // Interleaved samples
	Channels   uint32    // Number of audio channels
	SampleRate uint32    // Sample rate in Hz
}

// Frames returns the number of frames (samples per channel).
func (d *AudioData) Frames() int {
	if d.Channels == 0 {
		return 0
	}
	return len(d.Samples) / int(d.Channels)
}

// Decoder interface for audio format decoding
type Decoder interface {
	// Decode reads audio data from reader and returns normalized samples
	Decode(reader io.Reader) (*AudioData, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}
