package decoder

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Registry manages audio format decoders and provides format detection
type Registry struct {
	decoders []Decoder
}

// NewRegistry creates a new empty decoder registry
func NewRegistry() *Registry {
	slog.Debug("creating new decoder registry")
	return &Registry{
		decoders: make([]Decoder, 0),
	}
}

// NewDefaultRegistry creates a registry with default WAV, MP3, and AIFF decoders
func NewDefaultRegistry() *Registry {
	slog.Debug("creating default decoder registry with WAV, MP3, and AIFF support")

	registry := NewRegistry()
	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewAiffDecoder())

	slog.Info("default decoder registry initialized",
		"supported_formats", registry.GetSupportedFormats())

	return registry
}

// Register adds a decoder to the registry
func (r *Registry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}

	slog.Debug("registering decoder", "format", decoder.FormatName())
	r.decoders = append(r.decoders, decoder)
}

// GetSupportedFormats returns a list of all supported format names
func (r *Registry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// DetectFormat detects the appropriate decoder based on filename extension only
func (r *Registry) DetectFormat(filename string) Decoder {
	if filename == "" {
		slog.Debug("empty filename provided")
		return nil
	}

	// Registration order is priority order
	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"format", decoder.FormatName())
			return decoder
		}
	}

	slog.Debug("no decoder found for filename", "filename", filename)
	return nil
}

// DetectFormatWithContent detects format using magic bytes first, fallback to extension
func (r *Registry) DetectFormatWithContent(filename string, reader io.Reader) Decoder {
	slog.Debug("detecting format with content analysis", "filename", filename)

	// Read up to 512 bytes for magic number detection
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		slog.Error("failed to read header for magic detection", "error", err)
		return r.DetectFormat(filename)
	}
	if n == 0 {
		slog.Debug("empty content, using extension fallback")
		return r.DetectFormat(filename)
	}

	mtype := mimetype.Detect(buffer[:n])
	mimeStr := strings.ToLower(mtype.String())

	slog.Debug("magic byte detection result",
		"filename", filename,
		"detected_mime", mimeStr,
		"bytes_analyzed", n)

	var formatDecoder Decoder
	switch {
	case strings.Contains(mimeStr, "wav") || mimeStr == "audio/vnd.wave":
		formatDecoder = r.findDecoderByFormat("WAV")
	case strings.Contains(mimeStr, "mpeg") || strings.Contains(mimeStr, "mp3"):
		formatDecoder = r.findDecoderByFormat("MP3")
	case strings.Contains(mimeStr, "aiff"):
		formatDecoder = r.findDecoderByFormat("AIFF")
	default:
		slog.Debug("unrecognized magic bytes", "mime_type", mimeStr)
	}

	// Magic detection takes precedence over extension
	if formatDecoder != nil {
		slog.Info("format detected by magic bytes",
			"filename", filename,
			"detected_format", formatDecoder.FormatName(),
			"mime_type", mimeStr)
		return formatDecoder
	}

	slog.Debug("magic detection failed, falling back to extension", "filename", filename)
	return r.DetectFormat(filename)
}

// findDecoderByFormat finds a decoder by its format name
func (r *Registry) findDecoderByFormat(formatName string) Decoder {
	for _, decoder := range r.decoders {
		if strings.EqualFold(decoder.FormatName(), formatName) {
			return decoder
		}
	}
	return nil
}

// DecodeFile decodes an audio file using the appropriate decoder
func (r *Registry) DecodeFile(filename string, reader io.Reader) (*AudioData, error) {
	slog.Debug("starting file decode operation", "filename", filename)

	// Buffer the content so format detection doesn't consume the reader
	fullContent, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read file content for decode", "filename", filename, "error", err)
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}

	dec := r.DetectFormatWithContent(filename, bytes.NewReader(fullContent))
	if dec == nil {
		err := fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
		slog.Error("no suitable decoder found", "filename", filename, "error", err)
		return nil, err
	}

	slog.Info("decoder selected for file",
		"filename", filename,
		"decoder_format", dec.FormatName())

	audioData, err := dec.Decode(bytes.NewReader(fullContent))
	if err != nil {
		slog.Error("decode operation failed",
			"filename", filename,
			"decoder_format", dec.FormatName(),
			"error", err)
		return nil, err
	}

	slog.Info("file decode completed successfully",
		"filename", filename,
		"decoder_format", dec.FormatName(),
		"channels", audioData.Channels,
		"sample_rate", audioData.SampleRate,
		"frames", audioData.Frames())

	return audioData, nil
}
