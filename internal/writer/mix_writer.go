// Package writer persists the captured stereo mix to WAV files.
package writer

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	wav "github.com/youpy/go-wav"

	"github.com/odaacabeef/stems/internal/engine"
)

// MixWriter drains the mixer's capture ring buffer on its own goroutine and
// finalizes a timestamped 16-bit stereo WAV file when stopped. The realtime
// thread only ever touches the ring buffer; all file I/O happens here.
type MixWriter struct {
	fs         afero.Fs
	buffer     *engine.RingBuffer
	outputDir  string
	sampleRate uint32

	mutex    sync.Mutex
	running  bool
	stop     chan struct{}
	done     chan struct{}
	captured []float32
	lastPath string
}

// NewMixWriter creates a writer over the OS filesystem.
func NewMixWriter(buffer *engine.RingBuffer, outputDir string, sampleRate uint32) *MixWriter {
	return NewMixWriterWithFs(afero.NewOsFs(), buffer, outputDir, sampleRate)
}

// NewMixWriterWithFs creates a writer with an injected filesystem for testing.
func NewMixWriterWithFs(fs afero.Fs, buffer *engine.RingBuffer, outputDir string, sampleRate uint32) *MixWriter {
	slog.Debug("creating mix writer",
		"output_dir", outputDir,
		"sample_rate", sampleRate)
	return &MixWriter{
		fs:         fs,
		buffer:     buffer,
		outputDir:  outputDir,
		sampleRate: sampleRate,
	}
}

// GenerateTimestamp returns the filename timestamp for a capture session.
func GenerateTimestamp() string {
	return time.Now().Format("2006-01-02-150405")
}

// Start begins draining the capture buffer for a new session.
func (w *MixWriter) Start(timestamp string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.running {
		return fmt.Errorf("mix writer already running")
	}

	w.running = true
	w.captured = w.captured[:0]
	w.lastPath = filepath.Join(w.outputDir, fmt.Sprintf("mix-%s.wav", timestamp))
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go w.drainLoop(w.stop, w.done)

	slog.Info("mix capture started", "path", w.lastPath)
	return nil
}

// drainLoop pulls samples off the ring buffer until stopped, then performs
// a final drain so nothing queued is lost.
func (w *MixWriter) drainLoop(stop, done chan struct{}) {
	defer close(done)

	scratch := make([]float32, 4096)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			w.drainOnce(scratch)
			return
		case <-ticker.C:
			w.drainOnce(scratch)
		}
	}
}

func (w *MixWriter) drainOnce(scratch []float32) {
	for {
		n := w.buffer.Read(scratch)
		if n == 0 {
			return
		}
		w.mutex.Lock()
		w.captured = append(w.captured, scratch[:n]...)
		w.mutex.Unlock()
	}
}

// IsRunning reports whether a capture session is active.
func (w *MixWriter) IsRunning() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.running
}

// Stop ends the session, waits for the drain goroutine, and finalizes the
// WAV file. Returns the written path. An empty capture still produces a
// valid zero-length file.
func (w *MixWriter) Stop() (string, error) {
	w.mutex.Lock()
	if !w.running {
		w.mutex.Unlock()
		return "", fmt.Errorf("mix writer not running")
	}
	stop := w.stop
	done := w.done
	w.mutex.Unlock()

	close(stop)
	<-done

	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.running = false

	if err := w.finalizeLocked(); err != nil {
		slog.Error("failed to finalize mix capture", "path", w.lastPath, "error", err)
		return "", err
	}

	slog.Info("mix capture finalized",
		"path", w.lastPath,
		"frames", len(w.captured)/2)
	return w.lastPath, nil
}

// finalizeLocked encodes the captured stereo samples as 16-bit PCM.
func (w *MixWriter) finalizeLocked() error {
	if w.outputDir != "" {
		if err := w.fs.MkdirAll(w.outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := w.fs.Create(w.lastPath)
	if err != nil {
		return fmt.Errorf("failed to create mix file: %w", err)
	}
	defer f.Close()

	frames := len(w.captured) / 2
	wavWriter := wav.NewWriter(f, uint32(frames), 2, w.sampleRate, 16)

	samples := make([]wav.Sample, frames)
	for i := 0; i < frames; i++ {
		samples[i].Values[0] = int(pcm16(w.captured[2*i]))
		samples[i].Values[1] = int(pcm16(w.captured[2*i+1]))
	}

	if err := wavWriter.WriteSamples(samples); err != nil {
		return fmt.Errorf("failed to write mix samples: %w", err)
	}
	return nil
}

// pcm16 converts a float sample to 16-bit PCM with clipping.
func pcm16(s float32) int16 {
	v := s * 32767
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}
