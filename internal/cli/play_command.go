package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odaacabeef/stems/internal/config"
	"github.com/odaacabeef/stems/internal/decoder"
	"github.com/odaacabeef/stems/internal/engine"
	"github.com/odaacabeef/stems/internal/mixer"
	"github.com/odaacabeef/stems/internal/track"
	"github.com/odaacabeef/stems/internal/writer"
)

// captureRingSamples sizes the capture ring generously so the drain goroutine
// never races the realtime thread at typical callback sizes.
const captureRingSamples = 1 << 17

func newPlayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [files...]",
		Short: "Play stem files in lockstep",
		Long: `Play loads the given audio files (or the files listed in the config),
mixes them onto the configured monitor channel pair, and plays until every
track has finished or an interrupt is received.`,
		RunE: runPlayE,
	}

	cmd.Flags().Float64("volume", 0, "Master volume (0.0 to 1.0)")
	cmd.Flags().String("device", "", "Output device name (empty = system default)")
	cmd.Flags().String("monitor", "", "Monitor channel pair, e.g. 1-2 or 17-18")
	cmd.Flags().String("backend", "", "Audio backend (auto, malgo, oto)")
	cmd.Flags().Bool("capture", false, "Capture the monitor mix to a WAV file")
	cmd.Flags().String("output-dir", "", "Directory for captured mix files")

	return cmd
}

func runPlayE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		slog.Error("CLI instance not found in context")
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}

	setupLogging(cfg, cmd.ErrOrStderr())

	// Files on the command line replace the configured track list
	trackConfigs := cfg.Files
	if len(args) > 0 {
		trackConfigs = make([]config.TrackConfig, len(args))
		for i, path := range args {
			trackConfigs[i] = config.TrackConfig{File: path}
		}
	}
	if len(trackConfigs) == 0 {
		cmd.PrintErrln("Error: no files to play (pass file arguments or list them in the config)")
		return fmt.Errorf("no files to play")
	}

	tracks, err := loadTracks(trackConfigs, cfg.SampleRate)
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return err
	}

	left, right, err := config.ParseMonitorChannels(cfg.MonitorChannels)
	if err != nil {
		// Validation already checked the pair, but the config may have an
		// empty spec when channels come entirely from flags.
		left, right = 0, 1
	}

	mix := mixer.NewWithRouting(tracks, left, right)
	mix.SetVolume(float32(cfg.Volume))

	// Optional mix capture
	var mixWriter *writer.MixWriter
	captureFlag, _ := cmd.Flags().GetBool("capture")
	if captureFlag {
		ring := engine.NewRingBuffer(captureRingSamples)
		mix.SetCapture(ring)
		mix.ArmCapture(true)
		mixWriter = writer.NewMixWriter(ring, cfg.OutputDir, cfg.SampleRate)
		if err := mixWriter.Start(writer.GenerateTimestamp()); err != nil {
			cmd.PrintErrf("Error starting mix capture: %v\n", err)
			return fmt.Errorf("failed to start mix capture: %w", err)
		}
		slog.Info("mix capture armed", "output_dir", cfg.OutputDir)
	}

	// Resolve the configured device name to a registry token. Token 0 means
	// the system default, which is also what an unknown name falls back to.
	var deviceToken uint32
	if cfg.Device != "" {
		deviceToken = cli.deviceRegistry.FindDeviceByName(cfg.Device)
		if deviceToken == 0 {
			cmd.PrintErrf("Warning: device %q not found, using system default\n", cfg.Device)
			slog.Warn("configured device not found", "device", cfg.Device)
		}
	}

	eng, err := engine.New(float64(cfg.SampleRate), cfg.Channels, deviceToken, mix.Fill,
		engine.WithResolver(cli.deviceRegistry),
		engine.WithBackendType(cfg.AudioBackend))
	if err != nil {
		cmd.PrintErrf("Error creating playback engine: %v\n", err)
		return fmt.Errorf("failed to create playback engine: %w", err)
	}

	// Session history is best-effort and never blocks playback
	recorder := cli.openSessionDB(cfg)
	var sessionID int64
	if recorder != nil {
		paths := make([]string, len(trackConfigs))
		for i, tc := range trackConfigs {
			paths[i] = tc.File
		}
		sessionID, err = recorder.Begin(cfg.Device, cfg.SampleRate, cfg.Channels, paths)
		if err != nil {
			slog.Error("failed to record session start", "error", err)
			recorder = nil
		}
	}

	mix.Start()
	if err := eng.Start(); err != nil {
		mix.Stop()
		if mixWriter != nil {
			if _, stopErr := mixWriter.Stop(); stopErr != nil {
				slog.Error("mix writer stop after failed start", "error", stopErr)
			}
		}
		cmd.PrintErrf("Error starting playback: %v\n", err)
		return fmt.Errorf("failed to start playback: %w", err)
	}

	cmd.Printf("Playing %d track(s) at %d Hz on channels %s\n",
		len(tracks), cfg.SampleRate, cfg.MonitorChannels)

	waitForPlayback(cmd, mix)

	// Destroy first so the fill function can no longer run, then finalize
	// the capture before the mixer drains its ring.
	eng.Destroy()

	var capturePath string
	if mixWriter != nil {
		capturePath, err = mixWriter.Stop()
		if err != nil {
			cmd.PrintErrf("Error finalizing mix capture: %v\n", err)
			slog.Error("mix capture finalize failed", "error", err)
		} else {
			cmd.Printf("Mix captured to %s\n", capturePath)
		}
	}

	mix.Stop()

	if recorder != nil {
		if err := recorder.End(sessionID, capturePath); err != nil {
			slog.Error("failed to record session end", "error", err)
		}
	}

	slog.Info("playback finished",
		"tracks", len(tracks),
		"fill_invocations", eng.FillInvocations(),
		"capture_path", capturePath)

	return nil
}

// loadTracks decodes every configured file and applies its playback settings.
func loadTracks(trackConfigs []config.TrackConfig, sampleRate uint32) ([]*track.Track, error) {
	registry := decoder.NewDefaultRegistry()

	tracks := make([]*track.Track, 0, len(trackConfigs))
	for _, tc := range trackConfigs {
		t, err := track.Load(registry, tc.File, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", tc.File, err)
		}

		if tc.Monitor != nil {
			t.SetMonitoring(*tc.Monitor)
		}
		t.SetSolo(tc.Solo)
		if tc.Level != nil {
			t.SetLevel(float32(*tc.Level))
		}
		if tc.Pan != nil {
			t.SetPan(float32(*tc.Pan))
		}

		slog.Debug("track loaded",
			"file", tc.File,
			"frames", t.NumFrames(),
			"channels", t.Channels(),
			"solo", t.IsSolo(),
			"monitoring", t.IsMonitoring())

		tracks = append(tracks, t)
	}

	return tracks, nil
}

// waitForPlayback blocks until every track has finished or the process is
// interrupted.
func waitForPlayback(cmd *cobra.Command, mix *mixer.Mixer) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			slog.Info("interrupt received, stopping playback", "signal", sig.String())
			cmd.Println("Stopping...")
			return
		case <-ticker.C:
			if mix.AllFinished() {
				slog.Debug("all tracks finished")
				return
			}
		}
	}
}
