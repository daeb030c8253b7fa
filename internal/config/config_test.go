package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func ptrFloat(v float64) *float64 {
	return &v
}

func TestGetDefaultConfig(t *testing.T) {
	cm := NewConfigManager()
	cfg := cm.GetDefaultConfig()

	if cfg.Volume != 0.8 {
		t.Errorf("expected default volume 0.8, got %f", cfg.Volume)
	}
	if cfg.MonitorChannels != "1-2" {
		t.Errorf("expected default monitor channels 1-2, got %s", cfg.MonitorChannels)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("expected default sample rate 48000, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 2 {
		t.Errorf("expected default channel count 2, got %d", cfg.Channels)
	}
	if cfg.AudioBackend != "auto" {
		t.Errorf("expected default audio backend auto, got %s", cfg.AudioBackend)
	}
	if !cfg.SessionHistory {
		t.Error("expected session history enabled by default")
	}
	if cfg.FileLogging == nil || !cfg.FileLogging.Enabled {
		t.Error("expected file logging enabled by default")
	}

	// Defaults must always validate
	if err := cm.ValidateConfig(cfg); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestParseMonitorChannels(t *testing.T) {
	tests := []struct {
		spec      string
		wantLeft  uint32
		wantRight uint32
		wantErr   bool
	}{
		{"1-2", 0, 1, false},
		{"3-4", 2, 3, false},
		{"17-18", 16, 17, false},
		{"2-3", 0, 0, true},  // even first channel
		{"1-3", 0, 0, true},  // not consecutive
		{"0-1", 0, 0, true},  // channels are 1-based
		{"1", 0, 0, true},    // not a pair
		{"a-b", 0, 0, true},  // not numeric
		{"", 0, 0, true},     // empty
		{"1-2-3", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			left, right, err := ParseMonitorChannels(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got left=%d right=%d", tt.spec, left, right)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.spec, err)
			}
			if left != tt.wantLeft || right != tt.wantRight {
				t.Errorf("ParseMonitorChannels(%q) = (%d, %d), want (%d, %d)",
					tt.spec, left, right, tt.wantLeft, tt.wantRight)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	cm := NewConfigManager()

	base := func() *Config {
		return cm.GetDefaultConfig()
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"volume too high", func(c *Config) { c.Volume = 1.5 }, "volume"},
		{"volume negative", func(c *Config) { c.Volume = -0.1 }, "volume"},
		{"bad monitor pair", func(c *Config) { c.MonitorChannels = "2-3" }, "odd channel"},
		{"monitor pair beyond device", func(c *Config) {
			c.MonitorChannels = "17-18"
			c.Channels = 2
		}, "exceed device channel count"},
		{"monitor pair fits wide device", func(c *Config) {
			c.MonitorChannels = "17-18"
			c.Channels = 20
		}, ""},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, "sample rate"},
		{"zero channels", func(c *Config) {
			c.Channels = 0
			c.MonitorChannels = ""
		}, "channel count"},
		{"empty track file", func(c *Config) {
			c.Files = []TrackConfig{{File: ""}}
		}, "file path cannot be empty"},
		{"track level out of range", func(c *Config) {
			c.Files = []TrackConfig{{File: "kick.wav", Level: ptrFloat(1.2)}}
		}, "level"},
		{"track pan out of range", func(c *Config) {
			c.Files = []TrackConfig{{File: "kick.wav", Pan: ptrFloat(-1.5)}}
		}, "pan"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
		{"bad backend", func(c *Config) { c.AudioBackend = "jack" }, "audio backend"},
		{"negative log rotation", func(c *Config) { c.FileLogging.MaxSizeMB = -1 }, "max_size_mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cm.ValidateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFromFileWithMemoryFilesystem(t *testing.T) {
	memFS := afero.NewMemMapFs()

	configPath := "/test/config.json"
	testConfig := `{
		"volume": 0.5,
		"device": "Scarlett 18i20",
		"monitor_channels": "17-18",
		"sample_rate": 44100,
		"channels": 20,
		"files": [
			{"file": "drums.wav", "level": 0.9},
			{"file": "bass.wav", "pan": -0.5, "solo": true}
		],
		"log_level": "debug"
	}`

	if err := memFS.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatalf("failed to create directory in memory fs: %v", err)
	}
	if err := afero.WriteFile(memFS, configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("failed to write test config to memory fs: %v", err)
	}

	cm := NewConfigManagerWithFilesystem(memFS)
	cfg, err := cm.LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("expected successful config loading from memory fs, got error: %v", err)
	}

	if cfg.Volume != 0.5 {
		t.Errorf("expected volume 0.5, got %f", cfg.Volume)
	}
	if cfg.Device != "Scarlett 18i20" {
		t.Errorf("expected device name from file, got %s", cfg.Device)
	}
	if cfg.MonitorChannels != "17-18" {
		t.Errorf("expected monitor channels 17-18, got %s", cfg.MonitorChannels)
	}
	if len(cfg.Files) != 2 {
		t.Fatalf("expected 2 track configs, got %d", len(cfg.Files))
	}
	if cfg.Files[0].Level == nil || *cfg.Files[0].Level != 0.9 {
		t.Errorf("expected first track level 0.9, got %v", cfg.Files[0].Level)
	}
	if !cfg.Files[1].Solo {
		t.Error("expected second track soloed")
	}

	// Omitted fields keep defaults
	if cfg.AudioBackend != "auto" {
		t.Errorf("expected omitted backend to default to auto, got %s", cfg.AudioBackend)
	}
}

func TestLoadFromFileRejectsInvalidConfig(t *testing.T) {
	memFS := afero.NewMemMapFs()
	cm := NewConfigManagerWithFilesystem(memFS)

	configPath := "/test/config.json"
	if err := afero.WriteFile(memFS, configPath, []byte(`{"volume": 2.0}`), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := cm.LoadFromFile(configPath)
	if err == nil {
		t.Fatal("expected validation error for out-of-range volume")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("expected validation error, got: %v", err)
	}
}

func TestLoadFromFileMissingFile(t *testing.T) {
	cm := NewConfigManagerWithFilesystem(afero.NewMemMapFs())

	_, err := cm.LoadFromFile("/does/not/exist.json")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestSaveToFileRoundTrip(t *testing.T) {
	memFS := afero.NewMemMapFs()
	cm := NewConfigManagerWithFilesystem(memFS)

	cfg := cm.GetDefaultConfig()
	cfg.Device = "UltraLite-mk5"
	cfg.Files = []TrackConfig{{File: "guitar.wav", Pan: ptrFloat(0.25)}}

	configPath := "/nested/dir/config.json"
	if err := cm.SaveToFile(cfg, configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := cm.LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}
	if loaded.Device != "UltraLite-mk5" {
		t.Errorf("expected device to round-trip, got %s", loaded.Device)
	}
	if len(loaded.Files) != 1 || loaded.Files[0].Pan == nil || *loaded.Files[0].Pan != 0.25 {
		t.Errorf("expected track pan to round-trip, got %+v", loaded.Files)
	}
}

func TestSaveToFileRejectsInvalidConfig(t *testing.T) {
	cm := NewConfigManagerWithFilesystem(afero.NewMemMapFs())

	cfg := cm.GetDefaultConfig()
	cfg.Volume = 3.0

	err := cm.SaveToFile(cfg, "/test/config.json")
	if err == nil {
		t.Fatal("expected error saving invalid config")
	}
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	cm := NewConfigManager()

	t.Setenv("STEMS_VOLUME", "0.25")
	t.Setenv("STEMS_DEVICE", "Babyface Pro")
	t.Setenv("STEMS_MONITOR_CHANNELS", "3-4")
	t.Setenv("STEMS_LOG_LEVEL", "debug")
	t.Setenv("STEMS_AUDIO_BACKEND", "oto")
	t.Setenv("STEMS_OUTPUT_DIR", "/tmp/mixes")

	cfg := cm.GetDefaultConfig()
	result := cm.ApplyEnvironmentOverrides(cfg)

	if result.Volume != 0.25 {
		t.Errorf("expected volume override 0.25, got %f", result.Volume)
	}
	if result.Device != "Babyface Pro" {
		t.Errorf("expected device override, got %s", result.Device)
	}
	if result.MonitorChannels != "3-4" {
		t.Errorf("expected monitor channels override, got %s", result.MonitorChannels)
	}
	if result.LogLevel != "debug" {
		t.Errorf("expected log level override, got %s", result.LogLevel)
	}
	if result.AudioBackend != "oto" {
		t.Errorf("expected backend override, got %s", result.AudioBackend)
	}
	if result.OutputDir != "/tmp/mixes" {
		t.Errorf("expected output dir override, got %s", result.OutputDir)
	}

	// Original config untouched
	if cfg.Volume != 0.8 {
		t.Errorf("expected original config unchanged, got volume %f", cfg.Volume)
	}
}

func TestApplyEnvironmentOverridesRejectsInvalid(t *testing.T) {
	cm := NewConfigManager()

	t.Setenv("STEMS_VOLUME", "not-a-number")
	t.Setenv("STEMS_MONITOR_CHANNELS", "2-3")
	t.Setenv("STEMS_AUDIO_BACKEND", "jack")

	cfg := cm.GetDefaultConfig()
	result := cm.ApplyEnvironmentOverrides(cfg)

	if result.Volume != cfg.Volume {
		t.Errorf("invalid volume override should be ignored, got %f", result.Volume)
	}
	if result.MonitorChannels != cfg.MonitorChannels {
		t.Errorf("invalid monitor pair override should be ignored, got %s", result.MonitorChannels)
	}
	if result.AudioBackend != cfg.AudioBackend {
		t.Errorf("invalid backend override should be ignored, got %s", result.AudioBackend)
	}
}

func TestIsValidAudioBackend(t *testing.T) {
	cm := NewConfigManager()

	valid := []string{"", "auto", "malgo", "oto"}
	for _, backend := range valid {
		if !cm.IsValidAudioBackend(backend) {
			t.Errorf("expected backend %q to be valid", backend)
		}
	}

	invalid := []string{"jack", "pulse", "system_command", "AUTO"}
	for _, backend := range invalid {
		if cm.IsValidAudioBackend(backend) {
			t.Errorf("expected backend %q to be invalid", backend)
		}
	}
}

func TestResolveLogFilePath(t *testing.T) {
	cm := NewConfigManager()

	explicit := cm.ResolveLogFilePath("/var/log/stems.log")
	if explicit != "/var/log/stems.log" {
		t.Errorf("expected explicit path unchanged, got %s", explicit)
	}

	resolved := cm.ResolveLogFilePath("")
	if !strings.HasSuffix(resolved, filepath.Join("stems", "logs", "stems.log")) {
		t.Errorf("expected XDG cache log path, got %s", resolved)
	}
}

func TestApplyLogLevel(t *testing.T) {
	cm := NewConfigManager()

	var buf strings.Builder
	if err := cm.ApplyLogLevelWithWriter("error", &buf); err != nil {
		t.Fatalf("unexpected error applying log level: %v", err)
	}

	if err := cm.ApplyLogLevelWithWriter("verbose", &buf); err == nil {
		t.Error("expected error for invalid log level")
	}

	// Empty level keeps current configuration
	if err := cm.ApplyLogLevelWithWriter("", &buf); err != nil {
		t.Errorf("empty log level should be a no-op, got error: %v", err)
	}
}
