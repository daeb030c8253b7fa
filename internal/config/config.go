package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// TrackConfig represents one audio file to load and its playback settings
type TrackConfig struct {
	File    string   `json:"file"`              // Path to the audio file
	Monitor *bool    `json:"monitor,omitempty"` // Whether the track is audible (default true)
	Solo    bool     `json:"solo,omitempty"`    // Solo the track
	Level   *float64 `json:"level,omitempty"`   // Track level, 0.0 to 1.0 (default 1.0)
	Pan     *float64 `json:"pan,omitempty"`     // Stereo pan, -1.0 to 1.0 (default 0.0)
}

// Config represents stems configuration
type Config struct {
	Volume          float64            `json:"volume"`                 // Master volume (0.0 to 1.0)
	Device          string             `json:"device"`                 // Output device name (empty = system default)
	MonitorChannels string             `json:"monitor_channels"`       // Stereo output pair, e.g. "1-2" or "17-18"
	SampleRate      uint32             `json:"sample_rate"`            // Playback sample rate in Hz
	Channels        uint32             `json:"channels"`               // Output channel count on the device
	Files           []TrackConfig      `json:"files"`                  // Tracks to load
	OutputDir       string             `json:"output_dir"`             // Directory for captured mix files (empty = cwd)
	SessionHistory  bool               `json:"session_history"`        // Whether to record sessions to the history database
	LogLevel        string             `json:"log_level"`              // Log level (debug, info, warn, error)
	AudioBackend    string             `json:"audio_backend"`          // Audio backend (auto, malgo, oto)
	FileLogging     *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	CreateCacheDir(purpose string) error
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg        XDGInterface
	filesystem afero.Fs
}

// NewConfigManager creates a new configuration manager backed by the OS filesystem
func NewConfigManager() *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		xdg:        NewXDGDirs(),
		filesystem: afero.NewOsFs(),
	}
}

// NewConfigManagerWithFilesystem creates a configuration manager over the given filesystem
func NewConfigManagerWithFilesystem(filesystem afero.Fs) *ConfigManager {
	slog.Debug("creating config manager with custom filesystem")
	return &ConfigManager{
		xdg:        NewXDGDirs(),
		filesystem: filesystem,
	}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		Volume:          0.8,
		Device:          "", // system default output
		MonitorChannels: "1-2",
		SampleRate:      48000,
		Channels:        2,
		Files:           []TrackConfig{},
		OutputDir:       "",
		SessionHistory:  true,
		LogLevel:        "warn",
		AudioBackend:    "auto", // Default to auto-detection
		FileLogging: &FileLoggingConfig{
			Enabled:    true,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}

	slog.Debug("generated default config",
		"volume", defaultConfig.Volume,
		"monitor_channels", defaultConfig.MonitorChannels,
		"sample_rate", defaultConfig.SampleRate,
		"log_level", defaultConfig.LogLevel,
		"audio_backend", defaultConfig.AudioBackend,
		"file_logging_enabled", defaultConfig.FileLogging.Enabled)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.filesystem, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so omitted fields keep sane values
	config := cm.GetDefaultConfig()
	err = json.Unmarshal(data, config)
	if err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	err = cm.ValidateConfig(config)
	if err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"volume", config.Volume,
		"device", config.Device,
		"monitor_channels", config.MonitorChannels,
		"files", len(config.Files))

	return config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	err := cm.ValidateConfig(config)
	if err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(filePath)
	err = cm.filesystem.MkdirAll(dir, 0755)
	if err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal with indentation for readability
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = afero.WriteFile(cm.filesystem, filePath, data, 0644)
	if err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	slog.Debug("loading config using XDG path discovery")

	configPaths := cm.xdg.GetConfigPaths("config.json")

	slog.Debug("searching for config file", "paths", configPaths)

	// Try to load from each path in priority order
	for i, configPath := range configPaths {
		slog.Debug("checking config path", "path_index", i, "path", configPath)

		if _, err := cm.filesystem.Stat(configPath); err == nil {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		} else {
			slog.Debug("config file not found", "path", configPath, "error", err)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// ParseMonitorChannels parses a stereo pair spec like "1-2" or "17-18" and
// returns zero-based left and right channel indexes.
//
// The pair must be two consecutive 1-based channel numbers with an odd first
// channel, so pairs align with how multichannel interfaces group their
// outputs (1-2, 3-4, 17-18, never 2-3).
func ParseMonitorChannels(spec string) (left, right uint32, err error) {
	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("monitor channels must be a pair like \"1-2\", got %q", spec)
	}

	first, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid monitor channel %q: %w", parts[0], err)
	}
	second, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid monitor channel %q: %w", parts[1], err)
	}

	if first < 1 {
		return 0, 0, fmt.Errorf("monitor channels are 1-based, got %q", spec)
	}
	if second != first+1 {
		return 0, 0, fmt.Errorf("monitor channels must be consecutive, got %q", spec)
	}
	if first%2 != 1 {
		return 0, 0, fmt.Errorf("monitor pair must start on an odd channel, got %q", spec)
	}

	return uint32(first - 1), uint32(second - 1), nil
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	// Validate volume
	if config.Volume < 0.0 || config.Volume > 1.0 {
		errors = append(errors, fmt.Sprintf("volume must be between 0.0 and 1.0, got %f", config.Volume))
	}

	// Validate monitor channel pair
	if config.MonitorChannels != "" {
		_, right, err := ParseMonitorChannels(config.MonitorChannels)
		if err != nil {
			errors = append(errors, err.Error())
		} else if config.Channels > 0 && right >= config.Channels {
			errors = append(errors, fmt.Sprintf("monitor channels %q exceed device channel count %d",
				config.MonitorChannels, config.Channels))
		}
	}

	// Validate sample rate and channel count
	if config.SampleRate == 0 {
		errors = append(errors, "sample rate must be greater than zero")
	}
	if config.Channels == 0 {
		errors = append(errors, "channel count must be greater than zero")
	}

	// Validate per-track settings
	for i, track := range config.Files {
		if track.File == "" {
			errors = append(errors, fmt.Sprintf("files[%d]: file path cannot be empty", i))
		}
		if track.Level != nil && (*track.Level < 0.0 || *track.Level > 1.0) {
			errors = append(errors, fmt.Sprintf("files[%d]: level must be between 0.0 and 1.0, got %f", i, *track.Level))
		}
		if track.Pan != nil && (*track.Pan < -1.0 || *track.Pan > 1.0) {
			errors = append(errors, fmt.Sprintf("files[%d]: pan must be between -1.0 and 1.0, got %f", i, *track.Pan))
		}
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if config.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("invalid log level '%s', must be one of: %s",
				config.LogLevel, strings.Join(validLogLevels, ", ")))
		}
	}

	// Validate audio backend
	if !cm.IsValidAudioBackend(config.AudioBackend) {
		supportedBackends := cm.GetSupportedAudioBackends()
		errors = append(errors, fmt.Sprintf("invalid audio backend '%s', must be one of: %s",
			config.AudioBackend, strings.Join(supportedBackends, ", ")))
	}

	// Validate file logging configuration
	if config.FileLogging != nil {
		fileLogging := config.FileLogging

		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}

		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}

		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	slog.Debug("config validation passed")
	return nil
}

// ApplyEnvironmentOverrides applies environment variable overrides to config
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	// Create a copy to modify
	result := *config

	// STEMS_VOLUME
	if volStr := os.Getenv("STEMS_VOLUME"); volStr != "" {
		if vol, err := strconv.ParseFloat(volStr, 64); err == nil {
			result.Volume = vol
			slog.Debug("applied volume override from environment", "value", vol)
		} else {
			slog.Warn("invalid STEMS_VOLUME environment variable", "value", volStr, "error", err)
		}
	}

	// STEMS_DEVICE
	if device := os.Getenv("STEMS_DEVICE"); device != "" {
		result.Device = device
		slog.Debug("applied device override from environment", "value", device)
	}

	// STEMS_MONITOR_CHANNELS
	if pair := os.Getenv("STEMS_MONITOR_CHANNELS"); pair != "" {
		if _, _, err := ParseMonitorChannels(pair); err == nil {
			result.MonitorChannels = pair
			slog.Debug("applied monitor channels override from environment", "value", pair)
		} else {
			slog.Warn("invalid STEMS_MONITOR_CHANNELS environment variable", "value", pair, "error", err)
		}
	}

	// STEMS_OUTPUT_DIR
	if outputDir := os.Getenv("STEMS_OUTPUT_DIR"); outputDir != "" {
		result.OutputDir = outputDir
		slog.Debug("applied output dir override from environment", "value", outputDir)
	}

	// STEMS_LOG_LEVEL
	if logLevel := os.Getenv("STEMS_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	// STEMS_AUDIO_BACKEND
	if audioBackend := os.Getenv("STEMS_AUDIO_BACKEND"); audioBackend != "" {
		// Validate the backend before applying
		if cm.IsValidAudioBackend(audioBackend) {
			result.AudioBackend = audioBackend
			slog.Debug("applied audio backend override from environment", "value", audioBackend)
		} else {
			slog.Warn("invalid STEMS_AUDIO_BACKEND environment variable", "value", audioBackend)
		}
	}

	slog.Debug("environment overrides applied")
	return &result
}

// ApplyLogLevel configures slog with the specified log level
func (cm *ConfigManager) ApplyLogLevel(logLevel string) error {
	return cm.ApplyLogLevelWithWriter(logLevel, os.Stderr)
}

// ApplyLogLevelWithWriter configures slog with the specified log level and custom writer
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	if logLevel == "" {
		slog.Debug("no log level specified, keeping current slog configuration")
		return nil
	}

	slog.Debug("applying log level configuration", "log_level", logLevel)

	// Parse log level string to slog.Level
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		err := fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", logLevel)
		slog.Error("invalid log level for slog configuration", "log_level", logLevel, "error", err)
		return err
	}

	// Create new handler with the specified level and writer
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})

	// Set as default slog logger
	slog.SetDefault(slog.New(handler))

	slog.Debug("slog configured successfully", "log_level", logLevel, "slog_level", level)
	return nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}

	// Use XDG cache directory for log files
	return filepath.Join(cm.xdg.GetCachePath("logs"), "stems.log")
}

// GetSupportedAudioBackends returns a list of all supported audio backend types
func (cm *ConfigManager) GetSupportedAudioBackends() []string {
	return []string{"auto", "malgo", "oto"}
}

// IsValidAudioBackend checks if an audio backend type is supported
func (cm *ConfigManager) IsValidAudioBackend(backend string) bool {
	// Empty string is valid (defaults to auto)
	if backend == "" {
		return true
	}

	supported := cm.GetSupportedAudioBackends()
	for _, supportedBackend := range supported {
		if backend == supportedBackend {
			return true
		}
	}
	return false
}
