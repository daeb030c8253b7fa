package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/odaacabeef/stems/internal/config"
	"github.com/odaacabeef/stems/internal/device"
	"github.com/odaacabeef/stems/internal/session"
)

const Version = "0.3.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	configManager    *config.ConfigManager
	deviceRegistry   *device.Registry
	terminalDetector TerminalDetector
	sessionDB        *sql.DB // Optional session history database
}

// NewCLI creates a new CLI instance
func NewCLI() *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:   "stems",
		Short: "Multitrack stem player",
		Long:  "Stems plays a set of audio files in lockstep through a low-latency output stream, with per-track level, pan, solo, and monitoring, and can capture the monitor mix to a WAV file.",
	}

	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newDevicesCommand())
	rootCmd.AddCommand(newSessionsCommand())

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Add version flag
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetBool("version")
		if version {
			cmd.Printf("stems version %s\nMultitrack stem player\n", Version)
			return nil
		}
		return cmd.Help()
	}

	return &CLI{
		rootCmd:          rootCmd,
		configManager:    nil, // Lazy initialization - only create when needed
		deviceRegistry:   nil, // Lazy initialization - only create when needed
		terminalDetector: nil, // Lazy initialization - only create when needed
		sessionDB:        nil, // Lazy initialization - only create when needed
	}
}

type cliContextKey struct{}

// contextWithCLI stores CLI instance in context for command handlers
func contextWithCLI(cli *CLI) context.Context {
	return context.WithValue(context.Background(), cliContextKey{}, cli)
}

// cliFromContext extracts CLI instance from context
func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(cliContextKey{}).(*CLI); ok {
		return cli
	}
	return nil
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	// Version flag needs no system initialization at all
	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		fmt.Fprintf(stdout, "stems version %s\nMultitrack stem player\n", Version)
		return 0
	}

	c.initializeSystems()

	// Ensure resources are cleaned up on exit
	defer func() {
		if c.sessionDB != nil {
			if err := c.sessionDB.Close(); err != nil {
				slog.Error("error closing session database", "error", err)
			}
		}
	}()

	// Configure cobra to use the provided I/O streams
	c.rootCmd.SetArgs(args[1:]) // Skip program name
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	// Store CLI instance for access in command handlers
	c.rootCmd.SetContext(contextWithCLI(c))

	// Execute cobra command
	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("cobra execution failed", "error", err)
		return 1
	}

	return 0
}

// initializeSystems lazily initializes CLI components when actually needed
func (c *CLI) initializeSystems() {
	if c.configManager == nil {
		c.configManager = config.NewConfigManager()
	}
	if c.deviceRegistry == nil {
		c.deviceRegistry = device.Default()
	}
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
	// sessionDB is opened per-command when session history is enabled
}

// loadAndValidateConfig loads configuration from flags and files, applies
// overrides, and validates the result
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")

	// Load configuration
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			cmd.PrintErrf("Error loading config: %v\n", err)
			slog.Error("config load failed", "file", configFile, "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		cfg, err = cli.configManager.LoadConfig()
		if err != nil {
			cmd.PrintErrf("Error loading config: %v\n", err)
			slog.Error("config load failed", "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	// Apply environment overrides
	cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)

	// Apply command line overrides
	if logLevel != "" {
		cfg.LogLevel = logLevel
		slog.Debug("log level override applied", "value", logLevel)
	}

	applyPlaybackFlags(cmd, cfg)

	// Validate final configuration
	err = cli.configManager.ValidateConfig(cfg)
	if err != nil {
		cmd.PrintErrf("Error: invalid configuration: %v\n", err)
		slog.Error("config validation failed", "error", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyPlaybackFlags copies playback flag values into the config. Flags that
// the command does not define are silently skipped.
func applyPlaybackFlags(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("volume"); f != nil && f.Changed {
		if vol, err := strconv.ParseFloat(f.Value.String(), 64); err == nil {
			cfg.Volume = vol
			slog.Debug("volume override applied", "value", vol)
		}
	}
	if f := cmd.Flags().Lookup("device"); f != nil && f.Changed {
		cfg.Device = f.Value.String()
		slog.Debug("device override applied", "value", cfg.Device)
	}
	if f := cmd.Flags().Lookup("monitor"); f != nil && f.Changed {
		cfg.MonitorChannels = f.Value.String()
		slog.Debug("monitor channels override applied", "value", cfg.MonitorChannels)
	}
	if f := cmd.Flags().Lookup("backend"); f != nil && f.Changed {
		cfg.AudioBackend = f.Value.String()
		slog.Debug("audio backend override applied", "value", cfg.AudioBackend)
	}
	if f := cmd.Flags().Lookup("output-dir"); f != nil && f.Changed {
		cfg.OutputDir = f.Value.String()
		slog.Debug("output dir override applied", "value", cfg.OutputDir)
	}
}

// setupLogging configures slog with file logging when enabled
func setupLogging(cfg *config.Config, stderrWriter io.Writer) {
	// Parse log level
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo // Default level if parsing fails
	}

	// Always include stderr
	var writers []io.Writer
	writers = append(writers, stderrWriter)

	// Add file logging if enabled
	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		configManager := config.NewConfigManager()
		logFilePath := configManager.ResolveLogFilePath(cfg.FileLogging.Filename)

		// Create log file directory if needed
		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			slog.Error("failed to create log directory", "path", logDir, "error", err)
			// Continue without file logging rather than failing
		} else {
			// Create lumberjack logger for file rotation
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			writers = append(writers, fileWriter)
			slog.Debug("file logging enabled", "path", logFilePath)
		}
	}

	// Create MultiWriter to combine all writers
	multiWriter := io.MultiWriter(writers...)

	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"writers", len(writers),
		"file_enabled", cfg.FileLogging != nil && cfg.FileLogging.Enabled)
}

// openSessionDB opens the session history database if enabled in the
// configuration. Failures degrade gracefully: playback continues without
// history.
func (c *CLI) openSessionDB(cfg *config.Config) *session.Recorder {
	if !cfg.SessionHistory {
		slog.Debug("session history disabled, skipping database initialization")
		return nil
	}

	if c.sessionDB == nil {
		dbPath, err := session.GetDatabasePath()
		if err != nil {
			slog.Error("failed to get session database path, continuing without history", "error", err)
			return nil
		}

		db, err := session.NewDatabase(dbPath)
		if err != nil {
			slog.Error("failed to open session database, continuing without history",
				"path", dbPath, "error", err)
			return nil
		}

		c.sessionDB = db
		slog.Info("session database opened", "path", dbPath)
	}

	return session.NewRecorder(c.sessionDB)
}

// isInteractiveTerminal checks if the given file descriptor is an interactive terminal
func (c *CLI) isInteractiveTerminal(fd int) bool {
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}

	return c.terminalDetector.IsTerminal(fd)
}
