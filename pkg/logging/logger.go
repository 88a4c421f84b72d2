// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Output selects where log events are written.
type Output string

const (
	// OutputConsole writes human-readable logs to stderr.
	OutputConsole Output = "console"

	// OutputFile writes JSON logs to a rotating file.
	OutputFile Output = "file"

	// OutputBoth writes to console and file.
	OutputBoth Output = "both"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Output selects console, file, or both.
	Output Output

	// Filename is the log file path, required for file output.
	Filename string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: OutputConsole,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var writers []io.Writer
	if cfg.Output == OutputConsole || cfg.Output == OutputBoth {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if (cfg.Output == OutputFile || cfg.Output == OutputBoth) && cfg.Filename != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
		})
	}

	var output io.Writer
	switch len(writers) {
	case 0:
		output = os.Stderr
	case 1:
		output = writers[0]
	default:
		output = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
