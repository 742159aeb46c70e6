package logger

import (
	"log/slog"
	"os"
	"strings"
)

var logger *slog.Logger

// Init initializes the logger with the given log level
func Init(level string) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	// Text handler on stderr: the output is read inline in CI step logs,
	// stdout is reserved for workflow commands (::notice lines)
	handler := slog.NewTextHandler(os.Stderr, opts)

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the logger instance
func Get() *slog.Logger {
	if logger == nil {
		// Initialize with default level if not already initialized
		Init("info")
	}
	return logger
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
