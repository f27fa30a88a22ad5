// Package logger builds the slog loggers used across the repo.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing to stderr. format is "json" or "text".
func New(level slog.Level, format string) *slog.Logger {
	return slog.New(NewHandler(level, format))
}

// NewHandler creates the stderr handler New wraps, for callers that
// need to stack further handlers on top.
func NewHandler(level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// NewDefaultLogger creates a text logger at the given level.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return New(level, "text")
}
