// Package telemetry provides structured JSON logging for the detector.
package telemetry

import (
	"log/slog"
	"os"
)

var logger *slog.Logger

// Init installs a JSON slog handler at the given level.
func Init(level slog.Level) {
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// L returns the package logger, initializing it at INFO if needed.
func L() *slog.Logger {
	if logger == nil {
		Init(slog.LevelInfo)
	}
	return logger
}

// ParseLogLevel converts a level name to slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
