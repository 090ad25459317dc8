package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogLevel is the configured verbosity (logging.level, -log-level).
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// parseLogLevel is case-insensitive and also accepts "warning".
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want error, warn, info or debug)", level)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// setupLogger creates a slog logger writing to w. Every record carries the component name.
func setupLogger(w io.Writer, level LogLevel, format LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
	}

	var handler slog.Handler
	if format == LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("component", "vexteleop")
}
