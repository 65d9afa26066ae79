package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// parseLogLevel converts a log level string to slog.Level, defaulting to
// Info for an unrecognized or empty value.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger builds a slog.Logger that writes to stderr, and additionally
// to a rotating log file via lumberjack when logPath is non-empty. Returns
// the lumberjack.Logger too so main can Close it on shutdown.
func setupLogger(logPath, level string) (*slog.Logger, *lumberjack.Logger) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	if logPath == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
	w := io.MultiWriter(os.Stderr, rotator)
	return slog.New(slog.NewTextHandler(w, opts)), rotator
}
