package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a JSON logger writing to stdout and, when a log file is
// configured, to a rotated file as well.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}

	if cfg.Logging.File == "" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
		// Fallback to stderr if directory creation fails
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     28, // Days
		Compress:   true,
	}

	writer := io.MultiWriter(os.Stdout, fileLogger)
	return slog.New(slog.NewJSONHandler(writer, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
