// Package logging provides structured logging utilities.
//
// Logs are written through log/slog with a compact colored console format:
// [LEVEL] [SYSTEM] [HH:MM:SS] message key=value
package logging

import (
	"log/slog"
	"os"

	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/config"
)

// NewLogger creates a structured logger based on config.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(NewConsoleHandler(os.Stdout, opts))
}

// NewLoggerWithSystem creates a logger with a system prefix (e.g. "import",
// "reconcile", "api"), useful for scoped loggers handed to subsystems.
func NewLoggerWithSystem(cfg config.LoggingConfig, system string) *slog.Logger {
	return NewLogger(cfg).With("system", system)
}
