// Package logging configures the process-wide slog logger.
//
// Internal packages take component-scoped loggers derived from the one
// configured here; the cobra entrypoint keeps its own logrus logger for
// CLI-facing output.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup configures the default slog logger and returns it.
// Level is one of "debug", "info", "warn", "error" (case-insensitive);
// anything else falls back to info. JSON output is used when json is true,
// text otherwise.
func Setup(level string, json bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Component returns a logger scoped to a named component.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
