package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger configures the global slog default logger from the logging
// section of the configuration.
//
// format "json" selects JSONHandler (what production log pipelines ingest);
// anything else selects the human-readable TextHandler for local development.
// level is one of "debug", "info", "warn", "error" (case-insensitive) and
// defaults to "info".
//
// The logger is installed as the process default. Handlers, repositories, and
// background jobs call slog.Info/Warn/Error directly rather than carrying a
// *slog.Logger around; authentication failure reasons and audit shipping
// errors all land here.
func SetupLogger(format, level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug, // include file:line only when debugging
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("structured logger ready", "format", format, "level", lvl.String())
}
