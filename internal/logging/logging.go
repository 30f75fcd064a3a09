// Package logging configures the process-wide slog default and hands out
// component-scoped loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the global slog default. If w is nil, os.Stderr is used.
// Level is one of "debug", "info", "warn", "error"; format must be "text" or
// "json". Unknown values fall back to info and text.
func Init(level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	slog.SetDefault(slog.New(handler))
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

// New returns a logger carrying a "component" attribute for module-scoped
// logging.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}
