package runtime

import (
	"log/slog"
	"os"
)

// NewLogger returns the service logger. Local development gets a colourised
// text handler; every other environment logs JSON to stdout.
func NewLogger(service, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	switch env {
	case "local":
		opts.Level = slog.LevelDebug
		h = NewPrettyHandler(os.Stdout, opts)
	case "dev":
		opts.Level = slog.LevelDebug
		h = slog.NewJSONHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", service)
}
