package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production emits JSON for the log
// pipeline; everywhere else a text handler reads better next to the SPA dev
// server. Every record carries the service name so the API and the worker
// can share one stream.
func NewLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	return slog.New(handler).With(slog.String("service", "fabrica"))
}
