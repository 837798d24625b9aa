package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the service-wide slog.Logger. LOG_FORMAT=json switches
// to the JSON handler for log shippers; anything else stays human-readable.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
}
