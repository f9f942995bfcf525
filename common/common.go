// Package common holds shared service metadata and logger setup used by
// every binary in this repository.
package common

import (
	"log/slog"
	"os"
)

// PackageName identifies the service in logs and metrics.
const PackageName = "vface-registry"

// Version is the service version reported by the health endpoint.
var Version = "2.0.0"

// LoggingOpts configures the process-wide structured logger.
type LoggingOpts struct {
	// Debug enables debug-level messages.
	Debug bool

	// JSON switches the handler to JSON output (text otherwise).
	JSON bool

	// Service is added as a 'service' attribute on every record.
	Service string

	// Version is added as a 'version' attribute on every record.
	Version string
}

// SetupLogger creates a slog logger according to the provided options.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
