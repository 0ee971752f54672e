// Package logging builds the process logger from the runtime configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fluentfuture/leadscout/internal/config"
)

// New constructs the logger the binaries use, writing to stdout.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter constructs a logger for the given destination. Tests pass a
// buffer here to assert on emitted records.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}
