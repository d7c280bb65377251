// Package logger provides the configured zerolog logger.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to stdout at info level.
func New(serviceName string) zerolog.Logger {
	return NewWithWriter(serviceName, "info", os.Stdout)
}

// NewWithWriter returns a logger writing to w at the named level. An
// unknown level falls back to info.
func NewWithWriter(serviceName, level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}
