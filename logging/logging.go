// Package logging builds the key/value loggers shared by the HTTP pipeline and
// the Temporal worker, so both sides emit the same structured records.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.temporal.io/sdk/log"
)

// New returns a Temporal-compatible logger writing JSON or text records to stderr
func New(format, level string) log.Logger {
	return log.NewStructuredLogger(slog.New(handler(os.Stderr, format, level)))
}

// Nop returns a logger that drops everything
func Nop() log.Logger {
	return log.NewStructuredLogger(slog.New(slog.DiscardHandler))
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l log.Logger) log.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func handler(w io.Writer, format, level string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
