// Package logging builds the service's structured slog loggers. Every
// component logs through a module-scoped child so output can be filtered by
// the "module" attribute.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Tutortoise/catascan-service/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing to w (stderr when nil) in the configured format.
func New(cfg config.LogConfig, debug bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Output returns the writer New should use: a rotating file when cfg.File is
// set, otherwise fallback. The close func releases the file.
func Output(cfg config.LogConfig, fallback io.Writer) (io.Writer, func() error) {
	if cfg.File == "" {
		return fallback, func() error { return nil }
	}
	w := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return w, w.Close
}

// Module returns a child logger tagged with the component name.
func Module(l *slog.Logger, name string) *slog.Logger {
	return l.With("module", name)
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
