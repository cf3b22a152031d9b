package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds a text or JSON slog logger writing to w (stderr when nil).
func New(format string, debug bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Init installs New as the process-wide default logger.
func Init(format string, debug bool) *slog.Logger {
	l := New(format, debug, nil)
	slog.SetDefault(l)
	return l
}
