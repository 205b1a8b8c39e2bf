// Package logger builds the *slog.Logger handed to every converse component.
//
// Three handlers are available: slog's text handler (default), slog's JSON
// handler for services shipping logs elsewhere, and the charmbracelet/log
// handler for colorized interactive output.
package logger

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	prefix  string
	redact  []string
	writers []io.Writer
}

// New creates a *slog.Logger configured by opts.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	var h slog.Handler
	switch {
	case c.json:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source})
	case c.pretty:
		h = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			ReportCaller:    c.source,
			Prefix:          c.prefix,
		})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source})
		if c.prefix != "" {
			h = h.WithAttrs([]slog.Attr{slog.String("component", c.prefix)})
		}
	}

	if len(c.redact) > 0 {
		h = newRedactHandler(h, c.redact)
	}

	return slog.New(h)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// IsTerminal reports whether f is attached to a terminal. Commands use it to
// pick the pretty handler for interactive sessions.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
