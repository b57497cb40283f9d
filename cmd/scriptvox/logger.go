package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"

	"github.com/MrWong99/scriptvox/internal/config"
)

// newLogger builds the process logger. level stays live so config reloads
// can change verbosity without rebuilding handlers.
func newLogger(w io.Writer, level *slog.LevelVar, format config.LogFormat) *slog.Logger {
	switch format {
	case config.LogJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case config.LogPretty:
		charm := log.NewWithOptions(w, log.Options{
			Level:           log.DebugLevel,
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		})
		return slog.New(leveled{Handler: charm, level: level})
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
}

// leveled gates a handler on a dynamic level.
type leveled struct {
	slog.Handler
	level slog.Leveler
}

func (h leveled) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h leveled) WithAttrs(attrs []slog.Attr) slog.Handler {
	return leveled{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h leveled) WithGroup(name string) slog.Handler {
	return leveled{Handler: h.Handler.WithGroup(name), level: h.level}
}
