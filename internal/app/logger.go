package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a configured slog.Logger based on configuration. When a
// log directory is set, JSON records are additionally written to a rotating
// file alongside the console output.
func NewLogger(cfg *Config) *slog.Logger {
	var console slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	} else {
		console = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	}

	if cfg == nil || cfg.LogDir == "" {
		return slog.New(console)
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "quill.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
	file := slog.NewJSONHandler(rotating, nil)
	return slog.New(fanoutHandler{handlers: []slog.Handler{console, file}})
}

// fanoutHandler duplicates records across handlers. The first error wins but
// every handler still sees the record.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanoutHandler) Handle(ctx context.Context, rec slog.Record) error {
	var first error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, rec.Level) {
			continue
		}
		if err := hh.Handle(ctx, rec.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}
