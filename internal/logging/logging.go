// Package logging configures structured logging for the extension status
// components.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	slogctx "github.com/veqryn/slog-context"
)

// Key constants for structured log fields.
const (
	KeyComponent = "component"
	KeyPackage   = "package"
	KeyAppDir    = "appDir"
	KeyError     = "error"
)

// switchableHandler lets loggers created before Init pick up the configured
// handler once Init runs.
type switchableHandler struct {
	current *atomic.Pointer[handlerBox]
	attrs   []slog.Attr
	groups  []string
}

func (h *switchableHandler) materialize() slog.Handler {
	handler := h.current.Load().h
	for _, group := range h.groups {
		handler = handler.WithGroup(group)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler
}

func (h *switchableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.materialize().Enabled(ctx, level)
}

func (h *switchableHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.materialize().Handle(ctx, record)
}

func (h *switchableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &switchableHandler{current: h.current, attrs: merged, groups: h.groups}
}

func (h *switchableHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &switchableHandler{current: h.current, attrs: h.attrs, groups: groups}
}

var (
	current       = newCurrent(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	defaultLogger = slog.New(&switchableHandler{current: current})
)

// handlerBox keeps the stored type fixed while the handler behind it changes
// between text and JSON.
type handlerBox struct {
	h slog.Handler
}

func newCurrent(h slog.Handler) *atomic.Pointer[handlerBox] {
	p := &atomic.Pointer[handlerBox]{}
	p.Store(&handlerBox{h: h})
	return p
}

// Init configures the global handler.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stderr)
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	current.Store(&handlerBox{h: handler})
	slog.SetDefault(defaultLogger)
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return defaultLogger.With(slog.String(KeyComponent, component))
}

// NewContext returns a new context carrying the given logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return slogctx.NewCtx(ctx, logger)
}

// FromContext extracts the logger from context, falling back to slog's
// default, which Init points at the configured handler.
func FromContext(ctx context.Context) *slog.Logger {
	return slogctx.FromCtx(ctx)
}

// ParseLevel maps a level name to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
