// Package logger builds the slog loggers handed to every component. There is
// no package-level logger; callers pass the result of New explicitly.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

// Config selects the handler chain built by New.
type Config struct {
	// Level is a name accepted by ParseLevel. Default: INFO
	Level string
	// Format is "json" or "text". Default: json
	Format string
	// OTEL exports records over OTLP/gRPC instead of writing them locally.
	// The exporter reads the standard OTEL_EXPORTER_OTLP_* variables.
	OTEL bool
	// ServiceName identifies the process in exported records.
	ServiceName string
	// SampleRate keeps one out of every SampleRate warnings and errors.
	// Values below 2 keep everything.
	SampleRate int
}

// New builds a logger writing to w. The returned shutdown function flushes
// the OTEL exporter and is a no-op otherwise.
func New(ctx context.Context, cfg Config, w io.Writer) (*slog.Logger, func(context.Context) error, error) {
	level := LevelInfo
	if cfg.Level != "" {
		var err error
		if level, err = ParseLevel(cfg.Level); err != nil {
			return nil, nil, err
		}
	}

	var (
		handler  slog.Handler
		shutdown = func(context.Context) error { return nil }
	)
	switch {
	case cfg.OTEL:
		h, fn, err := otelHandler(ctx, cfg.ServiceName)
		if err != nil {
			return nil, nil, err
		}
		handler = &levelHandler{level: level, handler: h}
		shutdown = fn
	case cfg.Format == "" || strings.EqualFold(cfg.Format, "json"):
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: levelNames})
	case strings.EqualFold(cfg.Format, "text"):
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: levelNames})
	default:
		return nil, nil, fmt.Errorf("unknown log format: %s (must be json or text)", cfg.Format)
	}

	if cfg.SampleRate > 1 {
		handler = &samplingHandler{rate: cfg.SampleRate, handler: handler}
	}
	return slog.New(handler), shutdown, nil
}

// otelHandler bridges slog to an OTLP log exporter.
func otelHandler(ctx context.Context, serviceName string) (slog.Handler, func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = "specetl"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	h := otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider))
	return h, provider.Shutdown, nil
}

// levelHandler wraps a handler to filter by level
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// samplingHandler drops all but one in rate records at WARN and ERROR.
// Lower levels and FATAL always pass.
type samplingHandler struct {
	rate    int
	handler slog.Handler
}

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= LevelWarning && r.Level < LevelFatal && rand.Intn(h.rate) != 0 {
		return nil
	}
	return h.handler.Handle(ctx, r)
}

func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{rate: h.rate, handler: h.handler.WithAttrs(attrs)}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{rate: h.rate, handler: h.handler.WithGroup(name)}
}

// levelNames prints the custom levels by name instead of "DEBUG-4" and
// "ERROR+4".
func levelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}
	switch a.Value.Any() {
	case LevelTrace:
		a.Value = slog.StringValue("TRACE")
	case LevelFatal:
		a.Value = slog.StringValue("FATAL")
	}
	return a
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}
