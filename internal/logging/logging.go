// Package logging configures slog and turns lifecycle events into log lines.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
	reqid "github.com/hanpama/gqlstream/internal/reqid"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output io.Writer
}

// New builds a logger from cfg. Output defaults to stderr.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler), nil
}

// Setup builds a logger from cfg and makes it the default.
func Setup(cfg Config) (*slog.Logger, error) {
	logger, err := New(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel maps a level name to a slog.Level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Subscribe logs lifecycle events published on the global bus to logger.
// The returned func removes the subscriptions.
func Subscribe(logger *slog.Logger) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			logger.LogAttrs(ctx, slog.LevelInfo, "http request",
				withRequestID(ctx,
					slog.String("method", e.Request.Method),
					slog.String("path", e.Request.URL.Path),
					slog.Int("status", e.Status),
					slog.Duration("duration", e.Duration),
				)...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			attrs := withRequestID(ctx,
				slog.String("type", e.OperationType),
				slog.String("operation", e.OperationName),
				slog.Duration("duration", e.Duration),
			)
			if len(e.Errors) > 0 {
				attrs = append(attrs, slog.Int("errors", len(e.Errors)))
			}
			logger.LogAttrs(ctx, slog.LevelDebug, "graphql operation", attrs...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionStart) {
			logger.LogAttrs(ctx, slog.LevelInfo, "subscription started",
				withRequestID(ctx,
					slog.String("id", e.ID),
					slog.String("transport", e.Transport),
					slog.String("operation", e.OperationName),
				)...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionFinish) {
			level := slog.LevelInfo
			attrs := withRequestID(ctx,
				slog.String("id", e.ID),
				slog.String("transport", e.Transport),
				slog.String("state", e.State),
				slog.Int("frames", e.Frames),
				slog.Duration("duration", e.Duration),
			)
			if e.Err != nil {
				attrs = append(attrs, slog.Any("error", e.Err))
			}
			if e.State == "failed" {
				level = slog.LevelError
			}
			logger.LogAttrs(ctx, level, "subscription finished", attrs...)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func withRequestID(ctx context.Context, attrs ...slog.Attr) []slog.Attr {
	if id, ok := reqid.FromContext(ctx); ok {
		return append([]slog.Attr{slog.String("request_id", id)}, attrs...)
	}
	return attrs
}
