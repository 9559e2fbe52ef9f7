package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/coreoidc/authd/httpapi"
)

var logFormats = []string{"json", "text"}

// newLogger builds the process-wide slog.Logger, grounded on cmd/dex/logger.go: a handler wrapper
// pulls the request ID and remote IP httpapi's middleware attaches to the request context and
// attaches them to every log record emitted during that request.
func newLogger(level slog.Level, format string) (*slog.Logger, error) {
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("log format is not one of the supported values (%s): %s", strings.Join(logFormats, ", "), format)
	}
	return slog.New(requestContextHandler{handler: handler}), nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log level is not one of the supported values (debug, info, warn, error): %s", level)
	}
}

var _ slog.Handler = requestContextHandler{}

type requestContextHandler struct {
	handler slog.Handler
}

func (h requestContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h requestContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if v, ok := ctx.Value(httpapi.RequestKeyRemoteIP).(string); ok {
		record.AddAttrs(slog.String(string(httpapi.RequestKeyRemoteIP), v))
	}
	if v, ok := ctx.Value(httpapi.RequestKeyRequestID).(string); ok {
		record.AddAttrs(slog.String(string(httpapi.RequestKeyRequestID), v))
	}
	return h.handler.Handle(ctx, record)
}

func (h requestContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestContextHandler{h.handler.WithAttrs(attrs)}
}

func (h requestContextHandler) WithGroup(name string) slog.Handler {
	return requestContextHandler{h.handler.WithGroup(name)}
}
