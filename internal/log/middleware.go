package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// NewContext stores logger in ctx.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext returns the request logger, or one built on the slog default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// LogHTTPStart logs the start of a request at debug level.
func LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().WithRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), clientIP)
	FromContext(ctx).DebugContext(ctx, "HTTP request started", fields.Args()...)
}

// LogHTTPEnd logs request completion, warning on 4xx and erroring on 5xx.
func LogHTTPEnd(ctx context.Context, r *http.Request, status int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	fields := NewFields().
		WithRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", clientIP).
		WithResponse(status, durationMs)
	FromContext(ctx).Log(ctx, level, "HTTP request completed", fields.Args()...)
}
