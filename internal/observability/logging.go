package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/eventrelay/internal/correlation"
)

// LogContext holds structured logging context information.
type LogContext struct {
	EventID       string
	EventType     string
	ConsumerGroup string
	Subject       string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithEventID adds an event record identifier to the context.
func WithEventID(ctx context.Context, id string) context.Context {
	lc := extractLogContext(ctx)
	lc.EventID = id
	return context.WithValue(ctx, logContextKey, lc)
}

// WithEventType adds an event type to the context.
func WithEventType(ctx context.Context, eventType string) context.Context {
	lc := extractLogContext(ctx)
	lc.EventType = eventType
	return context.WithValue(ctx, logContextKey, lc)
}

// WithConsumerGroup adds a consumer group name to the context.
func WithConsumerGroup(ctx context.Context, group string) context.Context {
	lc := extractLogContext(ctx)
	lc.ConsumerGroup = group
	return context.WithValue(ctx, logContextKey, lc)
}

// WithSubject adds a broker subject to the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	lc := extractLogContext(ctx)
	lc.Subject = subject
	return context.WithValue(ctx, logContextKey, lc)
}

// extractLogContext retrieves or creates a LogContext from the context.
func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// getLogAttrs returns slog attributes from the context's LogContext. The
// correlation identifier, when present, is always included so every log line
// in a message's lifecycle can be joined by tracing tools.
func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if id := correlation.From(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}
	if lc.EventID != "" {
		attrs = append(attrs, slog.String("event_id", lc.EventID))
	}
	if lc.EventType != "" {
		attrs = append(attrs, slog.String("event_type", lc.EventType))
	}
	if lc.ConsumerGroup != "" {
		attrs = append(attrs, slog.String("consumer_group", lc.ConsumerGroup))
	}
	if lc.Subject != "" {
		attrs = append(attrs, slog.String("subject", lc.Subject))
	}

	return attrs
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelInfo, msg, allAttrs...)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelWarn, msg, allAttrs...)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelError, msg, allAttrs...)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelDebug, msg, allAttrs...)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}
