package types

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
	loggerKey    contextKey = "logger"
	dryRunKey    contextKey = "dry_run"
)

// WithRequestID stores the request ID in the context. Outbound HTTP clients
// forward it as a trace header.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRunID stores the identifier of the batch run being executed.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID retrieves the batch run identifier from the context.
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithDryRun marks work done for a dry run. Collaborators skip external calls
// and writes they would otherwise make.
func WithDryRun(ctx context.Context) context.Context {
	return context.WithValue(ctx, dryRunKey, true)
}

// IsDryRun reports whether ctx belongs to a dry run.
func IsDryRun(ctx context.Context) bool {
	dry, _ := ctx.Value(dryRunKey).(bool)
	return dry
}

// WithLogger stores a request- or run-scoped logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the scoped logger, or fallback when none is set.
func LoggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
