package entity

import (
	"context"
	"time"
)

// Logger is the slog-style structured logging interface consumed by the
// repository and the storage engines. *slog.Logger satisfies it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger is a context-aware logging interface for backends that
// support trace correlation through the context.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector collects operational metrics from repository operations.
// It is dependency-free so that any metrics backend can implement it.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware
// variants. The repository prefers these when the configured collector
// implements them, falling back to the base interface otherwise.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
}

// SpanContext represents an active tracing span.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector collects distributed tracing information from repository
// operations. Like MetricsCollector it is dependency-free; oteladapters
// provides an OpenTelemetry-backed implementation.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// Metric and label names recorded by the repository.
const (
	RepositoryFindDurationMetric   = "entity_repository_find_duration"
	RepositoryCommitDurationMetric = "entity_repository_commit_duration"
	RepositoryCommitRetriesMetric  = "entity_repository_commit_retries"

	LabelEntityName = "entity_name"
	LabelOperation  = "operation"
	LabelStatus     = "status"

	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
)
