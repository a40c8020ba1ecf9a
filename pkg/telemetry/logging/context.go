package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// UserKey is the context key for learner identifiers.
	UserKey contextKey = "user_id"

	// OperationKey is the context key for the engine operation name.
	OperationKey contextKey = "operation"

	// JobKey is the context key for maintenance job names.
	JobKey contextKey = "job"
)

// WithUser adds a learner identifier to the context.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserKey, userID)
}

// GetUser retrieves the learner identifier from the context.
func GetUser(ctx context.Context) string {
	if user, ok := ctx.Value(UserKey).(string); ok {
		return user
	}
	return ""
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, OperationKey, op)
}

// GetOperation retrieves the operation name from the context.
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(OperationKey).(string); ok {
		return op
	}
	return ""
}

// WithJob adds a maintenance job name to the context.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, JobKey, job)
}

// GetJob retrieves the maintenance job name from the context.
func GetJob(ctx context.Context) string {
	if job, ok := ctx.Value(JobKey).(string); ok {
		return job
	}
	return ""
}

// FromContext returns logger extended with the fields carried by ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	fields := extractContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if user := GetUser(ctx); user != "" {
		fields = append(fields, string(UserKey), user)
	}
	if op := GetOperation(ctx); op != "" {
		fields = append(fields, string(OperationKey), op)
	}
	if job := GetJob(ctx); job != "" {
		fields = append(fields, string(JobKey), job)
	}

	return fields
}
