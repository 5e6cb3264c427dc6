package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

// LoggerContextKey is the context key for the logger
const LoggerContextKey ContextKey = "logger"

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context, falling back to the
// default slog logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPEnd logs a completed request at a level derived from its status.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)

	sl.logger.WithComponent(ComponentHTTP).LogContext(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogTransactionChanged records a successful create, update or delete.
func (sl *StructuredLogger) LogTransactionChanged(ctx context.Context, op, orgID, projectID, id, typ string, amountCents int64, certainty string) {
	fields := NewFields().
		WithProject(orgID, projectID).
		WithTransaction(id, typ, amountCents, certainty).
		WithOperation(op)

	sl.logger.WithComponent(ComponentTreasury).InfoContext(ctx, "Transaction "+op+"d", fields.ToSlice()...)
}

// LogBudgetAlert records a budget line above its alert threshold.
func (sl *StructuredLogger) LogBudgetAlert(ctx context.Context, orgID, projectID, categoryID, severity string, usedPercent float64, msg string) {
	fields := NewFields().WithProject(orgID, projectID)
	fields[FieldCategoryID] = categoryID
	fields[FieldSeverity] = severity
	fields[FieldUsedPercent] = usedPercent

	sl.logger.WithComponent(ComponentWorker).WarnContext(ctx, "Budget alert: "+msg, fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err).WithOperation(operation)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, fields.ToSlice()...)
}
