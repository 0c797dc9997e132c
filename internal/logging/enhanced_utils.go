package logging

import (
	"context"
	"time"

	coreerrors "mdvec-core/internal/errors"
)

// LogField provides a structured way to add fields to logs.
type LogField struct {
	Key   string
	Value interface{}
}

// EnhancedLogger wraps Logger with operation-timing and error-kind helpers.
type EnhancedLogger struct {
	Logger
	component string
}

// NewEnhancedLogger creates an enhanced logger for a component.
func NewEnhancedLogger(component string) *EnhancedLogger {
	baseLogger := NewLogger(INFO)
	return &EnhancedLogger{
		Logger:    baseLogger.WithComponent(component),
		component: component,
	}
}

// WithContext binds the trace id found on ctx, if any.
func (l *EnhancedLogger) WithContext(ctx context.Context) *EnhancedLogger {
	traceID := getTraceIDFromContext(ctx)
	return &EnhancedLogger{Logger: l.Logger.WithTraceID(traceID), component: l.component}
}

// WithError logs err, including its CoreError kind when present.
func (l *EnhancedLogger) WithError(err error) *EnhancedLogger {
	if err == nil {
		return l
	}
	if ce, ok := err.(*coreerrors.CoreError); ok {
		l.Error("operation failed", "error", ce.Error(), "kind", string(ce.Kind))
	} else {
		l.Error("operation failed", "error", err.Error())
	}
	return l
}

// LogOperation logs the start and completion (or failure) of fn.
func (l *EnhancedLogger) LogOperation(operation string, fn func() error) error {
	startTime := time.Now()
	l.Info("starting operation", "operation", operation)

	err := fn()
	duration := time.Since(startTime)

	if err != nil {
		l.Error("operation failed", "operation", operation, "duration_ms", duration.Milliseconds(), "error", err.Error())
		return err
	}

	l.Info("operation completed", "operation", operation, "duration_ms", duration.Milliseconds())
	return nil
}

// LogSlowOperation flags an operation that exceeded its expected duration.
func (l *EnhancedLogger) LogSlowOperation(operation string, duration, expected time.Duration) {
	l.Warn("slow operation detected",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"expected_ms", expected.Milliseconds(),
		"slowdown_factor", float64(duration)/float64(expected),
	)
}

func getTraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// Component loggers for the core's pipeline stages.
var (
	SyncLogger      = NewEnhancedLogger("syncengine")
	ChunkingLogger  = NewEnhancedLogger("chunking")
	SearchLogger    = NewEnhancedLogger("search")
	VectorLogger    = NewEnhancedLogger("vectorindex")
	SyncStateLogger = NewEnhancedLogger("syncstate")
)

// GetComponentLogger returns a fresh enhanced logger for component.
func GetComponentLogger(component string) *EnhancedLogger {
	return NewEnhancedLogger(component)
}
