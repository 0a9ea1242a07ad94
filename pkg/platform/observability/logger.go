// Package observability provides structured logging, metrics, and
// tracing helpers shared across the event bus, webhook delivery
// engine, and schema/migration components.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Enrich returns a logger with event/tenant identifiers attached so
// every subsequent log line carries them without the caller repeating
// them at each call site.
func Enrich(logger *slog.Logger, tenantID, eventType string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("tenant_id", tenantID),
		slog.String("event_type", eventType),
	)
}

// LogEventDispatch logs the start of dispatching an event to its
// matched handlers.
func LogEventDispatch(logger *slog.Logger, eventID, eventType string, handlerCount int) {
	if logger == nil {
		return
	}
	logger.Debug("dispatching event",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.Int("handler_count", handlerCount),
	)
}

// LogHandlerError logs a handler failure during dispatch.
func LogHandlerError(logger *slog.Logger, eventID, handlerID string, attempt int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("handler failed",
		slog.String("event_id", eventID),
		slog.String("handler_id", handlerID),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// LogEventParked logs an event being moved to the parked-letter queue.
func LogEventParked(logger *slog.Logger, eventID, reason string) {
	if logger == nil {
		return
	}
	logger.Error("event parked",
		slog.String("event_id", eventID),
		slog.String("reason", reason),
	)
}

// LogDeliveryAttempt logs a webhook delivery attempt.
func LogDeliveryAttempt(logger *slog.Logger, jobID, endpointID string, attempt int) {
	if logger == nil {
		return
	}
	logger.Debug("delivering webhook",
		slog.String("job_id", jobID),
		slog.String("endpoint_id", endpointID),
		slog.Int("attempt", attempt),
	)
}

// LogDeliveryResult logs the outcome of a webhook delivery attempt.
func LogDeliveryResult(logger *slog.Logger, jobID, endpointID string, statusCode int, duration time.Duration, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("webhook delivery failed",
			slog.String("job_id", jobID),
			slog.String("endpoint_id", endpointID),
			slog.Int("status_code", statusCode),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("webhook delivered",
		slog.String("job_id", jobID),
		slog.String("endpoint_id", endpointID),
		slog.Int("status_code", statusCode),
		slog.Duration("duration", duration),
	)
}

// LogCircuitTransition logs a circuit breaker state change.
func LogCircuitTransition(logger *slog.Logger, endpointID, from, to string) {
	if logger == nil {
		return
	}
	logger.Info("circuit breaker transition",
		slog.String("endpoint_id", endpointID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogMigrationApply logs an applied migration operation.
func LogMigrationApply(logger *slog.Logger, opKind, table string) {
	if logger == nil {
		return
	}
	logger.Info("applying migration operation",
		slog.String("op", opKind),
		slog.String("table", table),
	)
}

// TimedOperation returns a function that, when called, logs the
// elapsed time since TimedOperation was invoked.
func TimedOperation(logger *slog.Logger, op string) func(err error) {
	start := time.Now()
	return func(err error) {
		if logger == nil {
			return
		}
		elapsed := time.Since(start)
		if err != nil {
			logger.Warn(op+" failed", slog.Duration("elapsed", elapsed), slog.String("error", err.Error()))
			return
		}
		logger.Debug(op+" completed", slog.Duration("elapsed", elapsed))
	}
}

// contextKey avoids collisions with other packages' context keys.
type contextKey string

const loggerContextKey contextKey = "platform_logger"

// WithContext attaches logger to ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext retrieves a logger attached by WithContext, or
// slog.Default() if none is present.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
