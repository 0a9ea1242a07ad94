package event

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware logs every dispatch's before/after outcome.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return &loggingMiddleware{logger: logger}
}

type loggingMiddleware struct {
	logger *slog.Logger
}

func (m *loggingMiddleware) BeforeDispatch(ctx context.Context, evt Event) (Event, Verdict, string) {
	if m.logger != nil {
		m.logger.Debug("dispatching event", slog.String("event_id", evt.ID()), slog.String("event_type", evt.Type()))
	}
	return evt, Continue, ""
}

func (m *loggingMiddleware) AfterDispatch(ctx context.Context, evt Event, result DispatchResult) {
	if m.logger == nil {
		return
	}
	if result.Rejected {
		m.logger.Info("event rejected", slog.String("event_id", evt.ID()), slog.String("reason", result.RejectReason))
		return
	}
	failures := 0
	for _, r := range result.Results {
		if !r.Success {
			failures++
		}
	}
	m.logger.Debug("dispatch complete",
		slog.String("event_id", evt.ID()),
		slog.Int("handlers", len(result.Results)),
		slog.Int("failures", failures),
	)
}

// MetricsMiddleware reports dispatch counts and latency via the
// supplied callbacks, decoupling event from a specific metrics
// backend.
func MetricsMiddleware(onPublish func(eventType string), onDispatch func(eventType string, duration time.Duration, failures int)) Middleware {
	return &metricsMiddleware{onPublish: onPublish, onDispatch: onDispatch}
}

type metricsMiddleware struct {
	onPublish  func(eventType string)
	onDispatch func(eventType string, duration time.Duration, failures int)
}

func (m *metricsMiddleware) BeforeDispatch(ctx context.Context, evt Event) (Event, Verdict, string) {
	if m.onPublish != nil {
		m.onPublish(evt.Type())
	}
	return withDispatchStart(evt, time.Now()), Continue, ""
}

func (m *metricsMiddleware) AfterDispatch(ctx context.Context, evt Event, result DispatchResult) {
	if m.onDispatch == nil {
		return
	}
	start, ok := dispatchStart(evt)
	var duration time.Duration
	if ok {
		duration = time.Since(start)
	}
	failures := 0
	for _, r := range result.Results {
		if !r.Success {
			failures++
		}
	}
	m.onDispatch(evt.Type(), duration, failures)
}

// RecoveryMiddleware recovers panics raised inside its own
// BeforeDispatch only; the chain runs each middleware's hook in turn,
// so panics in other middleware are not caught by it (handler panics
// are recovered inside the bus's per-handler goroutine).
func RecoveryMiddleware() Middleware {
	return &recoveryMiddleware{}
}

type recoveryMiddleware struct{}

func (m *recoveryMiddleware) BeforeDispatch(ctx context.Context, evt Event) (next Event, verdict Verdict, reason string) {
	defer func() {
		if r := recover(); r != nil {
			next, verdict, reason = evt, Reject, "middleware panic"
		}
	}()
	return evt, Continue, ""
}

func (m *recoveryMiddleware) AfterDispatch(context.Context, Event, DispatchResult) {}

// dispatchStartTaggedEvent lets MetricsMiddleware carry a start time
// alongside an event by wrapping it, without introducing a side
// channel the rest of the system needs to know about. Only used internally.
type dispatchStartTaggedEvent struct {
	Event
	start time.Time
}

func withDispatchStart(evt Event, t time.Time) Event {
	return &dispatchStartTaggedEvent{Event: evt, start: t}
}

func dispatchStart(evt Event) (time.Time, bool) {
	if tagged, ok := evt.(*dispatchStartTaggedEvent); ok {
		return tagged.start, true
	}
	return time.Time{}, false
}
