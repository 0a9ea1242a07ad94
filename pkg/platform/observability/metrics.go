package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records platform metrics for the event bus and
// webhook delivery engine. Use NewMetricsRecorder() for OTel metrics
// or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventDispatch records an event dispatch to a single
	// handler, its duration, and whether it errored.
	RecordEventDispatch(ctx context.Context, eventType string, duration time.Duration, err error)

	// RecordEventPublish records an event being published to the bus.
	RecordEventPublish(ctx context.Context, eventType string)

	// RecordDelivery records a webhook delivery attempt outcome.
	RecordDelivery(ctx context.Context, endpointID string, success bool, duration time.Duration)

	// RecordDLQDepth records the current depth of the dead-letter
	// queue.
	RecordDLQDepth(ctx context.Context, depth int64)
}

type otelMetrics struct {
	eventDispatches  metric.Int64Counter
	eventLatency     metric.Float64Histogram
	eventErrors      metric.Int64Counter
	eventPublishes   metric.Int64Counter
	deliveryAttempts metric.Int64Counter
	deliveryLatency  metric.Float64Histogram
	dlqDepth         metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("better-auth-go/platform")

	eventDispatches, err := meter.Int64Counter("platform.event.dispatches",
		metric.WithDescription("Number of event handler dispatches"))
	if err != nil {
		return nil, err
	}

	eventLatency, err := meter.Float64Histogram("platform.event.dispatch_latency_ms",
		metric.WithDescription("Event handler dispatch latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	eventErrors, err := meter.Int64Counter("platform.event.errors",
		metric.WithDescription("Number of event handler errors"))
	if err != nil {
		return nil, err
	}

	eventPublishes, err := meter.Int64Counter("platform.event.publishes",
		metric.WithDescription("Number of events published to the bus"))
	if err != nil {
		return nil, err
	}

	deliveryAttempts, err := meter.Int64Counter("platform.webhook.delivery_attempts",
		metric.WithDescription("Number of webhook delivery attempts"))
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("platform.webhook.delivery_latency_ms",
		metric.WithDescription("Webhook delivery latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	dlqDepth, err := meter.Int64Histogram("platform.dlq.depth",
		metric.WithDescription("Dead-letter queue depth"))
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventDispatches:  eventDispatches,
		eventLatency:     eventLatency,
		eventErrors:      eventErrors,
		eventPublishes:   eventPublishes,
		deliveryAttempts: deliveryAttempts,
		deliveryLatency:  deliveryLatency,
		dlqDepth:         dlqDepth,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by OpenTelemetry.
// Falls back to a no-op recorder if metric instrument creation fails.
//
// Configure the global meter provider before calling this:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder", slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordEventDispatch(ctx context.Context, eventType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("event_type", eventType)}
	m.eventDispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.eventLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.eventErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordEventPublish(ctx context.Context, eventType string) {
	m.eventPublishes.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *otelMetrics) RecordDelivery(ctx context.Context, endpointID string, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("endpoint_id", endpointID),
		attribute.Bool("success", success),
	}
	m.deliveryAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

func (m *otelMetrics) RecordDLQDepth(ctx context.Context, depth int64) {
	m.dlqDepth.Record(ctx, depth)
}
