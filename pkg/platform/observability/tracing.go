package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("better-auth-go/platform")

// SpanManager handles trace span lifecycle for event dispatch and
// webhook delivery. Use NewSpanManager() for OTel tracing or
// NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDispatchSpan starts a span for dispatching a single event.
	StartDispatchSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span)

	// StartDeliverySpan starts a span for a webhook delivery attempt.
	StartDeliverySpan(ctx context.Context, endpointID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager backed by OpenTelemetry. Uses
// the global tracer provider; configure it before calling this.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "platform.event.dispatch",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("event.id", eventID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartDeliverySpan(ctx context.Context, endpointID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "platform.webhook.deliver",
		trace.WithAttributes(attribute.String("endpoint.id", endpointID)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
