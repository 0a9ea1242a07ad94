// Package event implements the in-process event model and pub/sub bus
// that sits at the core of the platform: typed immutable events with
// correlation/causation tracking, a middleware-chained dispatcher, and
// wildcard subscription matching.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the interface every emitted value satisfies. Events are
// immutable once created; deriving a new event from one (NewFromParent)
// always produces a distinct value.
type Event interface {
	ID() string     // 128-bit random identifier
	Type() string   // "namespace.name" or "namespace.name.vN"
	Source() string // component that produced the event

	CorrelationID() string // groups related events across a request
	CausationID() string   // id of the event that directly caused this one

	Timestamp() time.Time
	Version() int // schema version, for C4 validation
	TenantID() string

	Data() any
	DataBytes() []byte
	Tags() map[string]string
}

// Metadata holds the fields common to every event, independent of
// payload shape.
type Metadata struct {
	EventID       string            `json:"id"`
	EventType     string            `json:"type"`
	EventSource   string            `json:"source"`
	CorrelationID string            `json:"correlation_id"`
	CausationID   string            `json:"causation_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion int               `json:"schema_version"`
	TenantID      string            `json:"tenant_id,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// BaseEvent is the generic event implementation. T is the payload
// type, giving callers type-safe access via TypedData while still
// satisfying Event for untyped dispatch.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`

	cachedBytes []byte
}

func (e *BaseEvent[T]) ID() string                   { return e.Meta.EventID }
func (e *BaseEvent[T]) Type() string                 { return e.Meta.EventType }
func (e *BaseEvent[T]) Source() string                { return e.Meta.EventSource }
func (e *BaseEvent[T]) CorrelationID() string        { return e.Meta.CorrelationID }
func (e *BaseEvent[T]) CausationID() string          { return e.Meta.CausationID }
func (e *BaseEvent[T]) Timestamp() time.Time         { return e.Meta.Timestamp }
func (e *BaseEvent[T]) Version() int                 { return e.Meta.SchemaVersion }
func (e *BaseEvent[T]) TenantID() string             { return e.Meta.TenantID }
func (e *BaseEvent[T]) Data() any                    { return e.Payload }
func (e *BaseEvent[T]) TypedData() T                 { return e.Payload }
func (e *BaseEvent[T]) Tags() map[string]string      { return e.Meta.Tags }

// DataBytes returns the JSON-serialized payload, caching the result.
func (e *BaseEvent[T]) DataBytes() []byte {
	if e.cachedBytes == nil {
		e.cachedBytes, _ = json.Marshal(e.Payload)
	}
	return e.cachedBytes
}

// MarshalJSON implements json.Marshaler.
func (e *BaseEvent[T]) MarshalJSON() ([]byte, error) {
	type alias BaseEvent[T]
	return json.Marshal((*alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *BaseEvent[T]) UnmarshalJSON(data []byte) error {
	type alias BaseEvent[T]
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	e.cachedBytes = nil
	return nil
}

// EventOption configures event construction.
type EventOption func(*eventConfig)

type eventConfig struct {
	id            string
	correlationID string
	causationID   string
	timestamp     time.Time
	version       int
	tags          map[string]string
}

func WithEventID(id string) EventOption {
	return func(c *eventConfig) { c.id = id }
}

func WithCorrelationID(id string) EventOption {
	return func(c *eventConfig) { c.correlationID = id }
}

func WithCausationID(id string) EventOption {
	return func(c *eventConfig) { c.causationID = id }
}

func WithTimestamp(t time.Time) EventOption {
	return func(c *eventConfig) { c.timestamp = t }
}

func WithSchemaVersion(v int) EventOption {
	return func(c *eventConfig) { c.version = v }
}

func WithTags(tags map[string]string) EventOption {
	return func(c *eventConfig) { c.tags = tags }
}

// New creates an event with the given type, source, tenant, and
// payload. If no correlation id is supplied, the event's own id seeds
// a fresh correlation chain.
func New[T any](eventType, source, tenantID string, payload T, opts ...EventOption) *BaseEvent[T] {
	cfg := &eventConfig{
		id:        uuid.New().String(),
		timestamp: time.Now(),
		version:   1,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.correlationID == "" {
		cfg.correlationID = cfg.id
	}

	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:       cfg.id,
			EventType:     eventType,
			EventSource:   source,
			CorrelationID: cfg.correlationID,
			CausationID:   cfg.causationID,
			Timestamp:     cfg.timestamp,
			SchemaVersion: cfg.version,
			TenantID:      tenantID,
			Tags:          cfg.tags,
		},
		Payload: payload,
	}
}

// NewFromParent creates an event caused by parent, inheriting its
// correlation id and tenant, and setting causation id to parent's id.
func NewFromParent[T any](parent Event, eventType, source string, payload T, opts ...EventOption) *BaseEvent[T] {
	parentOpts := []EventOption{
		WithCorrelationID(parent.CorrelationID()),
		WithCausationID(parent.ID()),
	}
	allOpts := append(parentOpts, opts...)
	return New(eventType, source, parent.TenantID(), payload, allOpts...)
}

// NewAny creates an event with an untyped payload, convenient for
// dynamic dispatch paths that do not need typed access.
func NewAny(eventType, source, tenantID string, payload any, opts ...EventOption) *BaseEvent[any] {
	return New(eventType, source, tenantID, payload, opts...)
}

// NewAnyFromParent is NewFromParent with an untyped payload.
func NewAnyFromParent(parent Event, eventType, source string, payload any, opts ...EventOption) *BaseEvent[any] {
	return NewFromParent(parent, eventType, source, payload, opts...)
}

// Handler processes events and optionally returns derived events for
// fan-out. Every handler has a stable ID used for DLQ correlation and
// idempotent re-subscription.
type Handler interface {
	ID() string
	Handle(ctx context.Context, evt Event) ([]Event, error)
}

// HandlerFunc adapts a function plus a stable id to the Handler
// interface.
type HandlerFunc struct {
	HandlerID string
	Fn        func(ctx context.Context, evt Event) ([]Event, error)
}

func (f HandlerFunc) ID() string { return f.HandlerID }

func (f HandlerFunc) Handle(ctx context.Context, evt Event) ([]Event, error) {
	return f.Fn(ctx, evt)
}

// TypedHandler wraps a function that handles a specific payload type,
// unmarshaling through JSON when the event arrives with an untyped
// map[string]any payload (as happens after a JSON round trip, e.g.
// replay from the store).
func TypedHandler[T any](id string, fn func(ctx context.Context, payload T, meta Metadata) ([]Event, error)) Handler {
	return &typedHandler[T]{id: id, fn: fn}
}

type typedHandler[T any] struct {
	id string
	fn func(ctx context.Context, payload T, meta Metadata) ([]Event, error)
}

func (h *typedHandler[T]) ID() string { return h.id }

func (h *typedHandler[T]) Handle(ctx context.Context, evt Event) ([]Event, error) {
	var payload T
	switch d := evt.Data().(type) {
	case T:
		payload = d
	case map[string]any:
		bytes, err := json.Marshal(d)
		if err != nil {
			return nil, &EventError{Event: evt, Handler: h.id, Message: "failed to marshal event data", Err: err}
		}
		if err := json.Unmarshal(bytes, &payload); err != nil {
			return nil, &EventError{Event: evt, Handler: h.id, Message: "failed to unmarshal event data to expected type", Err: err}
		}
	default:
		return nil, &EventError{Event: evt, Handler: h.id, Message: "unexpected payload type"}
	}

	meta := Metadata{
		EventID:       evt.ID(),
		EventType:     evt.Type(),
		EventSource:   evt.Source(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		Timestamp:     evt.Timestamp(),
		SchemaVersion: evt.Version(),
		TenantID:      evt.TenantID(),
		Tags:          evt.Tags(),
	}
	return h.fn(ctx, payload, meta)
}

// Emitter is a narrow capability for publishing events, handed to
// handlers and plugins instead of the full Bus so they cannot
// subscribe or close it (see design note on avoiding back-references
// from handlers into the bus).
type Emitter interface {
	Publish(ctx context.Context, evt Event) error
	PublishSync(ctx context.Context, evt Event) ([]HandlerResult, error)
}
