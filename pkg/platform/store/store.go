// Package store implements the append-only per-stream event store
// (C3): ordered persistence with snapshots, cursor-paginated queries,
// and live stream subscriptions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/event"
)

// Sentinel errors returned by EventStore implementations.
var (
	ErrNotFound     = errors.New("store: not found")
	ErrStoreClosed  = errors.New("store: closed")
	ErrBadCursor    = errors.New("store: invalid cursor")
	ErrVersionGone  = errors.New("store: requested version no longer available")
)

// DefaultStreamID is used for events that do not carry an explicit
// stream id.
const DefaultStreamID = "_default"

// StoredEvent is an Event that has been durably appended: it carries
// the stream it belongs to, its per-stream version (dense, starting
// at 1), and the store-wide global sequence number.
//
// StreamVersion (not "Version") to avoid colliding with the embedded
// Event.Version() schema-version accessor.
type StoredEvent struct {
	event.Event
	StreamID      string
	StreamVersion int64
	GlobalSeq     int64
}

// EventSnapshot is a materialized state captured at a specific stream
// version, used to accelerate rebuilds without replaying the whole
// stream.
type EventSnapshot struct {
	StreamID  string
	Version   int64
	State     []byte
	CreatedAt time.Time
}

// EventOrdering selects the direction a Query walks the global
// sequence in.
type EventOrdering int

const (
	Ascending EventOrdering = iota
	Descending
)

// EventQuery filters and paginates a store scan.
type EventQuery struct {
	TypePattern   string // e.g. "user.*"; empty matches all types
	Source        string // empty matches all sources
	CorrelationID string // empty matches all
	From          time.Time
	To            time.Time // zero means no upper bound
	Ordering      EventOrdering
	Cursor        string // opaque, from a previous EventStream.NextCursor
	Limit         int    // 0 means a store-defined default
}

// EventStream is one page of a Query result.
type EventStream struct {
	Events     []StoredEvent
	NextCursor string // empty when there are no more pages
}

// StreamSubscription is a live tail over a single stream: it only
// yields events appended after the subscription was created, in
// version order, without gaps. Combine with GetStream for catch-up.
type StreamSubscription interface {
	Events() <-chan StoredEvent
	Close() error
}

// EventStore is the C3 contract. The in-memory implementation
// (MemoryEventStore) is the only implementation required to pass the
// full property suite; disk-backed adapters are external, though this
// module ships a SQLite-backed reference adapter (see sqlite.go).
type EventStore interface {
	// Append assigns the event the next version in its stream (or
	// DefaultStreamID if it carries none) and the next global
	// sequence number, atomically with respect to that stream.
	Append(ctx context.Context, evt event.Event) (StoredEvent, error)

	// AppendBatch appends every event to its respective stream,
	// all-or-nothing per stream: if any event destined for a given
	// stream fails, none of that stream's events in the batch are
	// applied, though other streams in the same batch may succeed.
	AppendBatch(ctx context.Context, events []event.Event) ([]StoredEvent, error)

	// Get retrieves a single stored event by id.
	Get(ctx context.Context, id string) (StoredEvent, error)

	// GetStream returns every event in streamID at version >=
	// fromVersion (1 if fromVersion is 0), ordered by version
	// ascending.
	GetStream(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)

	// GetByCorrelation returns every stored event sharing
	// correlationID, ordered by global sequence ascending.
	GetByCorrelation(ctx context.Context, correlationID string) ([]StoredEvent, error)

	// Query scans the store according to q, returning one page.
	Query(ctx context.Context, q EventQuery) (EventStream, error)

	// SubscribeToStream opens a live tail on streamID.
	SubscribeToStream(ctx context.Context, streamID string) (StreamSubscription, error)

	// CreateSnapshot records a snapshot for streamID at version.
	// Snapshots never move backwards: calling this with a version
	// lower than the current latest is a no-op that returns nil.
	CreateSnapshot(ctx context.Context, streamID string, version int64, state []byte) error

	// GetLatestSnapshot returns the highest-version snapshot for
	// streamID, or ErrNotFound if none exists.
	GetLatestSnapshot(ctx context.Context, streamID string) (EventSnapshot, error)

	// TruncateStream removes events with version < beforeVersion from
	// streamID. This is allowed even when it would leave a snapshot
	// referencing now-missing events; callers relying on
	// snapshot+replay to rebuild state must ensure the snapshot they
	// intend to rebuild from is itself not truncated past.
	TruncateStream(ctx context.Context, streamID string, beforeVersion int64) error

	// Close releases resources. After Close, every MemoryEventStore
	// method returns ErrStoreClosed; SQLiteEventStore returns it from
	// Append, AppendBatch and SubscribeToStream, while its other
	// methods return the closed database's error instead.
	Close() error
}
