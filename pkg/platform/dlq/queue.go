// Package dlq implements the dead-letter queue: an append-only record
// of failed handler dispatches and webhook deliveries, queryable for
// inspection and manual or bulk replay.
package dlq

import (
	"context"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/perrors"
)

// DeadLetter is one failed handling or delivery attempt.
type DeadLetter struct {
	ID            string
	EventID       string
	EventType     string
	Source        string
	TenantID      string
	CorrelationID string
	HandlerID     string
	Payload       []byte
	ErrorKind     perrors.Kind
	ErrorMessage  string
	AttemptCount  int
	FirstFailedAt time.Time
	LastFailedAt  time.Time
	NextRetryAt   time.Time
}

// ParkedLetter is a DeadLetter moved out of the retryable queue,
// either manually or because it exceeded its retry budget.
type ParkedLetter struct {
	DeadLetter
	ParkReason string
	ParkedAt   time.Time
}

// Query filters List, RetryAll, and Purge.
type Query struct {
	Source    string
	EventType string
	ErrorKind *perrors.Kind
	Since     time.Time
	Until     time.Time
}

// Paging bounds a List call.
type Paging struct {
	Limit  int
	Offset int
}

// Stats summarizes queue contents.
type Stats struct {
	Total       int
	BySource    map[string]int
	ByErrorKind map[string]int // keyed by perrors.Kind.String()
	OldestAge   time.Duration
}

// RetryOutcome is the result of replaying one dead letter.
type RetryOutcome int

const (
	OutcomeSucceeded RetryOutcome = iota
	OutcomeFailed
)

func (o RetryOutcome) String() string {
	if o == OutcomeSucceeded {
		return "Succeeded"
	}
	return "Failed"
}

// RetryAllStats summarizes a bulk retry.
type RetryAllStats struct {
	Attempted int
	Succeeded int
	Failed    int
}

// RedispatchFunc re-emits a dead letter's original event through the
// normal pipeline (the bus, or a specific handler/endpoint). A nil
// error means the redispatch succeeded and the dead letter should be
// removed.
type RedispatchFunc func(ctx context.Context, dl DeadLetter) error

// Queue is the C5 dead-letter contract.
type Queue interface {
	// Add appends dl. If the queue is at MaxSize, it returns
	// perrors.KindTransient ("queue is full").
	Add(ctx context.Context, dl DeadLetter) error

	// EnqueueFailure adapts event.DLQSink: it builds a DeadLetter from
	// a failed handler dispatch and adds it.
	EnqueueFailure(ctx context.Context, evt event.Event, handlerID string, err error)

	// List returns dead letters matching q, paged.
	List(ctx context.Context, q Query, paging Paging) ([]DeadLetter, error)

	// Retry replays a single dead letter via redispatch. On success
	// the dead letter is removed and OutcomeSucceeded is returned; on
	// failure its attempt counter increments, NextRetryAt advances,
	// and it remains queued, unless its attempt count has reached
	// MaxRetries, in which case it is moved to the parked tier.
	Retry(ctx context.Context, id string, redispatch RedispatchFunc) (RetryOutcome, error)

	// RetryAll replays every dead letter matching q.
	RetryAll(ctx context.Context, q Query, redispatch RedispatchFunc) (RetryAllStats, error)

	// Purge permanently removes every dead letter matching q, returning
	// the count removed.
	Purge(ctx context.Context, q Query) (int, error)

	// Stats summarizes the queue's current contents.
	Stats(ctx context.Context) (Stats, error)

	// MoveToParked removes id from the retryable queue and records it
	// as permanently parked with reason.
	MoveToParked(ctx context.Context, id string, reason string) error

	// ListParked returns up to limit parked letters (0 means all).
	ListParked(ctx context.Context, limit int) ([]ParkedLetter, error)
}
