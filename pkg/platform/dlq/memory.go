package dlq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/perrors"
)

// Config configures an InMemoryQueue.
type Config struct {
	// MaxSize bounds the retryable queue. Default 10000.
	MaxSize int

	// MaxRetries before a dead letter is auto-parked on its next
	// failed retry. Default 5.
	MaxRetries int

	// RetryDelay is the base delay before a dead letter becomes
	// eligible for automatic retry after being added. Default 1m.
	RetryDelay time.Duration

	// OnEnqueue, if set, is called whenever a dead letter is added.
	OnEnqueue func(DeadLetter)

	// OnPark, if set, is called whenever a dead letter is parked.
	OnPark func(ParkedLetter)
}

// DefaultConfig mirrors the defaults used elsewhere in the platform
// for queue sizing and retry pacing.
var DefaultConfig = Config{
	MaxSize:    10000,
	MaxRetries: 5,
	RetryDelay: time.Minute,
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultConfig.MaxSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultConfig.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultConfig.RetryDelay
	}
	return c
}

// InMemoryQueue is the process-local Queue implementation.
type InMemoryQueue struct {
	mu     sync.RWMutex
	cfg    Config
	items  map[string]DeadLetter
	parked map[string]ParkedLetter

	enqueued int64
	retried  int64
	parked_  int64
	seq      int64
}

// NewInMemoryQueue constructs an empty queue.
func NewInMemoryQueue(cfg Config) *InMemoryQueue {
	return &InMemoryQueue{
		cfg:    cfg.withDefaults(),
		items:  make(map[string]DeadLetter),
		parked: make(map[string]ParkedLetter),
	}
}

func (q *InMemoryQueue) nextID() string {
	q.seq++
	return fmt.Sprintf("dlq-%d", q.seq)
}

func (q *InMemoryQueue) Add(ctx context.Context, dl DeadLetter) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.cfg.MaxSize {
		return perrors.New(perrors.KindTransient, "dlq.Add", fmt.Errorf("queue is full"))
	}

	if dl.ID == "" {
		dl.ID = q.nextID()
	}
	now := time.Now()
	if dl.FirstFailedAt.IsZero() {
		dl.FirstFailedAt = now
	}
	if dl.LastFailedAt.IsZero() {
		dl.LastFailedAt = now
	}
	if dl.NextRetryAt.IsZero() {
		dl.NextRetryAt = now.Add(q.cfg.RetryDelay)
	}

	q.items[dl.ID] = dl
	q.enqueued++

	if q.cfg.OnEnqueue != nil {
		q.cfg.OnEnqueue(dl)
	}
	return nil
}

func (q *InMemoryQueue) EnqueueFailure(ctx context.Context, evt event.Event, handlerID string, err error) {
	_ = q.Add(ctx, DeadLetter{
		EventID:       evt.ID(),
		EventType:     evt.Type(),
		Source:        evt.Source(),
		TenantID:      evt.TenantID(),
		CorrelationID: evt.CorrelationID(),
		HandlerID:     handlerID,
		Payload:       evt.DataBytes(),
		ErrorKind:     perrors.Categorize(err),
		ErrorMessage:  err.Error(),
		AttemptCount:  1,
	})
}

func matches(dl DeadLetter, q Query) bool {
	if q.Source != "" && dl.Source != q.Source {
		return false
	}
	if q.EventType != "" && dl.EventType != q.EventType {
		return false
	}
	if q.ErrorKind != nil && dl.ErrorKind != *q.ErrorKind {
		return false
	}
	if !q.Since.IsZero() && dl.FirstFailedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && dl.FirstFailedAt.After(q.Until) {
		return false
	}
	return true
}

func (q *InMemoryQueue) List(ctx context.Context, query Query, paging Paging) ([]DeadLetter, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var matched []DeadLetter
	for _, dl := range q.items {
		if matches(dl, query) {
			matched = append(matched, dl)
		}
	}

	if paging.Offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if paging.Limit > 0 && paging.Offset+paging.Limit < end {
		end = paging.Offset + paging.Limit
	}
	return matched[paging.Offset:end], nil
}

func (q *InMemoryQueue) Retry(ctx context.Context, id string, redispatch RedispatchFunc) (RetryOutcome, error) {
	q.mu.Lock()
	dl, ok := q.items[id]
	q.mu.Unlock()
	if !ok {
		return OutcomeFailed, perrors.New(perrors.KindNotFound, "dlq.Retry", fmt.Errorf("dead letter %q not found", id))
	}

	err := redispatch(ctx, dl)

	q.mu.Lock()
	defer q.mu.Unlock()
	if err == nil {
		delete(q.items, id)
		return OutcomeSucceeded, nil
	}

	dl.AttemptCount++
	dl.LastFailedAt = time.Now()
	dl.ErrorMessage = err.Error()
	dl.ErrorKind = perrors.Categorize(err)

	if dl.AttemptCount >= q.cfg.MaxRetries {
		delete(q.items, id)
		q.parkLocked(dl, "max retries exceeded")
		return OutcomeFailed, nil
	}

	dl.NextRetryAt = time.Now().Add(q.cfg.RetryDelay * time.Duration(1<<uint(min(dl.AttemptCount, 20))))
	q.items[id] = dl
	q.retried++
	return OutcomeFailed, nil
}

func (q *InMemoryQueue) RetryAll(ctx context.Context, query Query, redispatch RedispatchFunc) (RetryAllStats, error) {
	q.mu.RLock()
	var ids []string
	for id, dl := range q.items {
		if matches(dl, query) {
			ids = append(ids, id)
		}
	}
	q.mu.RUnlock()

	stats := RetryAllStats{}
	for _, id := range ids {
		stats.Attempted++
		outcome, err := q.Retry(ctx, id, redispatch)
		if err != nil {
			continue
		}
		if outcome == OutcomeSucceeded {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

func (q *InMemoryQueue) Purge(ctx context.Context, query Query) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed int
	for id, dl := range q.items {
		if matches(dl, query) {
			delete(q.items, id)
			removed++
		}
	}
	return removed, nil
}

func (q *InMemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := Stats{
		Total:       len(q.items),
		BySource:    make(map[string]int),
		ByErrorKind: make(map[string]int),
	}

	var oldest time.Time
	for _, dl := range q.items {
		stats.BySource[dl.Source]++
		stats.ByErrorKind[dl.ErrorKind.String()]++
		if oldest.IsZero() || dl.FirstFailedAt.Before(oldest) {
			oldest = dl.FirstFailedAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	return stats, nil
}

func (q *InMemoryQueue) MoveToParked(ctx context.Context, id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dl, ok := q.items[id]
	if !ok {
		return perrors.New(perrors.KindNotFound, "dlq.MoveToParked", fmt.Errorf("dead letter %q not found", id))
	}
	delete(q.items, id)
	q.parkLocked(dl, reason)
	return nil
}

// parkLocked requires the caller to hold q.mu.
func (q *InMemoryQueue) parkLocked(dl DeadLetter, reason string) {
	parked := ParkedLetter{DeadLetter: dl, ParkReason: reason, ParkedAt: time.Now()}
	q.parked[dl.ID] = parked
	q.parked_++
	if q.cfg.OnPark != nil {
		q.cfg.OnPark(parked)
	}
}

func (q *InMemoryQueue) ListParked(ctx context.Context, limit int) ([]ParkedLetter, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]ParkedLetter, 0, len(q.parked))
	for _, p := range q.parked {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

var _ Queue = (*InMemoryQueue)(nil)
