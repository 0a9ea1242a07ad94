package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/event"
)

const defaultQueryLimit = 100

// StreamIDTag is the event tag key consulted by MemoryEventStore to
// route an event to a stream. Events without this tag land in
// DefaultStreamID.
const StreamIDTag = "stream_id"

func streamIDOf(evt event.Event) string {
	if id, ok := evt.Tags()[StreamIDTag]; ok && id != "" {
		return id
	}
	return DefaultStreamID
}

// streamState holds everything scoped to a single stream. Its mu
// guards version assignment and the events slice, independent of
// every other stream's mu: two goroutines appending to different
// streams never contend.
type streamState struct {
	mu        sync.Mutex
	id        string
	events    []StoredEvent
	snapshots []EventSnapshot
	subs      []*memorySubscription
}

// MemoryEventStore is the in-process EventStore. Each stream is
// protected by its own lock so that appends to unrelated streams
// proceed in parallel; a store-wide indexMu covers only the
// cross-stream lookup tables (by id, by correlation id) and streamsMu
// the stream directory itself, each held just long enough to read or
// insert a pointer, never across an append's per-stream work.
type MemoryEventStore struct {
	globalSeq atomic.Int64

	streamsMu sync.Mutex
	streams   map[string]*streamState

	indexMu       sync.RWMutex
	byID          map[string]StoredEvent
	byCorrelation map[string][]string

	closed atomic.Bool
}

// NewMemoryEventStore constructs an empty store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams:       make(map[string]*streamState),
		byID:          make(map[string]StoredEvent),
		byCorrelation: make(map[string][]string),
	}
}

func (s *MemoryEventStore) streamFor(id string) *streamState {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		st = &streamState{id: id}
		s.streams[id] = st
	}
	return st
}

func (s *MemoryEventStore) Append(ctx context.Context, evt event.Event) (StoredEvent, error) {
	if s.closed.Load() {
		return StoredEvent{}, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return StoredEvent{}, err
	}

	streamID := streamIDOf(evt)
	st := s.streamFor(streamID)

	st.mu.Lock()
	version := int64(len(st.events)) + 1
	stored := StoredEvent{
		Event:         evt,
		StreamID:      streamID,
		StreamVersion: version,
		GlobalSeq:     s.globalSeq.Add(1),
	}
	st.events = append(st.events, stored)
	subs := append([]*memorySubscription(nil), st.subs...)
	st.mu.Unlock()

	s.indexMu.Lock()
	s.byID[evt.ID()] = stored
	if corr := evt.CorrelationID(); corr != "" {
		s.byCorrelation[corr] = append(s.byCorrelation[corr], evt.ID())
	}
	s.indexMu.Unlock()

	for _, sub := range subs {
		sub.publish(stored)
	}

	return stored, nil
}

func (s *MemoryEventStore) AppendBatch(ctx context.Context, events []event.Event) ([]StoredEvent, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byStream := make(map[string][]event.Event)
	order := make([]string, 0, len(events))
	for _, evt := range events {
		id := streamIDOf(evt)
		if _, seen := byStream[id]; !seen {
			order = append(order, id)
		}
		byStream[id] = append(byStream[id], evt)
	}

	results := make(map[string][]StoredEvent, len(events))
	for _, streamID := range order {
		staged, err := s.appendStreamBatch(ctx, streamID, byStream[streamID])
		if err != nil {
			return nil, err
		}
		for _, stored := range staged {
			results[stored.ID()] = append(results[stored.ID()], stored)
		}
	}

	out := make([]StoredEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, results[evt.ID()][0])
	}
	return out, nil
}

// appendStreamBatch assigns versions to every event destined for
// streamID and applies them in one step: if any event fails validation
// (currently, only a cancelled ctx) none of streamID's events are
// appended, so the stream is left at its pre-batch version exactly as
// if AppendBatch had never been called for it. Other streams in the
// same AppendBatch call are unaffected either way.
func (s *MemoryEventStore) appendStreamBatch(ctx context.Context, streamID string, events []event.Event) ([]StoredEvent, error) {
	st := s.streamFor(streamID)

	st.mu.Lock()
	if s.closed.Load() {
		st.mu.Unlock()
		return nil, ErrStoreClosed
	}
	version := int64(len(st.events))
	staged := make([]StoredEvent, len(events))
	for i, evt := range events {
		if err := ctx.Err(); err != nil {
			st.mu.Unlock()
			return nil, err
		}
		version++
		staged[i] = StoredEvent{Event: evt, StreamID: streamID, StreamVersion: version}
	}
	for i := range staged {
		staged[i].GlobalSeq = s.globalSeq.Add(1)
	}
	st.events = append(st.events, staged...)
	subs := append([]*memorySubscription(nil), st.subs...)
	st.mu.Unlock()

	s.indexMu.Lock()
	for _, stored := range staged {
		s.byID[stored.ID()] = stored
		if corr := stored.CorrelationID(); corr != "" {
			s.byCorrelation[corr] = append(s.byCorrelation[corr], stored.ID())
		}
	}
	s.indexMu.Unlock()

	for _, stored := range staged {
		for _, sub := range subs {
			sub.publish(stored)
		}
	}

	return staged, nil
}

func (s *MemoryEventStore) Get(ctx context.Context, id string) (StoredEvent, error) {
	if s.closed.Load() {
		return StoredEvent{}, ErrStoreClosed
	}
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	stored, ok := s.byID[id]
	if !ok {
		return StoredEvent{}, ErrNotFound
	}
	return stored, nil
}

func (s *MemoryEventStore) GetStream(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if fromVersion < 1 {
		fromVersion = 1
	}

	s.streamsMu.Lock()
	st, ok := s.streams[streamID]
	s.streamsMu.Unlock()
	if !ok {
		return nil, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]StoredEvent, 0)
	for _, evt := range st.events {
		if evt.StreamVersion >= fromVersion {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (s *MemoryEventStore) GetByCorrelation(ctx context.Context, correlationID string) ([]StoredEvent, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	s.indexMu.RLock()
	ids := append([]string(nil), s.byCorrelation[correlationID]...)
	s.indexMu.RUnlock()

	out := make([]StoredEvent, 0, len(ids))
	for _, id := range ids {
		if stored, err := s.Get(ctx, id); err == nil {
			out = append(out, stored)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalSeq < out[j].GlobalSeq })
	return out, nil
}

// snapshotAll takes a consistent-enough point-in-time view across all
// streams by locking each stream briefly in turn; it never holds more
// than one stream lock at once, so it cannot deadlock against Append.
func (s *MemoryEventStore) snapshotAll() []StoredEvent {
	s.streamsMu.Lock()
	streams := make([]*streamState, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	s.streamsMu.Unlock()

	var all []StoredEvent
	for _, st := range streams {
		st.mu.Lock()
		all = append(all, st.events...)
		st.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].GlobalSeq < all[j].GlobalSeq })
	return all
}

func (s *MemoryEventStore) Query(ctx context.Context, q EventQuery) (EventStream, error) {
	if s.closed.Load() {
		return EventStream{}, ErrStoreClosed
	}

	cursorSeq, err := decodeCursor(q.Cursor)
	if err != nil {
		return EventStream{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	all := s.snapshotAll()
	if q.Ordering == Descending {
		sort.Slice(all, func(i, j int) bool { return all[i].GlobalSeq > all[j].GlobalSeq })
	}

	matched := make([]StoredEvent, 0, limit)
	var nextCursor string
	for _, evt := range all {
		if q.Ordering == Descending {
			if cursorSeq != 0 && evt.GlobalSeq >= cursorSeq {
				continue
			}
		} else {
			if evt.GlobalSeq <= cursorSeq {
				continue
			}
		}
		if q.TypePattern != "" && !event.MatchPattern(q.TypePattern, evt.Type()) {
			continue
		}
		if q.Source != "" && evt.Source() != q.Source {
			continue
		}
		if q.CorrelationID != "" && evt.CorrelationID() != q.CorrelationID {
			continue
		}
		if !q.From.IsZero() && evt.Timestamp().Before(q.From) {
			continue
		}
		if !q.To.IsZero() && evt.Timestamp().After(q.To) {
			continue
		}

		if len(matched) == limit {
			nextCursor = encodeCursor(matched[len(matched)-1].GlobalSeq)
			break
		}
		matched = append(matched, evt)
	}

	return EventStream{Events: matched, NextCursor: nextCursor}, nil
}

type memorySubscription struct {
	streamID string
	ch       chan StoredEvent
	closeCh  chan struct{}
	closeOne sync.Once
	parent   *MemoryEventStore
}

func (m *memorySubscription) Events() <-chan StoredEvent { return m.ch }

func (m *memorySubscription) Close() error {
	m.closeOne.Do(func() {
		close(m.closeCh)
		st := m.parent.streamFor(m.streamID)
		st.mu.Lock()
		for i, sub := range st.subs {
			if sub == m {
				st.subs = append(st.subs[:i], st.subs[i+1:]...)
				break
			}
		}
		st.mu.Unlock()
	})
	return nil
}

// publish blocks until the subscriber takes evt or the subscription is
// closed: a subscriber that falls behind stalls the publishing append
// rather than missing events.
func (m *memorySubscription) publish(evt StoredEvent) {
	select {
	case m.ch <- evt:
	case <-m.closeCh:
	}
}

func (s *MemoryEventStore) SubscribeToStream(ctx context.Context, streamID string) (StreamSubscription, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	st := s.streamFor(streamID)
	sub := &memorySubscription{
		streamID: streamID,
		ch:       make(chan StoredEvent, 64),
		closeCh:  make(chan struct{}),
		parent:   s,
	}
	st.mu.Lock()
	st.subs = append(st.subs, sub)
	st.mu.Unlock()
	return sub, nil
}

func (s *MemoryEventStore) CreateSnapshot(ctx context.Context, streamID string, version int64, state []byte) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	st := s.streamFor(streamID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.snapshots) > 0 && st.snapshots[len(st.snapshots)-1].Version >= version {
		return nil
	}
	stateCopy := append([]byte(nil), state...)
	st.snapshots = append(st.snapshots, EventSnapshot{
		StreamID:  streamID,
		Version:   version,
		State:     stateCopy,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemoryEventStore) GetLatestSnapshot(ctx context.Context, streamID string) (EventSnapshot, error) {
	if s.closed.Load() {
		return EventSnapshot{}, ErrStoreClosed
	}
	s.streamsMu.Lock()
	st, ok := s.streams[streamID]
	s.streamsMu.Unlock()
	if !ok {
		return EventSnapshot{}, ErrNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.snapshots) == 0 {
		return EventSnapshot{}, ErrNotFound
	}
	snap := st.snapshots[len(st.snapshots)-1]
	snap.State = append([]byte(nil), snap.State...)
	return snap, nil
}

func (s *MemoryEventStore) TruncateStream(ctx context.Context, streamID string, beforeVersion int64) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	st := s.streamFor(streamID)
	st.mu.Lock()
	defer st.mu.Unlock()

	kept := st.events[:0:0]
	for _, evt := range st.events {
		if evt.StreamVersion >= beforeVersion {
			kept = append(kept, evt)
		}
	}
	st.events = kept
	return nil
}

func (s *MemoryEventStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.streamsMu.Lock()
	streams := make([]*streamState, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	s.streamsMu.Unlock()

	for _, st := range streams {
		st.mu.Lock()
		subs := st.subs
		st.subs = nil
		st.mu.Unlock()

		for _, sub := range subs {
			sub.closeOne.Do(func() { close(sub.closeCh) })
		}
	}
	return nil
}
