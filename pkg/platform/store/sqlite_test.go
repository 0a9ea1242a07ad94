package store_test

import (
	"context"
	"testing"

	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/store"
)

func openTestSQLiteStore(t *testing.T) *store.SQLiteEventStore {
	t.Helper()
	s, err := store.NewSQLiteEventStore(":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteAppendAndGet(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	evt := event.NewAny("user.created", "users", "t1", map[string]any{"id": "u1"})
	stored, err := s.Append(ctx, evt)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if stored.StreamVersion != 1 {
		t.Errorf("expected version 1, got %d", stored.StreamVersion)
	}

	got, err := s.Get(ctx, evt.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type() != "user.created" || got.TenantID() != "t1" {
		t.Errorf("round-tripped event mismatch: %+v", got)
	}
}

func TestSQLiteStreamVersionsAreDense(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, event.NewAny("a", "s", "t", nil, withStream("x"))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	events, err := s.GetStream(ctx, "x", 0)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, e := range events {
		if e.StreamVersion != int64(i+1) {
			t.Errorf("expected dense version %d, got %d", i+1, e.StreamVersion)
		}
	}
}

func TestSQLiteQueryCursorPagination(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, event.NewAny("user.created", "users", "t1", nil)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page1, err := s.Query(ctx, store.EventQuery{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page1.Events) != 2 || page1.NextCursor == "" {
		t.Fatalf("expected a 2-event page with a cursor, got %d", len(page1.Events))
	}

	page2, err := s.Query(ctx, store.EventQuery{Limit: 2, Cursor: page1.NextCursor})
	if err != nil {
		t.Fatalf("query page 2: %v", err)
	}
	if len(page2.Events) != 2 {
		t.Fatalf("expected 2 events on page 2, got %d", len(page2.Events))
	}
}

func TestSQLiteSnapshotStaysAtHighestVersion(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.CreateSnapshot(ctx, "stream-1", 5, []byte("v5")); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	if err := s.CreateSnapshot(ctx, "stream-1", 2, []byte("stale")); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	snap, err := s.GetLatestSnapshot(ctx, "stream-1")
	if err != nil {
		t.Fatalf("get latest snapshot: %v", err)
	}
	if snap.Version != 5 || string(snap.State) != "v5" {
		t.Errorf("expected version 5 state v5, got version=%d state=%s", snap.Version, snap.State)
	}
}

func TestSQLiteAppendBatchIsAllOrNothingPerStream(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	seed, err := s.Append(ctx, event.NewAny("seed", "s", "t", nil, withStream("x")))
	if err != nil {
		t.Fatalf("seed append: %v", err)
	}

	// The batch's third event reuses seed's id, so its INSERT trips the
	// UNIQUE(id) constraint partway through the stream's transaction;
	// the whole transaction must roll back, not just that one insert.
	batch := []event.Event{
		event.NewAny("a", "s", "t", nil, withStream("x")),
		event.NewAny("b", "s", "t", nil, withStream("x")),
		event.NewAny("dup", "s", "t", nil, withStream("x"), event.WithEventID(seed.ID())),
	}

	if _, err := s.AppendBatch(ctx, batch); err == nil {
		t.Fatal("expected AppendBatch to fail on the duplicate id")
	}

	remaining, err := s.GetStream(ctx, "x", 0)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected stream to be left at its pre-batch version (1 event), got %d", len(remaining))
	}
}

func TestSQLiteAppendBatchFailureIsolatedToItsStream(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	seed, err := s.Append(ctx, event.NewAny("seed", "s", "t", nil, withStream("bad")))
	if err != nil {
		t.Fatalf("seed append: %v", err)
	}

	batch := []event.Event{
		event.NewAny("a", "s", "t", nil, withStream("ok")),
		event.NewAny("b", "s", "t", nil, withStream("ok")),
		event.NewAny("c", "s", "t", nil, withStream("bad"), event.WithEventID(seed.ID())),
	}

	if _, err := s.AppendBatch(ctx, batch); err == nil {
		t.Fatal("expected AppendBatch to report the bad stream's error")
	}

	okStream, err := s.GetStream(ctx, "ok", 0)
	if err != nil {
		t.Fatalf("get ok stream: %v", err)
	}
	if len(okStream) != 2 {
		t.Fatalf("expected stream ok to have committed independently of stream bad's failure, got %d events", len(okStream))
	}

	badStream, err := s.GetStream(ctx, "bad", 0)
	if err != nil {
		t.Fatalf("get bad stream: %v", err)
	}
	if len(badStream) != 1 {
		t.Fatalf("expected stream bad to be left at its pre-batch version (1 event), got %d", len(badStream))
	}
}

func TestSQLiteCloseRejectsAppend(t *testing.T) {
	s, err := store.NewSQLiteEventStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Close()

	if _, err := s.Append(context.Background(), event.NewAny("a", "s", "t", nil)); err != store.ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
