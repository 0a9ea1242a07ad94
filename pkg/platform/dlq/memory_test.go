package dlq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/better-auth-go/platform/pkg/platform/dlq"
	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/perrors"
)

func TestEnqueueFailureAddsEntry(t *testing.T) {
	q := dlq.NewInMemoryQueue(dlq.Config{})
	evt := event.NewAny("user.created", "users", "t1", nil)
	q.EnqueueFailure(context.Background(), evt, "h1", errors.New("boom"))

	stats, err := q.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("expected 1 entry, got %d", stats.Total)
	}
}

func TestRetrySucceedsAndRemoves(t *testing.T) {
	q := dlq.NewInMemoryQueue(dlq.Config{})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "user.created", Source: "users"})

	list, _ := q.List(context.Background(), dlq.Query{}, dlq.Paging{})
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}

	outcome, err := q.Retry(context.Background(), list[0].ID, func(ctx context.Context, dl dlq.DeadLetter) error {
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome != dlq.OutcomeSucceeded {
		t.Errorf("expected success outcome, got %v", outcome)
	}

	remaining, _ := q.List(context.Background(), dlq.Query{}, dlq.Paging{})
	if len(remaining) != 0 {
		t.Errorf("expected queue empty after successful retry, got %d", len(remaining))
	}
}

func TestRetryFailureIncrementsAttemptsAndStays(t *testing.T) {
	q := dlq.NewInMemoryQueue(dlq.Config{MaxRetries: 10})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "user.created"})
	list, _ := q.List(context.Background(), dlq.Query{}, dlq.Paging{})
	id := list[0].ID

	outcome, err := q.Retry(context.Background(), id, func(ctx context.Context, dl dlq.DeadLetter) error {
		return errors.New("still failing")
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome != dlq.OutcomeFailed {
		t.Errorf("expected failed outcome, got %v", outcome)
	}

	remaining, _ := q.List(context.Background(), dlq.Query{}, dlq.Paging{})
	if len(remaining) != 1 {
		t.Fatalf("expected dead letter to remain, got %d", len(remaining))
	}
	if remaining[0].AttemptCount != 1 {
		t.Errorf("expected attempt count 1, got %d", remaining[0].AttemptCount)
	}
}

func TestRetryParksAfterMaxRetries(t *testing.T) {
	q := dlq.NewInMemoryQueue(dlq.Config{MaxRetries: 1})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "user.created"})
	list, _ := q.List(context.Background(), dlq.Query{}, dlq.Paging{})
	id := list[0].ID

	_, err := q.Retry(context.Background(), id, func(ctx context.Context, dl dlq.DeadLetter) error {
		return errors.New("still failing")
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}

	remaining, _ := q.List(context.Background(), dlq.Query{}, dlq.Paging{})
	if len(remaining) != 0 {
		t.Errorf("expected dead letter to be parked, got %d remaining", len(remaining))
	}
	parked, _ := q.ListParked(context.Background(), 0)
	if len(parked) != 1 {
		t.Fatalf("expected 1 parked letter, got %d", len(parked))
	}
}

func TestPurgeRemovesMatching(t *testing.T) {
	q := dlq.NewInMemoryQueue(dlq.Config{})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "user.created", Source: "users"})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "session.created", Source: "sessions"})

	removed, err := q.Purge(context.Background(), dlq.Query{Source: "users"})
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	remaining, _ := q.List(context.Background(), dlq.Query{}, dlq.Paging{})
	if len(remaining) != 1 || remaining[0].Source != "sessions" {
		t.Errorf("expected only sessions entry to remain, got %+v", remaining)
	}
}

func TestStatsByErrorKind(t *testing.T) {
	q := dlq.NewInMemoryQueue(dlq.Config{})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "a", ErrorKind: perrors.KindTransient})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "b", ErrorKind: perrors.KindPermanent})

	stats, err := q.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ByErrorKind[perrors.KindTransient.String()] != 1 {
		t.Errorf("expected 1 transient entry, got %d", stats.ByErrorKind[perrors.KindTransient.String()])
	}
	if stats.ByErrorKind[perrors.KindPermanent.String()] != 1 {
		t.Errorf("expected 1 permanent entry, got %d", stats.ByErrorKind[perrors.KindPermanent.String()])
	}
}

func TestRetryAllAppliesToEveryMatch(t *testing.T) {
	q := dlq.NewInMemoryQueue(dlq.Config{})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "user.created", Source: "users"})
	q.Add(context.Background(), dlq.DeadLetter{EventType: "user.updated", Source: "users"})

	stats, err := q.RetryAll(context.Background(), dlq.Query{Source: "users"}, func(ctx context.Context, dl dlq.DeadLetter) error {
		return nil
	})
	if err != nil {
		t.Fatalf("retry all: %v", err)
	}
	if stats.Attempted != 2 || stats.Succeeded != 2 {
		t.Errorf("expected 2 attempted and succeeded, got %+v", stats)
	}
}
