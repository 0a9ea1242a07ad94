package webhook_test

import (
	"context"
	"testing"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/webhook"
)

func TestJobQueuePopsInNextAttemptOrder(t *testing.T) {
	q := webhook.NewJobQueue()
	now := time.Now()

	q.Push(&webhook.Job{ID: "late", NextAttempt: now})
	q.Push(&webhook.Job{ID: "early", NextAttempt: now.Add(-time.Minute)})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	job, ok := q.Pop(ctx)
	if !ok || job.ID != "early" {
		t.Fatalf("expected the earlier job first, got %+v ok=%v", job, ok)
	}
}

func TestJobQueuePopBlocksUntilDue(t *testing.T) {
	q := webhook.NewJobQueue()
	q.Push(&webhook.Job{ID: "future", NextAttempt: time.Now().Add(30 * time.Millisecond)})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	job, ok := q.Pop(ctx)
	elapsed := time.Since(start)

	if !ok || job.ID != "future" {
		t.Fatalf("expected the future job once due, got %+v ok=%v", job, ok)
	}
	if elapsed < 20*time.Millisecond {
		t.Errorf("expected Pop to wait for NextAttempt, elapsed only %v", elapsed)
	}
}

func TestJobQueuePopReturnsFalseOnContextCancel(t *testing.T) {
	q := webhook.NewJobQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	if ok {
		t.Fatal("expected Pop to give up once ctx is done")
	}
}

func TestJobQueuePopReturnsFalseAfterClose(t *testing.T) {
	q := webhook.NewJobQueue()
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, ok := q.Pop(ctx)
	if ok {
		t.Fatal("expected Pop to give up on a closed queue")
	}
}

func TestJobQueuePopIsFIFOAcrossEndpointsAtEqualNextAttempt(t *testing.T) {
	q := webhook.NewJobQueue()
	due := time.Now().Add(-time.Second)

	// Same NextAttempt, different endpoints sharing a lane: two
	// breakers opening to the same instant, or two retries landing on
	// the same backoff, both reachable in practice. Enqueue order must
	// be preserved since container/heap alone doesn't guarantee it.
	q.Push(&webhook.Job{ID: "1", EndpointID: "ep-a", NextAttempt: due})
	q.Push(&webhook.Job{ID: "2", EndpointID: "ep-b", NextAttempt: due})
	q.Push(&webhook.Job{ID: "3", EndpointID: "ep-c", NextAttempt: due})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []string{"1", "2", "3"} {
		job, ok := q.Pop(ctx)
		if !ok || job.ID != want {
			t.Fatalf("expected job %q next, got %+v ok=%v", want, job, ok)
		}
	}
}

func TestJobQueueLen(t *testing.T) {
	q := webhook.NewJobQueue()
	if q.Len() != 0 {
		t.Fatal("expected empty queue to report zero length")
	}
	q.Push(&webhook.Job{ID: "a", NextAttempt: time.Now()})
	q.Push(&webhook.Job{ID: "b", NextAttempt: time.Now()})
	if q.Len() != 2 {
		t.Fatalf("expected length 2, got %d", q.Len())
	}
}
