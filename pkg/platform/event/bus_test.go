package event_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/event"
)

func handlerFunc(id string, fn func(ctx context.Context, evt event.Event) ([]event.Event, error)) event.Handler {
	return event.HandlerFunc{HandlerID: id, Fn: fn}
}

func TestBusPublishSyncFanOut(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var calls atomic.Int32
	sub, err := bus.Subscribe("user.*", handlerFunc("h1", func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		calls.Add(1)
		return nil, nil
	}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	evt := event.NewAny("user.created", "users", "t1", nil)
	results, err := bus.PublishSync(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("expected 1 successful result, got %+v", results)
	}
	if calls.Load() != 1 {
		t.Errorf("expected handler to run once, got %d", calls.Load())
	}
}

func TestBusPublishSyncNonMatchingPattern(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	sub, _ := bus.Subscribe("session.*", handlerFunc("h1", func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		return nil, nil
	}))
	defer sub.Unsubscribe()

	results, err := bus.PublishSync(context.Background(), event.NewAny("user.created", "users", "t1", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no matched handlers, got %d", len(results))
	}
}

func TestBusHandlerErrorDoesNotBlockOthers(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	sub1, _ := bus.Subscribe("*", handlerFunc("failing", func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		return nil, errors.New("boom")
	}))
	defer sub1.Unsubscribe()

	var ok atomic.Bool
	sub2, _ := bus.Subscribe("*", handlerFunc("ok", func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		ok.Store(true)
		return nil, nil
	}))
	defer sub2.Unsubscribe()

	results, err := bus.PublishSync(context.Background(), event.NewAny("x", "s", "t", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok.Load() {
		t.Error("expected the non-failing handler to still run")
	}

	var sawFailure bool
	for _, r := range results {
		if r.HandlerID == "failing" && !r.Success {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("expected a failed result for the failing handler")
	}
}

func TestBusIdempotentSubscription(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var calls atomic.Int32
	h := func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		calls.Add(1)
		return nil, nil
	}
	bus.Subscribe("*", handlerFunc("dup", h))
	bus.Subscribe("*", handlerFunc("dup", h))

	results, err := bus.PublishSync(context.Background(), event.NewAny("x", "s", "t", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected exactly one subscription to remain, got %d results", len(results))
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	sub, _ := bus.Subscribe("*", handlerFunc("h", func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		return nil, nil
	}))
	sub.Unsubscribe()

	results, err := bus.PublishSync(context.Background(), event.NewAny("x", "s", "t", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no handlers after unsubscribe, got %d", len(results))
	}
}

func TestBusPublishIsFireAndForget(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	done := make(chan struct{})
	sub, _ := bus.Subscribe("*", handlerFunc("slow", func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		time.Sleep(20 * time.Millisecond)
		close(done)
		return nil, nil
	}))
	defer sub.Unsubscribe()

	if err := bus.Publish(context.Background(), event.NewAny("x", "s", "t", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
		t.Fatal("expected Publish to return before the handler completed")
	default:
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never completed")
	}
}

func TestBusMiddlewareCanReject(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var handlerCalled atomic.Bool
	var afterRan atomic.Bool

	bus.Use(event.MiddlewareFunc{
		Before: func(ctx context.Context, evt event.Event) (event.Event, event.Verdict, string) {
			return evt, event.Reject, "blocked by policy"
		},
		After: func(ctx context.Context, evt event.Event, result event.DispatchResult) {
			afterRan.Store(true)
			if !result.Rejected {
				t.Error("expected after-dispatch to observe rejection")
			}
		},
	})

	sub, _ := bus.Subscribe("*", handlerFunc("h", func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		handlerCalled.Store(true)
		return nil, nil
	}))
	defer sub.Unsubscribe()

	_, err := bus.PublishSync(context.Background(), event.NewAny("x", "s", "t", nil))
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if handlerCalled.Load() {
		t.Error("expected handler to not run after rejection")
	}
	if !afterRan.Load() {
		t.Error("expected after-dispatch hook to still run")
	}
}

func TestBusCloseRejectsFurtherPublish(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	bus.Close()

	if err := bus.Publish(context.Background(), event.NewAny("x", "s", "t", nil)); !errors.Is(err, event.ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}
