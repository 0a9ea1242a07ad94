package webhook_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/webhook"
)

func newTestEndpoint(t *testing.T, url string) (*webhook.Registry, string) {
	t.Helper()
	reg := webhook.NewRegistry()
	id, err := reg.Register(webhook.Endpoint{
		URL:     url,
		Secret:  "test-secret",
		Enabled: true,
		Filter:  webhook.EventFilter{Kind: webhook.FilterAll},
	})
	if err != nil {
		t.Fatalf("register endpoint: %v", err)
	}
	return reg, id
}

func TestEngineDeliversSuccessfully(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get(webhook.SignatureHeader) == "" {
			t.Error("expected a signature header on every delivery")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg, _ := newTestEndpoint(t, srv.URL)
	engine := webhook.NewEngine(webhook.Config{WorkerCount: 2}, reg)

	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)
	defer func() {
		cancel()
		engine.Stop()
	}()

	evt := newTestEvent("user.created", map[string]any{"id": "u1"})
	if _, err := engine.Handle(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", calls.Load())
	}
}

func TestEngineRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg, _ := newTestEndpoint(t, srv.URL)
	engine := webhook.NewEngine(webhook.Config{
		WorkerCount:  1,
		DefaultRetry: webhook.FixedDelay{Delay: 5 * time.Millisecond, MaxAttempts: 3},
	}, reg)

	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)
	defer func() {
		cancel()
		engine.Stop()
	}()

	engine.Handle(context.Background(), newTestEvent("user.created", nil))

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected at least 2 attempts (1 failure + 1 retry), got %d", calls.Load())
	}
}

func TestEngineDoesNotRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	reg, _ := newTestEndpoint(t, srv.URL)
	engine := webhook.NewEngine(webhook.Config{
		WorkerCount:  1,
		DefaultRetry: webhook.FixedDelay{Delay: 5 * time.Millisecond, MaxAttempts: 5},
	}, reg)

	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)
	defer func() {
		cancel()
		engine.Stop()
	}()

	engine.Handle(context.Background(), newTestEvent("user.created", nil))

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one attempt for a permanent 4xx, got %d", calls.Load())
	}
}

func TestEngineSkipsDisabledAndNonMatchingEndpoints(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := webhook.NewRegistry()
	reg.Register(webhook.Endpoint{URL: srv.URL, Enabled: false, Filter: webhook.EventFilter{Kind: webhook.FilterAll}})
	reg.Register(webhook.Endpoint{URL: srv.URL, Enabled: true, Filter: webhook.EventFilter{Kind: webhook.FilterExactSet, Types: []string{"session.created"}}})

	engine := webhook.NewEngine(webhook.Config{WorkerCount: 1}, reg)
	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)
	defer func() {
		cancel()
		engine.Stop()
	}()

	engine.Handle(context.Background(), newTestEvent("user.created", nil))
	time.Sleep(50 * time.Millisecond)

	if calls.Load() != 0 {
		t.Fatalf("expected no deliveries, got %d", calls.Load())
	}
}
