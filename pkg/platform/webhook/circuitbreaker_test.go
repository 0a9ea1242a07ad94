package webhook_test

import (
	"testing"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/webhook"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := webhook.NewCircuitBreaker(webhook.CircuitBreakerConfig{FailureThreshold: 3, CoolDownBase: time.Minute})

	for i := 0; i < 2; i++ {
		if !cb.Allow() {
			t.Fatal("expected closed circuit to allow")
		}
		cb.OnFailure()
	}
	if cb.State() != webhook.CircuitClosed {
		t.Fatalf("expected still closed after 2 failures, got %v", cb.State())
	}

	cb.Allow()
	cb.OnFailure()
	if cb.State() != webhook.CircuitOpen {
		t.Fatalf("expected open after reaching threshold, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("expected open circuit to refuse immediately after opening")
	}
}

func TestCircuitBreakerHalfOpenProbeRecovers(t *testing.T) {
	cb := webhook.NewCircuitBreaker(webhook.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		CoolDownBase:     10 * time.Millisecond,
	})

	cb.Allow()
	cb.OnFailure()
	if cb.State() != webhook.CircuitOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("expected a probe to be allowed once cool-down elapses")
	}
	if cb.State() != webhook.CircuitHalfOpen {
		t.Fatalf("expected half_open after cool-down, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("expected only one probe in flight during half_open")
	}

	cb.OnSuccess()
	if cb.State() != webhook.CircuitHalfOpen {
		t.Fatalf("expected still half_open below success threshold, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected a second probe to be allowed after the first succeeded")
	}
	cb.OnSuccess()
	if cb.State() != webhook.CircuitClosed {
		t.Fatalf("expected closed after reaching success threshold, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopensAndDoublesCoolDown(t *testing.T) {
	cb := webhook.NewCircuitBreaker(webhook.CircuitBreakerConfig{
		FailureThreshold: 1,
		CoolDownBase:     10 * time.Millisecond,
		CoolDownCap:      1 * time.Second,
	})

	cb.Allow()
	cb.OnFailure() // closed -> open
	time.Sleep(20 * time.Millisecond)
	cb.Allow() // open -> half_open, probe in flight
	probeFailedAt := time.Now()
	cb.OnFailure()
	if cb.State() != webhook.CircuitOpen {
		t.Fatalf("expected re-opened after failed probe, got %v", cb.State())
	}

	first := cb.OpenUntil()
	if first.Before(time.Now()) {
		t.Fatal("expected open_until in the future")
	}
	if got := first.Sub(probeFailedAt); got < 20*time.Millisecond {
		t.Fatalf("expected the re-open cool-down to double from 10ms to 20ms, got %v", got)
	}
}
