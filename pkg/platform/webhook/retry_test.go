package webhook_test

import (
	"testing"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/webhook"
)

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	s := webhook.ExponentialBackoff{Base: time.Second, Factor: 2, Max: 10 * time.Second}

	d1 := s.NextDelay(1)
	d2 := s.NextDelay(2)
	d3 := s.NextDelay(3)

	if d1.GiveUp || d2.GiveUp || d3.GiveUp {
		t.Fatal("unbounded attempts should never give up")
	}
	if d2.Delay <= d1.Delay {
		t.Errorf("expected attempt 2 delay > attempt 1: %v vs %v", d2.Delay, d1.Delay)
	}
	if d3.Delay > 10*time.Second {
		t.Errorf("expected delay to respect Max, got %v", d3.Delay)
	}
}

func TestExponentialBackoffGivesUpPastMaxAttempts(t *testing.T) {
	s := webhook.ExponentialBackoff{Base: time.Second, Factor: 2, MaxAttempts: 3}
	if !s.NextDelay(4).GiveUp {
		t.Fatal("expected give-up past MaxAttempts")
	}
	if s.NextDelay(3).GiveUp {
		t.Fatal("attempt at MaxAttempts should not give up")
	}
}

func TestLinearBackoffStepsAndCaps(t *testing.T) {
	s := webhook.LinearBackoff{Base: time.Second, Step: time.Second, Max: 3 * time.Second}
	if d := s.NextDelay(1).Delay; d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}
	if d := s.NextDelay(5).Delay; d != 3*time.Second {
		t.Errorf("expected delay capped at 3s, got %v", d)
	}
}

func TestFixedDelayIsConstant(t *testing.T) {
	s := webhook.FixedDelay{Delay: 2 * time.Second, MaxAttempts: 2}
	if d := s.NextDelay(1).Delay; d != 2*time.Second {
		t.Errorf("expected constant delay, got %v", d)
	}
	if !s.NextDelay(3).GiveUp {
		t.Fatal("expected give-up past MaxAttempts")
	}
}

func TestDefaultRetryStrategyMatchesDocumentedDefaults(t *testing.T) {
	s := webhook.DefaultRetryStrategy
	if s.Base != time.Second || s.Factor != 2.0 || s.Max != 5*time.Minute || s.MaxAttempts != 5 {
		t.Fatalf("unexpected default retry strategy: %+v", s)
	}
}
