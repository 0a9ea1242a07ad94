package webhook_test

import (
	"testing"

	"github.com/better-auth-go/platform/pkg/platform/webhook"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := webhook.NewRateLimiter(webhook.RateLimitConfig{RatePerSecond: 5, Burst: 2})

	r1 := rl.TryAcquire("ep1", nil)
	r2 := rl.TryAcquire("ep1", nil)
	if !r1.Allowed || !r2.Allowed {
		t.Fatalf("expected both requests within burst to be admitted: %+v, %+v", r1, r2)
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	rl := webhook.NewRateLimiter(webhook.RateLimitConfig{RatePerSecond: 1, Burst: 1})

	rl.TryAcquire("ep1", nil)
	res := rl.TryAcquire("ep1", nil)
	if res.Allowed {
		t.Fatal("expected second immediate request to be rejected")
	}
	if res.RetryAfter <= 0 {
		t.Error("expected a positive retry-after when rejected")
	}
}

func TestRateLimiterIsPerEndpoint(t *testing.T) {
	rl := webhook.NewRateLimiter(webhook.RateLimitConfig{RatePerSecond: 1, Burst: 1})

	rl.TryAcquire("ep1", nil)
	res := rl.TryAcquire("ep2", nil)
	if !res.Allowed {
		t.Fatal("expected a different endpoint to have its own bucket")
	}
}

func TestRateLimiterHonorsOverrideOnFirstUse(t *testing.T) {
	rl := webhook.NewRateLimiter(webhook.RateLimitConfig{RatePerSecond: 1, Burst: 1})

	override := &webhook.RateLimitConfig{RatePerSecond: 100, Burst: 5}
	for i := 0; i < 5; i++ {
		if res := rl.TryAcquire("ep-custom", override); !res.Allowed {
			t.Fatalf("expected override burst of 5 to admit request %d", i)
		}
	}
}
