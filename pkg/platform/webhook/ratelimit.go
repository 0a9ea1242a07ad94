package webhook

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket's shape: RatePerSecond tokens
// refill per second, up to Burst tokens banked.
type RateLimitConfig struct {
	RatePerSecond float64
	Burst         int
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RatePerSecond)
	}
	return c
}

// RateLimitResult is the outcome of TryAcquire.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration // set when !Allowed, except when the bucket can never admit the event (zero burst)
}

// RateLimiter is a per-endpoint token bucket limiter, keyed on
// endpoint id, wrapping golang.org/x/time/rate.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	defaultCfg RateLimitConfig
}

// NewRateLimiter constructs a limiter using defaultCfg for any
// endpoint that does not supply its own RateLimitConfig.
func NewRateLimiter(defaultCfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		defaultCfg: defaultCfg.withDefaults(),
	}
}

func (r *RateLimiter) limiterFor(endpointID string, override *RateLimitConfig) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[endpointID]; ok {
		return l
	}
	cfg := r.defaultCfg
	if override != nil {
		cfg = override.withDefaults()
	}
	l := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	r.limiters[endpointID] = l
	return l
}

// TryAcquire attempts to admit one event for endpointID without
// blocking. override, if non-nil, supersedes the limiter's default
// configuration on first use for that endpoint (the limiter is
// created once and not reconfigured afterward).
func (r *RateLimiter) TryAcquire(endpointID string, override *RateLimitConfig) RateLimitResult {
	l := r.limiterFor(endpointID, override)
	res := l.ReserveN(time.Now(), 1)
	if !res.OK() {
		return RateLimitResult{Allowed: false}
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return RateLimitResult{Allowed: false, RetryAfter: delay}
	}
	return RateLimitResult{Allowed: true}
}
