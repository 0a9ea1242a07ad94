package perrors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures a generic retry loop.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         float64
	RetryableFunc  func(error) bool
}

// DefaultRetry is the standard retry configuration used by the webhook
// delivery engine when an endpoint does not override it.
var DefaultRetry = RetryConfig{
	MaxAttempts:    5,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     5 * time.Minute,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{MaxAttempts: 1}

// RetryResult holds the outcome of a retried operation.
type RetryResult[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// WithRetry executes fn with retries based on cfg.
func WithRetry[T any](cfg RetryConfig, fn func() (T, error)) RetryResult[T] {
	return WithRetryContext(context.Background(), cfg, func(context.Context) (T, error) {
		return fn()
	})
}

// WithRetryContext executes fn with retries, respecting context
// cancellation and classifying errors via Categorize unless cfg
// supplies its own RetryableFunc.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()
	backoff := cfg.InitialBackoff
	var lastErr error

	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = func(err error) bool {
			return Categorize(err) == KindTransient
		}
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult[T]{
				Err:      New(KindPermanent, "retry", err),
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return RetryResult[T]{Value: result, Attempts: attempt + 1, Duration: time.Since(start)}
		}
		lastErr = err

		if !isRetryable(err) {
			return RetryResult[T]{
				Err:      New(Categorize(err), "retry", err),
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		}

		if attempt < attempts-1 {
			sleep := calculateBackoff(backoff, cfg.Jitter)
			select {
			case <-ctx.Done():
				return RetryResult[T]{
					Err:      New(KindPermanent, "retry", ctx.Err()),
					Attempts: attempt + 1,
					Duration: time.Since(start),
				}
			case <-time.After(sleep):
			}
			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	return RetryResult[T]{
		Err:      New(Categorize(lastErr), "retry", lastErr),
		Attempts: attempts,
		Duration: time.Since(start),
	}
}

func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	d := time.Duration(float64(base) + jitterAmount)
	if d < 0 {
		d = 0
	}
	return d
}

// RetryOption configures a RetryConfig.
type RetryOption func(*RetryConfig)

func WithMaxAttempts(n int) RetryOption       { return func(c *RetryConfig) { c.MaxAttempts = n } }
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialBackoff = d }
}
func WithMaxBackoff(d time.Duration) RetryOption { return func(c *RetryConfig) { c.MaxBackoff = d } }
func WithBackoffFactor(f float64) RetryOption    { return func(c *RetryConfig) { c.BackoffFactor = f } }
func WithJitter(j float64) RetryOption           { return func(c *RetryConfig) { c.Jitter = j } }
func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.RetryableFunc = fn }
}

// NewRetryConfig builds a RetryConfig from DefaultRetry plus options.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
