package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryDecision is the outcome of a RetryStrategy's NextDelay.
type RetryDecision struct {
	Delay  time.Duration
	GiveUp bool
}

// RetryStrategy decides how long to wait before the next delivery
// attempt, or whether to give up.
type RetryStrategy interface {
	NextDelay(attempt int) RetryDecision
}

// ExponentialBackoff computes base * factor^(attempt-1), capped at
// Max, with +/- JitterFraction applied.
type ExponentialBackoff struct {
	Base           time.Duration
	Factor         float64
	Max            time.Duration
	JitterFraction float64
	MaxAttempts    int // 0 means unbounded
}

func (e ExponentialBackoff) NextDelay(attempt int) RetryDecision {
	if e.MaxAttempts > 0 && attempt > e.MaxAttempts {
		return RetryDecision{GiveUp: true}
	}
	factor := e.Factor
	if factor <= 0 {
		factor = 2.0
	}
	d := float64(e.Base) * math.Pow(factor, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	return RetryDecision{Delay: applyJitter(d, e.JitterFraction)}
}

// LinearBackoff computes Base + Step*(attempt-1), capped at Max.
type LinearBackoff struct {
	Base        time.Duration
	Step        time.Duration
	Max         time.Duration
	MaxAttempts int
}

func (l LinearBackoff) NextDelay(attempt int) RetryDecision {
	if l.MaxAttempts > 0 && attempt > l.MaxAttempts {
		return RetryDecision{GiveUp: true}
	}
	d := l.Base + time.Duration(attempt-1)*l.Step
	if l.Max > 0 && d > l.Max {
		d = l.Max
	}
	return RetryDecision{Delay: d}
}

// FixedDelay always waits Delay.
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

func (f FixedDelay) NextDelay(attempt int) RetryDecision {
	if f.MaxAttempts > 0 && attempt > f.MaxAttempts {
		return RetryDecision{GiveUp: true}
	}
	return RetryDecision{Delay: f.Delay}
}

// DefaultRetryStrategy is the webhook system's configuration-surface
// default: base=1s, factor=2, max=5m, jitter=0.1, max_attempts=5.
var DefaultRetryStrategy = ExponentialBackoff{
	Base:           1 * time.Second,
	Factor:         2.0,
	Max:            5 * time.Minute,
	JitterFraction: 0.1,
	MaxAttempts:    5,
}

func applyJitter(base float64, fraction float64) time.Duration {
	if fraction <= 0 {
		return time.Duration(base)
	}
	delta := base * fraction * (rand.Float64()*2 - 1)
	v := base + delta
	if v < 0 {
		v = 0
	}
	return time.Duration(v)
}
