package webhook

import (
	"log/slog"
	"sync"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/observability"
)

// CircuitState is a circuit breaker's position: Closed (normal),
// Open (failing, requests short-circuited), HalfOpen (cool-down
// elapsed, probing for recovery).
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker. Zero value is
// usable; defaults below apply.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures to open, default 5
	SuccessThreshold int           // consecutive half-open successes to close, default 2
	CoolDownBase     time.Duration // initial open duration, default 30s
	CoolDownCap      time.Duration // max open duration after repeated re-opens, default 5m
	Logger           *slog.Logger
	EndpointID       string
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.CoolDownBase <= 0 {
		c.CoolDownBase = 30 * time.Second
	}
	if c.CoolDownCap <= 0 {
		c.CoolDownCap = 5 * time.Minute
	}
	return c
}

// CircuitBreaker is a per-endpoint failure detector. At most one
// probe is allowed in flight while HalfOpen.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg   CircuitBreakerConfig
	state CircuitState

	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time
	coolDown             time.Duration
	probeInFlight        bool
}

// NewCircuitBreaker constructs a breaker starting Closed.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg = cfg.withDefaults()
	return &CircuitBreaker{cfg: cfg, coolDown: cfg.CoolDownBase}
}

// Allow reports whether a delivery attempt may proceed, transitioning
// Open -> HalfOpen once the cool-down elapses.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Now().Before(c.openUntil) {
			return false
		}
		c.transitionLocked(CircuitHalfOpen)
		c.probeInFlight = true
		return true
	case CircuitHalfOpen:
		if c.probeInFlight {
			return false
		}
		c.probeInFlight = true
		return true
	default:
		return false
	}
}

// OnSuccess records a successful delivery.
func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitClosed:
		c.consecutiveFailures = 0
	case CircuitHalfOpen:
		c.probeInFlight = false
		c.consecutiveSuccesses++
		if c.consecutiveSuccesses >= c.cfg.SuccessThreshold {
			c.coolDown = c.cfg.CoolDownBase
			c.transitionLocked(CircuitClosed)
		}
	}
}

// OnFailure records a failed delivery: consecutive failures reaching
// FailureThreshold opens the circuit; a failed half-open probe
// re-opens it with the cool-down doubled (capped at CoolDownCap).
func (c *CircuitBreaker) OnFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitClosed:
		c.consecutiveFailures++
		if c.consecutiveFailures >= c.cfg.FailureThreshold {
			c.openLocked()
		}
	case CircuitHalfOpen:
		c.probeInFlight = false
		c.consecutiveSuccesses = 0
		c.coolDown *= 2
		if c.coolDown > c.cfg.CoolDownCap {
			c.coolDown = c.cfg.CoolDownCap
		}
		c.openLocked()
	}
}

func (c *CircuitBreaker) openLocked() {
	c.openUntil = time.Now().Add(c.coolDown)
	c.transitionLocked(CircuitOpen)
}

func (c *CircuitBreaker) transitionLocked(to CircuitState) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.consecutiveFailures = 0
	c.consecutiveSuccesses = 0
	if to != CircuitHalfOpen {
		c.probeInFlight = false
	}
	observability.LogCircuitTransition(c.cfg.Logger, c.cfg.EndpointID, from.String(), to.String())
}

// State returns the breaker's current state.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OpenUntil returns the time the circuit is expected to leave Open,
// the zero value if not currently Open.
func (c *CircuitBreaker) OpenUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CircuitOpen {
		return time.Time{}
	}
	return c.openUntil
}
