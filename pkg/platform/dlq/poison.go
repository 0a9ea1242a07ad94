package dlq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/event"
)

// failureRecord tracks failures sharing one content hash.
type failureRecord struct {
	EventType    string
	FailureCount int
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
}

// PoisonPillConfig configures PoisonPillDetector.
type PoisonPillConfig struct {
	// FailureThreshold is the failure count at which a pattern is
	// considered a poison pill. Default 3.
	FailureThreshold int

	// WindowDuration bounds how long failures are tracked. Default 1h.
	WindowDuration time.Duration

	// CleanupInterval is how often expired records are swept. Default 5m.
	CleanupInterval time.Duration

	// HashFunc customizes how an event's content is hashed. Default:
	// SHA-256 over type + serialized payload.
	HashFunc func(event.Event) string

	// OnDetect is called the moment a pattern crosses the threshold.
	OnDetect func(eventType string, hash string, count int)
}

var defaultPoisonPillConfig = PoisonPillConfig{
	FailureThreshold: 3,
	WindowDuration:   time.Hour,
	CleanupInterval:  5 * time.Minute,
}

func (c PoisonPillConfig) withDefaults() PoisonPillConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultPoisonPillConfig.FailureThreshold
	}
	if c.WindowDuration <= 0 {
		c.WindowDuration = defaultPoisonPillConfig.WindowDuration
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultPoisonPillConfig.CleanupInterval
	}
	if c.HashFunc == nil {
		c.HashFunc = defaultHashFunc
	}
	return c
}

func defaultHashFunc(evt event.Event) string {
	h := sha256.New()
	h.Write([]byte(evt.Type()))
	h.Write(evt.DataBytes())
	return hex.EncodeToString(h.Sum(nil))
}

// PoisonPillDetector flags events whose content has repeatedly failed
// handling, regardless of how many times it is redelivered.
type PoisonPillDetector struct {
	mu       sync.RWMutex
	failures map[string]*failureRecord
	cfg      PoisonPillConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPoisonPillDetector starts a detector with its cleanup loop running.
func NewPoisonPillDetector(cfg PoisonPillConfig) *PoisonPillDetector {
	d := &PoisonPillDetector{
		failures: make(map[string]*failureRecord),
		cfg:      cfg.withDefaults(),
		stopCh:   make(chan struct{}),
	}
	go d.cleanupLoop()
	return d
}

// Check reports whether evt matches a pattern that has crossed the
// failure threshold within the tracking window.
func (d *PoisonPillDetector) Check(ctx context.Context, evt event.Event) bool {
	hash := d.cfg.HashFunc(evt)
	return d.CheckByHash(hash)
}

func (d *PoisonPillDetector) CheckByHash(hash string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	record, ok := d.failures[hash]
	if !ok {
		return false
	}
	if time.Since(record.FirstSeenAt) > d.cfg.WindowDuration {
		return false
	}
	return record.FailureCount >= d.cfg.FailureThreshold
}

// Record notes a failed handling of evt.
func (d *PoisonPillDetector) Record(evt event.Event) {
	hash := d.cfg.HashFunc(evt)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.failures[hash]
	if !ok {
		record = &failureRecord{EventType: evt.Type(), FirstSeenAt: now}
		d.failures[hash] = record
	}
	record.FailureCount++
	record.LastSeenAt = now

	if record.FailureCount == d.cfg.FailureThreshold && d.cfg.OnDetect != nil {
		d.cfg.OnDetect(evt.Type(), hash, record.FailureCount)
	}
}

// Clear forgets the failure history for hash.
func (d *PoisonPillDetector) Clear(hash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failures, hash)
}

func (d *PoisonPillDetector) cleanupLoop() {
	ticker := time.NewTicker(d.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.cleanup()
		}
	}
}

func (d *PoisonPillDetector) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for hash, record := range d.failures {
		if now.Sub(record.FirstSeenAt) > d.cfg.WindowDuration {
			delete(d.failures, hash)
		}
	}
}

// Close stops the cleanup goroutine.
func (d *PoisonPillDetector) Close() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}
