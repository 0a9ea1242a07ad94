// Package replay re-dispatches previously stored events, at a
// configurable pace, through the same bus and schema-migration path
// live events use.
package replay

import (
	"context"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/dlq"
	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/eventschema"
	"github.com/better-auth-go/platform/pkg/platform/perrors"
	"github.com/better-auth-go/platform/pkg/platform/store"
)

// Speed controls replay pacing.
type Speed int

const (
	// Fast dispatches every event back to back, no delay.
	Fast Speed = iota
	// Realtime sleeps between events to honor their original
	// inter-arrival gaps.
	Realtime
	// Custom scales the original inter-arrival gaps by Multiplier.
	Custom
)

// OnErrorStrategy determines what Replay does when a dispatch fails.
type OnErrorStrategy int

const (
	// Continue skips the failure and keeps replaying.
	Continue OnErrorStrategy = iota
	// Stop aborts the replay at the first failure.
	Stop
	// DeadLetter routes the failure to the configured Queue and
	// continues replaying.
	DeadLetter
)

// Target selects where replayed events are dispatched.
type Target struct {
	// Bus, if set, receives every replayed event via PublishSync.
	Bus event.Bus
	// Handlers, if set (and Bus is nil), are invoked directly instead
	// of going through a bus subscription.
	Handlers []event.Handler
}

// Config configures one Replay call.
type Config struct {
	Speed      Speed
	Multiplier float64 // only consulted when Speed == Custom; default 1.0
	Filter     func(store.StoredEvent) bool
	Target     Target
	OnError    OnErrorStrategy
	DryRun     bool

	// CurrentSchemaVersion, if set, resolves the version each event's
	// payload is migrated to before dispatch. Zero means "use the
	// stored version unchanged."
	CurrentSchemaVersion map[string]int
}

// Stats summarizes one Replay call.
type Stats struct {
	Total      int
	Dispatched int
	Skipped    int
	Failed     int
	Duration   time.Duration
}

// Engine replays events read from a store.
type Engine struct {
	store   store.EventStore
	schemas *eventschema.Registry
	dlq     dlq.Queue
}

// NewEngine constructs a replay engine. schemas and deadLetters may
// both be nil: migration and dead-lettering are then skipped.
func NewEngine(es store.EventStore, schemas *eventschema.Registry, deadLetters dlq.Queue) *Engine {
	return &Engine{store: es, schemas: schemas, dlq: deadLetters}
}

// Replay reads events matching query in ascending global order,
// applies cfg.Filter and any registered schema migration, paces
// dispatch per cfg.Speed, and dispatches to cfg.Target.
func (e *Engine) Replay(ctx context.Context, query store.EventQuery, cfg Config) (Stats, error) {
	query.Ordering = store.Ascending
	if cfg.Speed == Custom && cfg.Multiplier <= 0 {
		cfg.Multiplier = 1.0
	}

	start := time.Now()
	stats := Stats{}
	var prevTimestamp time.Time

	cursor := query.Cursor
	for {
		page := query
		page.Cursor = cursor
		result, err := e.store.Query(ctx, page)
		if err != nil {
			return stats, err
		}
		if len(result.Events) == 0 {
			break
		}

		for _, stored := range result.Events {
			if err := ctx.Err(); err != nil {
				stats.Duration = time.Since(start)
				return stats, err
			}

			stats.Total++

			if cfg.Filter != nil && !cfg.Filter(stored) {
				stats.Skipped++
				continue
			}

			e.pace(cfg, stored, &prevTimestamp)

			if cfg.DryRun {
				stats.Dispatched++
				continue
			}

			if err := e.dispatch(ctx, cfg, stored); err != nil {
				stats.Failed++
				switch cfg.OnError {
				case Stop:
					stats.Duration = time.Since(start)
					return stats, err
				case DeadLetter:
					if e.dlq != nil {
						e.dlq.EnqueueFailure(ctx, stored.Event, "replay", err)
					}
				case Continue:
					// fall through
				}
				continue
			}
			stats.Dispatched++
		}

		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func (e *Engine) pace(cfg Config, stored store.StoredEvent, prev *time.Time) {
	if cfg.Speed == Fast {
		*prev = stored.Timestamp()
		return
	}
	if prev.IsZero() {
		*prev = stored.Timestamp()
		return
	}

	gap := stored.Timestamp().Sub(*prev)
	*prev = stored.Timestamp()
	if gap <= 0 {
		return
	}
	if cfg.Speed == Custom {
		gap = time.Duration(float64(gap) * cfg.Multiplier)
	}
	time.Sleep(gap)
}

func (e *Engine) dispatch(ctx context.Context, cfg Config, stored store.StoredEvent) error {
	evt := e.migrate(stored, cfg)

	if cfg.Target.Bus != nil {
		results, err := cfg.Target.Bus.PublishSync(ctx, evt)
		if err != nil {
			return err
		}
		for _, r := range results {
			if !r.Success {
				return perrors.New(perrors.KindTransient, "replay.dispatch", r.Err)
			}
		}
		return nil
	}

	for _, h := range cfg.Target.Handlers {
		if _, err := h.Handle(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// migrate applies any registered schema migration to bring stored's
// payload up to the currently expected version, returning the event
// unchanged if no migration is configured.
func (e *Engine) migrate(stored store.StoredEvent, cfg Config) event.Event {
	if e.schemas == nil {
		return stored.Event
	}
	target, ok := cfg.CurrentSchemaVersion[stored.Type()]
	if !ok || target == stored.Version() {
		return stored.Event
	}

	migrated, err := e.schemas.Migrate(stored.Type(), stored.Version(), target, stored.Data())
	if err != nil {
		return stored.Event
	}
	return event.NewAnyFromParent(stored.Event, stored.Type(), stored.Source(), migrated,
		event.WithSchemaVersion(target))
}
