// Package platform is the composition root (Design Notes §9): it owns
// the bus, store, schema registry, dead-letter queue, webhook engine,
// and composed data model, and wires them together without any of
// them holding a reference back to the Platform itself. Handlers and
// plugins are handed the narrow event.Emitter capability, never the
// full Bus.
package platform

import (
	"context"
	"fmt"

	"github.com/better-auth-go/platform/pkg/platform/dlq"
	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/eventschema"
	"github.com/better-auth-go/platform/pkg/platform/model"
	"github.com/better-auth-go/platform/pkg/platform/replay"
	"github.com/better-auth-go/platform/pkg/platform/store"
	"github.com/better-auth-go/platform/pkg/platform/webhook"
)

// persistHandlerID is the stable handler id the store-persistence
// subscription registers under, so Unsubscribe/idempotent-resubscribe
// semantics apply to it like any other handler.
const persistHandlerID = "platform-store-writer"

// Config assembles every subsystem's configuration into one value.
// Nil Store/DeadLetters/Schemas fields get the in-memory defaults;
// Webhook.DLQ and Webhook.Logger are filled from DeadLetters/Bus's
// logger if left unset.
type Config struct {
	Bus         event.BusConfig
	Store       store.EventStore // nil selects store.NewMemoryEventStore()
	DeadLetters dlq.Queue        // nil selects dlq.NewInMemoryQueue(dlq.Config{})
	Schemas     *eventschema.Registry
	Webhook     webhook.Config

	// ComposeProviders/ComposeExtensions seed the initial schema
	// composition; additional plugins may be added later via
	// ComposeSchema.
	ComposeProviders  []model.ProviderSource
	ComposeExtensions []model.ExtensionSource
}

// Platform owns the wired subsystems. All fields are exported so
// advanced callers can reach a subsystem directly (e.g. Webhooks.List
// or Store.Query); New is the only supported construction path.
type Platform struct {
	Bus         *event.LocalBus
	Store       store.EventStore
	DeadLetters dlq.Queue
	Schemas     *eventschema.Registry
	Webhooks    *webhook.Registry
	Delivery    *webhook.Engine
	Replay      *replay.Engine
	Models      *model.ComposeResult

	deliveryCtx    context.Context
	deliveryCancel context.CancelFunc
}

// New wires a Platform per cfg: the store persists every published
// event, schema validation runs ahead of dispatch if cfg.Schemas
// carries any registered types, and the webhook engine is subscribed
// as an ordinary handler matching every event type, fanning out to
// whatever endpoints are registered against Webhooks. The delivery
// engine's worker pool is started immediately; callers must call
// Close when done to stop it and release the bus/store.
func New(cfg Config) (*Platform, error) {
	es := cfg.Store
	if es == nil {
		es = store.NewMemoryEventStore()
	}
	deadLetters := cfg.DeadLetters
	if deadLetters == nil {
		deadLetters = dlq.NewInMemoryQueue(dlq.Config{})
	}
	schemas := cfg.Schemas
	if schemas == nil {
		schemas = eventschema.NewRegistry()
	}

	busCfg := cfg.Bus
	busCfg.DLQ = deadLetters
	bus := event.NewBus(busCfg)
	bus.Use(eventschema.ValidationMiddleware(schemas, deadLetters))

	if _, err := bus.Subscribe("*", event.HandlerFunc{
		HandlerID: persistHandlerID,
		Fn: func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			_, err := es.Append(ctx, evt)
			return nil, err
		},
	}); err != nil {
		return nil, fmt.Errorf("platform: subscribing store writer: %w", err)
	}

	webhookCfg := cfg.Webhook
	if webhookCfg.DLQ == nil {
		webhookCfg.DLQ = deadLetters
	}
	if webhookCfg.Logger == nil {
		webhookCfg.Logger = busCfg.Logger
	}
	endpoints := webhook.NewRegistry()
	delivery := webhook.NewEngine(webhookCfg, endpoints)
	if _, err := bus.Subscribe("*", delivery); err != nil {
		return nil, fmt.Errorf("platform: subscribing delivery engine: %w", err)
	}

	composeResult, err := model.Compose(model.CoreSchema(), cfg.ComposeProviders, cfg.ComposeExtensions)
	if err != nil {
		return nil, fmt.Errorf("platform: composing schema: %w", err)
	}

	deliveryCtx, cancel := context.WithCancel(context.Background())
	delivery.Start(deliveryCtx)

	return &Platform{
		Bus:            bus,
		Store:          es,
		DeadLetters:    deadLetters,
		Schemas:        schemas,
		Webhooks:       endpoints,
		Delivery:       delivery,
		Replay:         replay.NewEngine(es, schemas, deadLetters),
		Models:         composeResult,
		deliveryCtx:    deliveryCtx,
		deliveryCancel: cancel,
	}, nil
}

// Emitter returns the narrow publish-only capability handlers and
// plugins should be given instead of the full Bus, so they cannot
// subscribe, install middleware, or close it.
func (p *Platform) Emitter() event.Emitter {
	return p.Bus
}

// ComposeSchema recomposes the data model with an additional set of
// providers and extensions layered on top of the core schema, and
// replaces p.Models with the result. It does not touch Store or
// Webhooks; callers plan and apply the resulting Diff separately via
// a SqlDialect.
func (p *Platform) ComposeSchema(providers []model.ProviderSource, extensions []model.ExtensionSource) (*model.ComposeResult, error) {
	result, err := model.Compose(model.CoreSchema(), providers, extensions)
	if err != nil {
		return nil, err
	}
	p.Models = result
	return result, nil
}

// Close stops the delivery engine's worker pool and closes the bus
// and store, in that order so in-flight deliveries have a chance to
// drain before their producer goes away.
func (p *Platform) Close() error {
	p.Delivery.Stop()
	p.deliveryCancel()

	if err := p.Bus.Close(); err != nil {
		return fmt.Errorf("platform: closing bus: %w", err)
	}
	if err := p.Store.Close(); err != nil {
		return fmt.Errorf("platform: closing store: %w", err)
	}
	return nil
}
