// # Overview
//
// Events implement the Event interface and carry correlation and
// causation ids for distributed tracing:
//
//	evt := event.New("user.created", "users", tenantID, payload)
//	child := event.NewFromParent(evt, "session.created", "sessions", sessionPayload)
//	// child.CorrelationID() == evt.CorrelationID()
//	// child.CausationID() == evt.ID()
//
// # Bus
//
//	bus := event.NewBus(event.BusConfig{HandlerTimeout: 30 * time.Second})
//	sub, _ := bus.Subscribe("user.*", handler)
//	defer sub.Unsubscribe()
//
//	bus.Publish(ctx, evt)                 // fire-and-forget
//	results, _ := bus.PublishSync(ctx, evt) // waits for every matched handler
//
// Patterns support exact match, a bare "*" (matches everything), and a
// trailing wildcard segment ("user.*" matches "user.created" but not
// "user" or "user.created.extra").
//
// # Middleware
//
// Middleware intercepts dispatch with a before-hook (can mutate or
// reject the event) and an after-hook (observes the outcome, runs in
// reverse registration order):
//
//	bus.Use(event.RecoveryMiddleware())
//	bus.Use(event.LoggingMiddleware(logger))
package event
