package event

import "context"

// Verdict is the outcome of a middleware's before-dispatch hook.
type Verdict int

const (
	// Continue lets dispatch proceed to the next middleware, then to
	// matched handlers.
	Continue Verdict = iota
	// Reject stops dispatch: no handler runs. After-dispatch hooks
	// still run, in reverse registration order, observing the
	// rejection.
	Reject
)

// DispatchResult is what after-dispatch middleware observes: either a
// rejection reason or the per-handler results from a completed (or
// fire-and-forget) dispatch.
type DispatchResult struct {
	Rejected     bool
	RejectReason string
	Results      []HandlerResult
}

// Middleware is a composable dispatch interceptor. BeforeDispatch may
// mutate the event (by returning a replacement) and/or reject it.
// AfterDispatch observes the final outcome; it cannot affect delivery
// and its errors must not fail the event (per the side-effect-only
// contract).
type Middleware interface {
	// BeforeDispatch runs in registration order. Returning a non-nil
	// event replaces it for subsequent middleware and handlers.
	BeforeDispatch(ctx context.Context, evt Event) (next Event, verdict Verdict, reason string)
	// AfterDispatch runs in reverse registration order once dispatch
	// (or rejection) completes.
	AfterDispatch(ctx context.Context, evt Event, result DispatchResult)
}

// MiddlewareFunc adapts two functions to the Middleware interface for
// callers that only need one hook.
type MiddlewareFunc struct {
	Before func(ctx context.Context, evt Event) (Event, Verdict, string)
	After  func(ctx context.Context, evt Event, result DispatchResult)
}

func (m MiddlewareFunc) BeforeDispatch(ctx context.Context, evt Event) (Event, Verdict, string) {
	if m.Before == nil {
		return evt, Continue, ""
	}
	return m.Before(ctx, evt)
}

func (m MiddlewareFunc) AfterDispatch(ctx context.Context, evt Event, result DispatchResult) {
	if m.After != nil {
		m.After(ctx, evt, result)
	}
}

// chain runs before-dispatch hooks in order via runBefore,
// short-circuiting on the first rejection and reporting how many
// hooks ran; runAfter then runs after-dispatch hooks in reverse order
// for exactly those middleware.
type chain struct {
	middleware []Middleware
}

func (c *chain) runBefore(ctx context.Context, evt Event) (Event, bool, string, int) {
	current := evt
	for i, mw := range c.middleware {
		next, verdict, reason := mw.BeforeDispatch(ctx, current)
		if next != nil {
			current = next
		}
		if verdict == Reject {
			return current, true, reason, i + 1
		}
	}
	return current, false, "", len(c.middleware)
}

func (c *chain) runAfter(ctx context.Context, evt Event, ran int, result DispatchResult) {
	for i := ran - 1; i >= 0; i-- {
		c.middleware[i].AfterDispatch(ctx, evt, result)
	}
}
