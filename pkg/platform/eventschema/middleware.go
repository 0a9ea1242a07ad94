package eventschema

import (
	"context"
	"fmt"

	"github.com/better-auth-go/platform/pkg/platform/event"
)

// DLQSink receives events rejected by validation, mirroring
// event.DLQSink so callers can share one dead-letter queue between
// dispatch failures and schema failures.
type DLQSink interface {
	EnqueueFailure(ctx context.Context, evt event.Event, handlerID string, err error)
}

// ValidationMiddleware rejects events that fail schema validation
// before any handler runs. Rejected events are optionally forwarded
// to dlq for inspection and retry.
func ValidationMiddleware(registry *Registry, dlq DLQSink) event.Middleware {
	return event.MiddlewareFunc{
		Before: func(ctx context.Context, evt event.Event) (event.Event, event.Verdict, string) {
			result, err := registry.Validate(evt)
			if err != nil {
				return evt, event.Continue, ""
			}
			if result.Valid {
				return evt, event.Continue, ""
			}

			reason := fmt.Sprintf("schema validation failed: %s", summarizeErrors(result.Errors))
			if dlq != nil {
				dlq.EnqueueFailure(ctx, evt, "eventschema.validation", fmt.Errorf("%s", reason))
			}
			return evt, event.Reject, reason
		},
		After: func(ctx context.Context, evt event.Event, result event.DispatchResult) {},
	}
}

func summarizeErrors(errs []ValidationError) string {
	if len(errs) == 0 {
		return "invalid payload"
	}
	first := errs[0]
	if len(errs) == 1 {
		return fmt.Sprintf("%s: %s", first.Pointer, first.Message)
	}
	return fmt.Sprintf("%s: %s (+%d more)", first.Pointer, first.Message, len(errs)-1)
}
