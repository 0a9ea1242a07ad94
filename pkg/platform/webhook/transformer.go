package webhook

import "github.com/better-auth-go/platform/pkg/platform/event"

// Transformer lets a plugin reshape an outbound payload, veto delivery
// entirely, or attach extra headers, without touching the delivery
// engine itself. A nil return from TransformPayload keeps the default
// projection; a false return from ShouldSend marks the job delivered
// without ever reaching the endpoint.
type Transformer interface {
	TransformPayload(evt event.Event) any
	ShouldSend(evt event.Event) bool
	CustomHeaders(evt event.Event) map[string]string
}

// DefaultTransformer implements Transformer as a pass-through: it
// sends every event unmodified, with no extra headers.
type DefaultTransformer struct{}

func (DefaultTransformer) TransformPayload(evt event.Event) any        { return nil }
func (DefaultTransformer) ShouldSend(evt event.Event) bool             { return true }
func (DefaultTransformer) CustomHeaders(evt event.Event) map[string]string { return nil }
