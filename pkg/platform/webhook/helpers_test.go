package webhook_test

import "github.com/better-auth-go/platform/pkg/platform/event"

func newTestEvent(eventType string, payload any) event.Event {
	return event.NewAny(eventType, "test-source", "tenant-1", payload)
}
