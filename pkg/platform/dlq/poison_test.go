package dlq_test

import (
	"context"
	"testing"
	"time"

	"github.com/better-auth-go/platform/pkg/platform/dlq"
	"github.com/better-auth-go/platform/pkg/platform/event"
)

func TestPoisonPillDetectedAfterThreshold(t *testing.T) {
	d := dlq.NewPoisonPillDetector(dlq.PoisonPillConfig{FailureThreshold: 2, WindowDuration: time.Minute})
	defer d.Close()

	evt := event.NewAny("user.created", "users", "t1", map[string]any{"id": "u1"})

	if d.Check(context.Background(), evt) {
		t.Fatal("expected no detection before any failures")
	}

	d.Record(evt)
	if d.Check(context.Background(), evt) {
		t.Fatal("expected no detection below threshold")
	}

	d.Record(evt)
	if !d.Check(context.Background(), evt) {
		t.Fatal("expected detection at threshold")
	}
}

func TestPoisonPillDistinguishesPayloads(t *testing.T) {
	d := dlq.NewPoisonPillDetector(dlq.PoisonPillConfig{FailureThreshold: 1, WindowDuration: time.Minute})
	defer d.Close()

	a := event.NewAny("user.created", "users", "t1", map[string]any{"id": "a"})
	b := event.NewAny("user.created", "users", "t1", map[string]any{"id": "b"})

	d.Record(a)
	if !d.Check(context.Background(), a) {
		t.Error("expected a to be detected")
	}
	if d.Check(context.Background(), b) {
		t.Error("expected b to not be detected")
	}
}
