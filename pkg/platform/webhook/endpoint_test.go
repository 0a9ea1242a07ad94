package webhook_test

import (
	"testing"

	"github.com/better-auth-go/platform/pkg/platform/webhook"
)

func TestRegistryRegisterAssignsID(t *testing.T) {
	reg := webhook.NewRegistry()
	id, err := reg.Register(webhook.Endpoint{URL: "https://example.com/hook", Enabled: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	ep, err := reg.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ep.URL != "https://example.com/hook" {
		t.Errorf("unexpected url: %s", ep.URL)
	}
}

func TestRegistryRegisterRejectsEmptyURL(t *testing.T) {
	reg := webhook.NewRegistry()
	if _, err := reg.Register(webhook.Endpoint{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestRegistryUpdatePatchesFields(t *testing.T) {
	reg := webhook.NewRegistry()
	id, _ := reg.Register(webhook.Endpoint{URL: "https://a.example", Enabled: true})

	newURL := "https://b.example"
	disabled := false
	if err := reg.Update(id, webhook.Patch{URL: &newURL, Enabled: &disabled}); err != nil {
		t.Fatalf("update: %v", err)
	}

	ep, err := reg.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ep.URL != newURL {
		t.Errorf("url not patched: %s", ep.URL)
	}
	if ep.Enabled {
		t.Error("enabled should have been patched to false")
	}
}

func TestRegistryUpdateUnknownID(t *testing.T) {
	reg := webhook.NewRegistry()
	if err := reg.Update("missing", webhook.Patch{}); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestRegistryDeleteIsNoOpForUnknown(t *testing.T) {
	reg := webhook.NewRegistry()
	reg.Delete("missing") // must not panic
}

func TestEventFilterAll(t *testing.T) {
	f := webhook.EventFilter{Kind: webhook.FilterAll}
	if !f.Matches("anything.happened") {
		t.Error("FilterAll should match everything")
	}
}

func TestEventFilterExactSet(t *testing.T) {
	f := webhook.EventFilter{Kind: webhook.FilterExactSet, Types: []string{"user.created", "user.deleted"}}
	if !f.Matches("user.created") {
		t.Error("expected match on exact type")
	}
	if f.Matches("user.updated") {
		t.Error("expected no match on absent type")
	}
}

func TestEventFilterPattern(t *testing.T) {
	f := webhook.EventFilter{Kind: webhook.FilterPattern, Patterns: []string{"user.*"}}
	if !f.Matches("user.created") {
		t.Error("expected pattern match")
	}
	if f.Matches("session.created") {
		t.Error("expected no pattern match")
	}
}

func TestRegistryMatchingEnabledExcludesDisabled(t *testing.T) {
	reg := webhook.NewRegistry()
	reg.Register(webhook.Endpoint{
		URL:     "https://a.example",
		Enabled: false,
		Filter:  webhook.EventFilter{Kind: webhook.FilterAll},
	})
	id2, _ := reg.Register(webhook.Endpoint{
		URL:     "https://b.example",
		Enabled: true,
		Filter:  webhook.EventFilter{Kind: webhook.FilterAll},
	})

	matched := reg.MatchingEnabled("user.created")
	if len(matched) != 1 || matched[0].ID != id2 {
		t.Fatalf("expected exactly the enabled endpoint, got %+v", matched)
	}
}
