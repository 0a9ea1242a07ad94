package webhook

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/perrors"
	"github.com/better-auth-go/platform/pkg/platform/registry"
)

// FilterKind selects how an EventFilter matches an event type.
type FilterKind int

const (
	// FilterAll matches every event.
	FilterAll FilterKind = iota
	// FilterExactSet matches iff the event type is a member of Types.
	FilterExactSet
	// FilterPattern matches iff any entry in Patterns matches, using
	// the same trailing-wildcard grammar as the bus's subscriptions.
	FilterPattern
)

// EventFilter decides whether an endpoint receives a given event.
type EventFilter struct {
	Kind     FilterKind
	Types    []string // consulted when Kind == FilterExactSet
	Patterns []string // consulted when Kind == FilterPattern
}

// Matches reports whether eventType passes the filter.
func (f EventFilter) Matches(eventType string) bool {
	switch f.Kind {
	case FilterAll:
		return true
	case FilterExactSet:
		for _, t := range f.Types {
			if t == eventType {
				return true
			}
		}
		return false
	case FilterPattern:
		for _, p := range f.Patterns {
			if event.MatchPattern(p, eventType) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Metadata is descriptive, non-functional information about an
// endpoint.
type Metadata struct {
	Description string
	Tags        map[string]string
	CreatedAt   time.Time
}

// Endpoint is a registered webhook destination. Secret never leaves
// the process except as the HMAC it produces (signature.go); List and
// Get callers receive the struct including Secret, so callers
// presenting endpoints externally must redact it themselves.
type Endpoint struct {
	ID        string
	URL       string
	Secret    string
	Filter    EventFilter
	Enabled   bool
	Metadata  Metadata
	Headers   map[string]string
	RateLimit *RateLimitConfig // nil means use the engine-wide default
}

// Patch describes a partial update to an Endpoint: nil fields are
// left unchanged.
type Patch struct {
	URL       *string
	Secret    *string
	Filter    *EventFilter
	Enabled   *bool
	Headers   map[string]string
	RateLimit *RateLimitConfig
}

// Registry holds registered endpoints, keyed by id.
type Registry struct {
	entries *registry.Registry[string, *Endpoint]
}

// NewRegistry constructs an empty endpoint registry.
func NewRegistry() *Registry {
	return &Registry{entries: registry.New[string, *Endpoint]()}
}

// Register assigns ep a ULID id if it has none and stores it,
// returning the id.
func (r *Registry) Register(ep Endpoint) (string, error) {
	if ep.URL == "" {
		return "", perrors.New(perrors.KindInvalidInput, "webhook.register", errors.New("url required"))
	}
	if ep.ID == "" {
		ep.ID = ulid.Make().String()
	}
	cp := ep
	r.entries.Register(cp.ID, &cp)
	return cp.ID, nil
}

// Update applies patch to the endpoint with id.
func (r *Registry) Update(id string, patch Patch) error {
	ep, ok := r.entries.Get(id)
	if !ok {
		return perrors.ErrNotFound
	}
	updated := *ep
	if patch.URL != nil {
		updated.URL = *patch.URL
	}
	if patch.Secret != nil {
		updated.Secret = *patch.Secret
	}
	if patch.Filter != nil {
		updated.Filter = *patch.Filter
	}
	if patch.Enabled != nil {
		updated.Enabled = *patch.Enabled
	}
	if patch.Headers != nil {
		updated.Headers = patch.Headers
	}
	if patch.RateLimit != nil {
		updated.RateLimit = patch.RateLimit
	}
	r.entries.Register(id, &updated)
	return nil
}

// Delete removes an endpoint. Deleting an unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.entries.Delete(id)
}

// Get returns the endpoint with id.
func (r *Registry) Get(id string) (Endpoint, error) {
	ep, ok := r.entries.Get(id)
	if !ok {
		return Endpoint{}, perrors.ErrNotFound
	}
	return *ep, nil
}

// List returns every endpoint for which filter returns true. A nil
// filter returns every endpoint.
func (r *Registry) List(filter func(Endpoint) bool) []Endpoint {
	var out []Endpoint
	r.entries.Range(func(_ string, ep *Endpoint) bool {
		if filter == nil || filter(*ep) {
			out = append(out, *ep)
		}
		return true
	})
	return out
}

// MatchingEnabled returns every enabled endpoint whose filter matches
// eventType, the set the delivery engine fans a published event out
// to.
func (r *Registry) MatchingEnabled(eventType string) []Endpoint {
	return r.List(func(ep Endpoint) bool {
		return ep.Enabled && ep.Filter.Matches(eventType)
	})
}
