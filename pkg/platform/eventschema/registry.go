package eventschema

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/perrors"
)

// Registry holds every registered (event type, version) schema and
// the migration functions registered between versions of a type.
type Registry struct {
	mu sync.RWMutex

	// versions[eventType][version] -> entry
	versions map[string]map[int]*schemaEntry

	// migrations[eventType][from][to] -> func
	migrations map[string]map[int]map[int]MigrationFunc
}

// MigrationFunc transforms a payload captured under fromVersion into
// the shape expected by toVersion. It is invoked by the replay engine
// before dispatching an old event to a handler registered for a newer
// schema version.
type MigrationFunc func(payload any) (any, error)

// NewRegistry returns an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{
		versions:   make(map[string]map[int]*schemaEntry),
		migrations: make(map[string]map[int]map[int]MigrationFunc),
	}
}

// Register stores schema as the JSON Schema for (eventType, version).
// Re-registering the same pair fails with perrors.KindConflict unless
// replace is true.
func (r *Registry) Register(eventType string, version int, schema map[string]any, replace bool) error {
	compiled, err := compile(eventType, version, schema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.versions[eventType]
	if !ok {
		byVersion = make(map[int]*schemaEntry)
		r.versions[eventType] = byVersion
	}
	if _, exists := byVersion[version]; exists && !replace {
		return perrors.New(perrors.KindConflict, "eventschema.Register",
			fmt.Errorf("schema already registered for %s v%d", eventType, version))
	}

	byVersion[version] = &schemaEntry{eventType: eventType, version: version, raw: schema, compiled: compiled}
	return nil
}

// RegisterJSON is Register with the schema supplied as raw JSON bytes.
func (r *Registry) RegisterJSON(eventType string, version int, schemaJSON []byte, replace bool) error {
	var doc map[string]any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return perrors.New(perrors.KindInvalidInput, "eventschema.RegisterJSON", fmt.Errorf("unmarshal schema: %w", err))
	}
	return r.Register(eventType, version, doc, replace)
}

// latestVersionLocked returns the highest registered version for
// eventType, assuming the caller holds at least a read lock.
func (r *Registry) latestVersionLocked(eventType string) (int, bool) {
	byVersion, ok := r.versions[eventType]
	if !ok || len(byVersion) == 0 {
		return 0, false
	}
	versions := make([]int, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions[len(versions)-1], true
}

// Validate resolves the schema for evt's type and version (the
// latest registered version, if the event carries none) and checks
// its payload against it. If no schema is registered for the type,
// Validate reports Valid with no errors: validation is opt-in per
// type.
func (r *Registry) Validate(evt event.Event) (ValidationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version := evt.Version()
	byVersion, ok := r.versions[evt.Type()]
	if !ok {
		return ValidationResult{Valid: true}, nil
	}
	if version == 0 {
		latest, found := r.latestVersionLocked(evt.Type())
		if !found {
			return ValidationResult{Valid: true}, nil
		}
		version = latest
	}

	entry, ok := byVersion[version]
	if !ok {
		return ValidationResult{}, perrors.New(perrors.KindNotFound, "eventschema.Validate",
			fmt.Errorf("no schema registered for %s v%d", evt.Type(), version))
	}

	var payload any
	if err := json.Unmarshal(evt.DataBytes(), &payload); err != nil {
		return ValidationResult{}, perrors.New(perrors.KindInvalidInput, "eventschema.Validate", fmt.Errorf("decode payload: %w", err))
	}

	if err := entry.compiled.Validate(payload); err != nil {
		return ValidationResult{Valid: false, Errors: validationErrorsFrom(err)}, nil
	}
	return ValidationResult{Valid: true}, nil
}

// RegisterMigration registers the transformation applied to events of
// eventType stored at fromVersion before they are dispatched to a
// handler expecting toVersion.
func (r *Registry) RegisterMigration(eventType string, fromVersion, toVersion int, fn MigrationFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byFrom, ok := r.migrations[eventType]
	if !ok {
		byFrom = make(map[int]map[int]MigrationFunc)
		r.migrations[eventType] = byFrom
	}
	byTo, ok := byFrom[fromVersion]
	if !ok {
		byTo = make(map[int]MigrationFunc)
		byFrom[fromVersion] = byTo
	}
	byTo[toVersion] = fn
}

// Migrate applies the registered migration from fromVersion to
// toVersion, returning the payload unchanged if no migration is
// registered for that exact pair.
func (r *Registry) Migrate(eventType string, fromVersion, toVersion int, payload any) (any, error) {
	r.mu.RLock()
	fn, ok := r.migrations[eventType][fromVersion][toVersion]
	r.mu.RUnlock()
	if !ok {
		return payload, nil
	}
	return fn(payload)
}

// Compatibility classifies the relationship between two registered
// versions of the same event type.
func (r *Registry) Compatibility(eventType string, fromVersion, toVersion int) (Compatibility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byVersion, ok := r.versions[eventType]
	if !ok {
		return Breaking, perrors.New(perrors.KindNotFound, "eventschema.Compatibility", fmt.Errorf("no schemas registered for %s", eventType))
	}
	from, ok := byVersion[fromVersion]
	if !ok {
		return Breaking, perrors.New(perrors.KindNotFound, "eventschema.Compatibility", fmt.Errorf("%s v%d not registered", eventType, fromVersion))
	}
	to, ok := byVersion[toVersion]
	if !ok {
		return Breaking, perrors.New(perrors.KindNotFound, "eventschema.Compatibility", fmt.Errorf("%s v%d not registered", eventType, toVersion))
	}
	return compareSchemas(from.raw, to.raw), nil
}
