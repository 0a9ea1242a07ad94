package model

import (
	"fmt"
	"sort"
)

// ConflictError reports a naming collision between two or more
// contributors to a composed schema.
type ConflictError struct {
	Subject      string // model name or "table.field"
	Contributors []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("model: conflicting contributions for %q from %v", e.Subject, e.Contributors)
}

// ProviderSource pairs a SchemaProvider with a label identifying its
// contributor, used only for Conflict error messages.
type ProviderSource struct {
	Label    string
	Provider SchemaProvider
}

// ExtensionSource pairs an ExtensionProvider with a label.
type ExtensionSource struct {
	Label    string
	Provider ExtensionProvider
}

// ComposedSchema is the result of Compose: an ordered list of models
// (core first, then each contributor's models in registration order)
// plus a name index.
type ComposedSchema struct {
	Models []*Model
	byName map[string]*Model
}

// Model looks up a composed model by name.
func (s *ComposedSchema) Model(name string) (*Model, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// ComposeResult is Compose's return value: the composed schema plus
// any foreign-key cycles detected. Cycles are permitted (per spec) so
// they are reported, not returned as an error.
type ComposeResult struct {
	Schema *ComposedSchema
	Cycles [][]string
}

// Compose merges core with each provider's contributed models (in
// order) and then applies each extension's field additions (in
// order), validating referential integrity at the end. Compose is a
// pure function: it never mutates its inputs and holds no state
// between calls.
func Compose(core []*Model, providers []ProviderSource, extensions []ExtensionSource) (*ComposeResult, error) {
	schema := &ComposedSchema{byName: make(map[string]*Model)}
	contributorOf := make(map[string]string)

	for _, m := range core {
		cp := m.Clone()
		schema.Models = append(schema.Models, cp)
		schema.byName[cp.Name] = cp
		contributorOf[cp.Name] = "core"
	}

	for _, src := range providers {
		for _, m := range src.Provider.Schema() {
			if _, exists := schema.byName[m.Name]; exists {
				return nil, &ConflictError{
					Subject:      m.Name,
					Contributors: []string{contributorOf[m.Name], src.Label},
				}
			}
			cp := m.Clone()
			schema.Models = append(schema.Models, cp)
			schema.byName[cp.Name] = cp
			contributorOf[cp.Name] = src.Label
		}
	}

	fieldContributorOf := make(map[string]string) // "table.field" -> label
	for name := range schema.byName {
		for _, f := range schema.byName[name].Fields {
			fieldContributorOf[name+"."+f.Name] = "core/" + contributorOf[name]
		}
	}

	for _, src := range extensions {
		target, ok := schema.byName[src.Provider.Extends()]
		if !ok {
			return nil, fmt.Errorf("model: extension %s targets unknown model %q", src.Label, src.Provider.Extends())
		}
		for _, f := range src.Provider.Fields() {
			key := target.Name + "." + f.Name
			existing, ok := target.Field(f.Name)
			if !ok {
				target.AddField(f)
				fieldContributorOf[key] = src.Label
				continue
			}
			if existing.compatible(f) {
				continue
			}
			return nil, &ConflictError{
				Subject:      key,
				Contributors: []string{fieldContributorOf[key], src.Label},
			}
		}
	}

	if err := validateReferentialIntegrity(schema); err != nil {
		return nil, err
	}

	_, cycles := topologicalOrder(schema)

	return &ComposeResult{Schema: schema, Cycles: cycles}, nil
}

func validateReferentialIntegrity(schema *ComposedSchema) error {
	for _, m := range schema.Models {
		seen := make(map[string]bool)
		for _, f := range m.Fields {
			if f.PrimaryKey {
				if seen[f.Name] {
					return fmt.Errorf("model: duplicate primary key field %q on %q", f.Name, m.Name)
				}
				seen[f.Name] = true
			}
		}
		for _, fk := range m.ForeignKeys {
			if _, ok := schema.byName[fk.RefTable]; !ok {
				return fmt.Errorf("model: foreign key %s.%s references unknown table %q", m.Name, fk.Name, fk.RefTable)
			}
		}
	}
	return nil
}

// topologicalOrder runs Kahn's algorithm over the foreign-key edges of
// schema (edge from a referenced table to each of its dependents) and
// returns a deterministic dependency-first order. Any tables left over
// once the frontier is exhausted participate in a cycle; they are
// still appended (in sorted order) so the result always contains every
// model, and the cycle's member names are returned separately.
func topologicalOrder(schema *ComposedSchema) ([]string, [][]string) {
	indegree := make(map[string]int, len(schema.Models))
	dependents := make(map[string][]string)

	for _, m := range schema.Models {
		if _, ok := indegree[m.Name]; !ok {
			indegree[m.Name] = 0
		}
	}
	for _, m := range schema.Models {
		for _, fk := range m.ForeignKeys {
			if fk.RefTable == m.Name {
				continue // self-reference: not a cross-table ordering constraint
			}
			dependents[fk.RefTable] = append(dependents[fk.RefTable], m.Name)
			indegree[m.Name]++
		}
	}

	var frontier []string
	for name, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, name)
		}
	}
	sort.Strings(frontier)

	var order []string
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		order = append(order, n)

		next := append([]string(nil), dependents[n]...)
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
				sort.Strings(frontier)
			}
		}
	}

	if len(order) == len(indegree) {
		return order, nil
	}

	var remaining []string
	for name, deg := range indegree {
		if deg > 0 {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	order = append(order, remaining...)
	return order, [][]string{remaining}
}

// filterOrder returns the subset of order whose names are in set,
// preserving order's relative ordering.
func filterOrder(order []string, set map[string]bool) []string {
	var out []string
	for _, name := range order {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}
