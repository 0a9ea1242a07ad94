package eventschema

// compareSchemas classifies the structural relationship between two
// JSON Schema documents for the same event type, following the rules
// in the property-level comment: an added field is forward-compatible
// only when it carries a default (so old producers that omit it still
// satisfy the new schema's intent); any removed field is
// backward-breaking; a field whose declared type set narrows is
// breaking in both directions.
func compareSchemas(from, to map[string]any) Compatibility {
	fromProps := propertiesOf(from)
	toProps := propertiesOf(to)

	forwardOK := true
	backwardOK := true

	for name, toProp := range toProps {
		fromProp, existedBefore := fromProps[name]
		if !existedBefore {
			if !hasDefault(toProp) {
				forwardOK = false
			}
			continue
		}
		if typeNarrowed(fromProp, toProp) {
			forwardOK = false
			backwardOK = false
		}
	}

	for name := range fromProps {
		if _, stillPresent := toProps[name]; !stillPresent {
			backwardOK = false
		}
	}

	switch {
	case forwardOK && backwardOK:
		return Full
	case forwardOK:
		return Forward
	case backwardOK:
		return Backward
	default:
		return Breaking
	}
}

func propertiesOf(schema map[string]any) map[string]any {
	raw, ok := schema["properties"]
	if !ok {
		return nil
	}
	props, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return props
}

func hasDefault(prop any) bool {
	m, ok := prop.(map[string]any)
	if !ok {
		return false
	}
	_, has := m["default"]
	return has
}

// typeSet normalizes a JSON Schema "type" keyword (a string or an
// array of strings) into a set.
func typeSet(prop any) map[string]bool {
	m, ok := prop.(map[string]any)
	if !ok {
		return nil
	}
	set := make(map[string]bool)
	switch t := m["type"].(type) {
	case string:
		set[t] = true
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				set[s] = true
			}
		}
	}
	return set
}

// typeNarrowed reports whether to's accepted type set is a proper
// subset of from's, or otherwise incompatible (neither a subset nor a
// superset) — anything that is not a pure widening.
func typeNarrowed(from, to any) bool {
	fromSet := typeSet(from)
	toSet := typeSet(to)
	if len(fromSet) == 0 || len(toSet) == 0 {
		return false
	}
	if setEqual(fromSet, toSet) {
		return false
	}
	if isSubset(fromSet, toSet) {
		// to is a superset (widening): safe.
		return false
	}
	return true
}

func setEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func isSubset(a, b map[string]bool) bool {
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
