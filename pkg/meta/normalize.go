package meta

import "strings"

// TransformRules configures the final per-key value transformation
// applied once after resolution. Joiners collapse a key's values into a
// single delimited string; Splitters explode each value on a delimiter
// and flatten. A key configured in both is treated as split-only: split
// wins, deterministically.
type TransformRules struct {
	Joiners   map[string]string
	Splitters map[string]string
}

// DefaultTransformRules returns the transformation the stock rule
// vocabulary expects: internal shoulder/manager keys and descriptions
// join, creators split on commas.
func DefaultTransformRules() TransformRules {
	return TransformRules{
		Joiners: map[string]string{
			"mfterms:prefix":       "",
			"mfterms:meta-manager": "+",
			"dc:description":       "\n",
		},
		Splitters: map[string]string{
			"dc:creator": ",",
		},
	}
}

// Normalize applies the transform rules to m and returns a new map; m is
// not mutated. Keys in neither rule set pass through unchanged,
// preserving order and multiplicity. Structured values are opaque: a
// splitter passes them through untouched, and a joiner leaves the whole
// key unchanged if any of its values is structured.
func Normalize(m *Map, rules TransformRules) *Map {
	out := NewMap()
	for _, key := range m.Keys() {
		values, _ := m.Get(key)
		switch {
		case hasRule(rules.Splitters, key):
			out.Replace(key, splitValues(values, rules.Splitters[key]))
		case hasRule(rules.Joiners, key):
			out.Replace(key, joinValues(values, rules.Joiners[key]))
		default:
			cp := make([]Value, len(values))
			copy(cp, values)
			out.Replace(key, cp)
		}
	}
	return out
}

func hasRule(rules map[string]string, key string) bool {
	_, ok := rules[key]
	return ok
}

func splitValues(values []Value, sep string) []Value {
	var flat []Value
	for _, v := range values {
		if v.IsStructured() || sep == "" {
			flat = append(flat, v)
			continue
		}
		for _, part := range strings.Split(v.Text(), sep) {
			part = strings.TrimSpace(part)
			if part != "" {
				flat = append(flat, Plain(part))
			}
		}
	}
	if flat == nil {
		flat = []Value{}
	}
	return flat
}

func joinValues(values []Value, sep string) []Value {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v.IsStructured() {
			// Joining would mangle the fragment; leave the key as-is.
			cp := make([]Value, len(values))
			copy(cp, values)
			return cp
		}
		parts = append(parts, v.Text())
	}
	return []Value{Plain(strings.Join(parts, sep))}
}
