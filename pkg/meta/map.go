package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Map is an ordered mapping from qualified metadata keys (for example
// "dc:title") to sequences of values. Both key order and value order are
// insertion order; normalization and RDF export depend on it.
//
// A Map handed out by the resolver is owned by the caller. The resolver
// never aliases one Map across two files' results; use Clone when a
// branch needs its own view.
type Map struct {
	keys   []string
	values map[string][]Value
}

// NewMap returns an empty metadata map.
func NewMap() *Map {
	return &Map{values: make(map[string][]Value)}
}

// Set replaces the value sequence for key with the single value v,
// discarding anything inherited. This is the override primitive.
func (m *Map) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = []Value{v}
}

// Add appends v to the value sequence for key, creating the key if
// absent. This is the accumulation primitive.
func (m *Map) Add(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append(m.values[key], v)
}

// Replace swaps the whole value sequence for key, keeping its position
// if the key already exists.
func (m *Map) Replace(key string, values []Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = values
}

// Get returns the value sequence for key.
func (m *Map) Get(key string) ([]Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// First returns the first value for key, if any.
func (m *Map) First(key string) (Value, bool) {
	if v, ok := m.values[key]; ok && len(v) > 0 {
		return v[0], true
	}
	return Value{}, false
}

// Keys returns the keys in insertion order. The returned slice is a copy.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of keys.
func (m *Map) Len() int {
	return len(m.keys)
}

// Clone returns a deep copy. Value slices are copied so the clone and
// the original cannot observe each other's mutations.
func (m *Map) Clone() *Map {
	c := &Map{
		keys:   make([]string, len(m.keys)),
		values: make(map[string][]Value, len(m.values)),
	}
	copy(c.keys, m.keys)
	for k, vs := range m.values {
		cv := make([]Value, len(vs))
		copy(cv, vs)
		c.values[k] = cv
	}
	return c
}

// Equal reports whether two maps hold the same keys in the same order
// with identical value sequences.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	for i, k := range m.keys {
		if other.keys[i] != k {
			return false
		}
		a, b := m.values[k], other.values[k]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if a[j] != b[j] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON writes the map as an ordered JSON object of string arrays,
// converting structured values to their marker-prefixed boundary form.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		strs := make([]string, len(m.values[k]))
		for j, v := range m.values[k] {
			strs[j] = v.Boundary()
		}
		vb, err := json.Marshal(strs)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an ordered JSON object of string arrays, restoring
// structured values from their boundary form. Key order follows the
// document.
func (m *Map) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.values = make(map[string][]Value)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata map: expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("metadata map: expected string key, got %v", keyTok)
		}
		var strs []string
		if err := dec.Decode(&strs); err != nil {
			return fmt.Errorf("metadata map: values for %q: %w", key, err)
		}
		vals := make([]Value, len(strs))
		for i, s := range strs {
			vals[i] = ParseBoundary(s)
		}
		m.Replace(key, vals)
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
