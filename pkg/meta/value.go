package meta

import "strings"

// XMLMarker is the reserved prefix that tags a serialized structured
// fragment when a value crosses the system boundary as a plain string
// (JSON storage, RDF export). Inside the engine values carry an explicit
// kind instead of the marker.
const XMLMarker = "__xml__:"

// Value is a single metadata value: either a plain scalar string or a
// structured fragment (canonicalized XML) that downstream exporters
// re-parse into nested graph structure. The engine itself never splits,
// joins or otherwise rewrites a structured value.
type Value struct {
	text       string
	structured bool
}

// Plain returns a scalar string value.
func Plain(s string) Value {
	return Value{text: s}
}

// Structured returns a value carrying a serialized XML fragment.
func Structured(fragment string) Value {
	return Value{text: fragment, structured: true}
}

// Text returns the raw value text. For structured values this is the
// serialized fragment without the boundary marker.
func (v Value) Text() string {
	return v.text
}

// IsStructured reports whether the value is an embedded fragment.
func (v Value) IsStructured() bool {
	return v.structured
}

// Boundary returns the external string form of the value: the raw text
// for plain values, the marker-prefixed fragment for structured ones.
func (v Value) Boundary() string {
	if v.structured {
		return XMLMarker + v.text
	}
	return v.text
}

// ParseBoundary converts an external string form back into a Value,
// recognizing the structured-fragment marker.
func ParseBoundary(s string) Value {
	if strings.HasPrefix(s, XMLMarker) {
		return Structured(strings.TrimPrefix(s, XMLMarker))
	}
	return Plain(s)
}
