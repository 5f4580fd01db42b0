// Test Type: Unit Test
// Description: Tests for the final join/split value transformation

package meta_test

import (
	"testing"

	"github.com/ki-ujep/metafiles/pkg/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("joiner_collapses_to_single_value", func(t *testing.T) {
		m := meta.NewMap()
		m.Add("dc:description", meta.Plain("a"))
		m.Add("dc:description", meta.Plain("b"))

		out := meta.Normalize(m, meta.TransformRules{
			Joiners: map[string]string{"dc:description": ","},
		})

		values, _ := out.Get("dc:description")
		assert.Equal(t, []string{"a,b"}, texts(values))
	})

	t.Run("splitter_flattens_and_trims", func(t *testing.T) {
		m := meta.NewMap()
		m.Add("dc:creator", meta.Plain("a, b"))
		m.Add("dc:creator", meta.Plain(" c ,, "))

		out := meta.Normalize(m, meta.TransformRules{
			Splitters: map[string]string{"dc:creator": ","},
		})

		values, _ := out.Get("dc:creator")
		assert.Equal(t, []string{"a", "b", "c"}, texts(values))
	})

	t.Run("join_then_split_round_trips", func(t *testing.T) {
		m := meta.NewMap()
		m.Add("k", meta.Plain("a"))
		m.Add("k", meta.Plain("b"))

		joined := meta.Normalize(m, meta.TransformRules{Joiners: map[string]string{"k": ","}})
		values, _ := joined.Get("k")
		require.Equal(t, []string{"a,b"}, texts(values))

		split := meta.Normalize(joined, meta.TransformRules{Splitters: map[string]string{"k": ","}})
		values, _ = split.Get("k")
		assert.Equal(t, []string{"a", "b"}, texts(values))
	})

	t.Run("split_wins_when_key_in_both", func(t *testing.T) {
		m := meta.NewMap()
		m.Add("k", meta.Plain("a,b"))

		out := meta.Normalize(m, meta.TransformRules{
			Joiners:   map[string]string{"k": "+"},
			Splitters: map[string]string{"k": ","},
		})

		values, _ := out.Get("k")
		assert.Equal(t, []string{"a", "b"}, texts(values))
	})

	t.Run("unconfigured_key_passes_through", func(t *testing.T) {
		m := meta.NewMap()
		m.Add("dc:title", meta.Plain("one"))
		m.Add("dc:title", meta.Plain("two"))

		out := meta.Normalize(m, meta.DefaultTransformRules())

		values, _ := out.Get("dc:title")
		assert.Equal(t, []string{"one", "two"}, texts(values))
	})

	t.Run("structured_values_are_opaque", func(t *testing.T) {
		frag := meta.Structured("<a>x,y</a>")

		m := meta.NewMap()
		m.Add("k", meta.Plain("a,b"))
		m.Add("k", frag)

		out := meta.Normalize(m, meta.TransformRules{Splitters: map[string]string{"k": ","}})
		values, _ := out.Get("k")
		require.Len(t, values, 3)
		assert.Equal(t, frag, values[2], "splitter must not mangle a fragment")

		m2 := meta.NewMap()
		m2.Add("k", meta.Plain("a"))
		m2.Add("k", frag)
		out2 := meta.Normalize(m2, meta.TransformRules{Joiners: map[string]string{"k": "+"}})
		values2, _ := out2.Get("k")
		assert.Len(t, values2, 2, "joiner leaves the key alone when a fragment is present")
	})

	t.Run("input_map_is_not_mutated", func(t *testing.T) {
		m := meta.NewMap()
		m.Add("dc:creator", meta.Plain("a,b"))
		before := m.Clone()

		meta.Normalize(m, meta.DefaultTransformRules())

		assert.True(t, m.Equal(before))
	})
}
