// Test Type: Unit Test
// Description: Tests for RDF/XML export - key filtering, literals, fragments, links

package rdf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ki-ujep/metafiles/pkg/meta"
	"github.com/ki-ujep/metafiles/pkg/rdf"
)

const subject = "ark:/77298/t1-bcdfgh"

func TestExporter_Export(t *testing.T) {
	e := rdf.NewExporter(rdf.DefaultPrefixes())

	t.Run("literals_and_subject", func(t *testing.T) {
		m := meta.NewMap()
		m.Set("dc:title", meta.Plain("A Note"))
		m.Add("dc:creator", meta.Plain("A"))
		m.Add("dc:creator", meta.Plain("B"))

		out, err := e.ExportString(m, nil, subject)
		require.NoError(t, err)

		assert.Contains(t, out, `rdf:about="`+subject+`"`)
		assert.Contains(t, out, "<dc:title>A Note</dc:title>")
		assert.Contains(t, out, "<dc:creator>A</dc:creator>")
		assert.Contains(t, out, "<dc:creator>B</dc:creator>")
		assert.Contains(t, out, `xmlns:dc="http://purl.org/dc/elements/1.1/"`)
	})

	t.Run("internal_and_unknown_keys_skipped", func(t *testing.T) {
		m := meta.NewMap()
		m.Set("mfterms:prefix", meta.Plain("t1"))
		m.Set("unqualified", meta.Plain("x"))
		m.Set("mystery:key", meta.Plain("y"))
		m.Set("dc:title", meta.Plain("kept"))

		out, err := e.ExportString(m, nil, subject)
		require.NoError(t, err)

		assert.NotContains(t, out, "mfterms")
		assert.NotContains(t, out, "unqualified")
		assert.NotContains(t, out, "mystery")
		assert.Contains(t, out, "<dc:title>kept</dc:title>")
	})

	t.Run("structured_fragment_nests", func(t *testing.T) {
		m := meta.NewMap()
		m.Add("dcterms:license", meta.Structured(
			`<spdx:License xmlns:spdx="http://spdx.org/rdf/terms#"><spdx:licenseId>MIT</spdx:licenseId></spdx:License>`))

		out, err := e.ExportString(m, nil, subject)
		require.NoError(t, err)

		assert.Contains(t, out, "<dcterms:license>")
		assert.Contains(t, out, "<spdx:licenseId>MIT</spdx:licenseId>")
	})

	t.Run("links_become_nested_descriptions", func(t *testing.T) {
		linkMeta := meta.NewMap()
		linkMeta.Set("mfterms:ark", meta.Plain("ark:/77298/t1-target"))
		linkMeta.Set("dc:description", meta.Plain("typeset from"))

		links := []meta.LinkInfo{
			{Type: "dcterms:source", Path: "src/*.tex", Metadata: linkMeta},
			{Type: "thumbnail", Path: "thumbs/*", Metadata: meta.NewMap()},
		}

		out, err := e.ExportString(meta.NewMap(), links, subject)
		require.NoError(t, err)

		assert.Contains(t, out, "<dcterms:source>")
		assert.Contains(t, out, `rdf:about="ark:/77298/t1-target"`)
		assert.Contains(t, out, "<dc:description>typeset from</dc:description>")
		// Unqualified link type falls back to the generic relation.
		assert.Contains(t, out, "<dcterms:relation>")
		// The resolved-target key itself is internal and stays out of the output.
		assert.NotContains(t, out, "mfterms")
	})

	t.Run("deterministic_output", func(t *testing.T) {
		m := meta.NewMap()
		m.Set("dc:title", meta.Plain("x"))
		m.Set("dcterms:modified", meta.Plain("2024-01-01"))

		a, err := e.ExportString(m, nil, subject)
		require.NoError(t, err)
		b, err := e.ExportString(m, nil, subject)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
