// Test Type: Unit Test
// Description: Tests for the cascading resolution engine - overlays, selection, links

package resolve_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ki-ujep/metafiles/pkg/meta"
	"github.com/ki-ujep/metafiles/pkg/resolve"
	"github.com/ki-ujep/metafiles/pkg/rules"
)

func set(key, value string) *rules.MetaOp {
	return &rules.MetaOp{Kind: rules.OpSet, Key: key, Value: meta.Plain(value)}
}

func add(key, value string) *rules.MetaOp {
	return &rules.MetaOp{Kind: rules.OpAdd, Key: key, Value: meta.Plain(value)}
}

func values(t *testing.T, m *meta.Map, key string) []string {
	t.Helper()
	vs, ok := m.Get(key)
	require.True(t, ok, "key %s missing", key)
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Text()
	}
	return out
}

// Small tree used across tests: root → dir "doc" with a creator,
// containing a *.txt selector adding a title.
func scenarioTree() *rules.DirRule {
	return &rules.DirRule{
		Children: []rules.Node{
			&rules.DirRule{
				PathSegment: "doc",
				Children: []rules.Node{
					set("dc:creator", "Lib"),
					&rules.FilesRule{
						Pattern:  "*.txt",
						Children: []rules.Node{add("dc:title", "Note")},
					},
				},
			},
		},
	}
}

func TestResolver_Scenario(t *testing.T) {
	r := resolve.NewResolver(scenarioTree(), meta.TransformRules{})

	t.Run("matching_file_gets_cascade", func(t *testing.T) {
		m, links := r.Resolve("doc", "readme.txt")

		assert.Equal(t, []string{"Lib"}, values(t, m, "dc:creator"))
		assert.Equal(t, []string{"Note"}, values(t, m, "dc:title"))
		assert.Empty(t, links)
	})

	t.Run("unmatched_branch_is_pruned", func(t *testing.T) {
		m, links := r.Resolve("other", "readme.txt")

		assert.Equal(t, 0, m.Len())
		assert.Empty(t, links)
	})

	t.Run("deterministic", func(t *testing.T) {
		m1, _ := r.Resolve("doc", "readme.txt")
		m2, _ := r.Resolve("doc", "readme.txt")

		b1, err := json.Marshal(m1)
		require.NoError(t, err)
		b2, err := json.Marshal(m2)
		require.NoError(t, err)
		assert.Equal(t, b1, b2)
	})
}

func TestResolver_DirPrefixMatching(t *testing.T) {
	tree := &rules.DirRule{
		Children: []rules.Node{
			&rules.DirRule{
				PathSegment: "a",
				Children: []rules.Node{
					&rules.DirRule{
						PathSegment: "b",
						Children: []rules.Node{
							set("dc:title", "ab"),
							&rules.FilesRule{Recursive: true},
						},
					},
				},
			},
		},
	}
	r := resolve.NewResolver(tree, meta.TransformRules{})

	t.Run("rule_path_prefix_of_deeper_dir", func(t *testing.T) {
		m, _ := r.Resolve("a/b/c", "f")
		assert.Equal(t, []string{"ab"}, values(t, m, "dc:title"))
	})

	t.Run("diverging_path_no_match", func(t *testing.T) {
		m, _ := r.Resolve("a/c", "f")
		assert.Equal(t, 0, m.Len())
	})

	t.Run("shorter_real_path_no_match", func(t *testing.T) {
		m, _ := r.Resolve("a", "f")
		assert.Equal(t, 0, m.Len())
	})
}

func TestResolver_OverrideVsAccumulate(t *testing.T) {
	makeTree := func(descendant *rules.MetaOp) *rules.DirRule {
		return &rules.DirRule{
			Children: []rules.Node{
				add("dc:title", "X"),
				&rules.DirRule{
					PathSegment: "sub",
					Children: []rules.Node{
						descendant,
						&rules.FilesRule{Pattern: "*"},
					},
				},
			},
		}
	}

	t.Run("descendant_set_discards_inherited", func(t *testing.T) {
		r := resolve.NewResolver(makeTree(set("dc:title", "Y")), meta.TransformRules{})
		m, _ := r.Resolve("sub", "f")
		assert.Equal(t, []string{"Y"}, values(t, m, "dc:title"))
	})

	t.Run("descendant_add_accumulates", func(t *testing.T) {
		r := resolve.NewResolver(makeTree(add("dc:title", "Y")), meta.TransformRules{})
		m, _ := r.Resolve("sub", "f")
		assert.Equal(t, []string{"X", "Y"}, values(t, m, "dc:title"))
	})
}

func TestResolver_SiblingIsolation(t *testing.T) {
	// Two sibling dir scopes override the same key; neither may observe
	// the other's override through the shared parent overlay.
	tree := &rules.DirRule{
		Children: []rules.Node{
			set("dc:creator", "root"),
			&rules.DirRule{
				PathSegment: "left",
				Children: []rules.Node{
					set("dc:creator", "left"),
					&rules.FilesRule{Pattern: "*"},
				},
			},
			&rules.DirRule{
				PathSegment: "right",
				Children: []rules.Node{
					&rules.FilesRule{Pattern: "*"},
				},
			},
		},
	}
	r := resolve.NewResolver(tree, meta.TransformRules{})

	left, _ := r.Resolve("left", "f")
	right, _ := r.Resolve("right", "f")

	assert.Equal(t, []string{"left"}, values(t, left, "dc:creator"))
	assert.Equal(t, []string{"root"}, values(t, right, "dc:creator"))
}

func TestResolver_SelectorSemantics(t *testing.T) {
	t.Run("filename_precedence_over_pattern", func(t *testing.T) {
		tree := &rules.DirRule{
			Children: []rules.Node{
				&rules.FilesRule{
					Filename: "a.txt",
					Pattern:  "*.md",
					Children: []rules.Node{set("dc:title", "hit")},
				},
			},
		}
		r := resolve.NewResolver(tree, meta.TransformRules{})

		// Exact filename matches even though the pattern would not.
		m, _ := r.Resolve("", "a.txt")
		assert.Equal(t, []string{"hit"}, values(t, m, "dc:title"))

		// Pattern is never consulted when filename is present.
		m, _ = r.Resolve("", "b.md")
		assert.Equal(t, 0, m.Len())
	})

	t.Run("recursive_flag_widens_depth", func(t *testing.T) {
		makeTree := func(recursive bool) *rules.DirRule {
			return &rules.DirRule{
				Children: []rules.Node{
					&rules.DirRule{
						PathSegment: "img",
						Children: []rules.Node{
							&rules.FilesRule{
								Pattern:   "*.jpg",
								Recursive: recursive,
								Children:  []rules.Node{set("dc:title", "photo")},
							},
						},
					},
				},
			}
		}

		r := resolve.NewResolver(makeTree(true), meta.TransformRules{})
		m, _ := r.Resolve("img/sub", "photo.jpg")
		assert.Equal(t, []string{"photo"}, values(t, m, "dc:title"))

		r = resolve.NewResolver(makeTree(false), meta.TransformRules{})
		m, _ = r.Resolve("img/sub", "photo.jpg")
		assert.Equal(t, 0, m.Len())

		// Non-recursive still matches directly inside the scope.
		m, _ = r.Resolve("img", "photo.jpg")
		assert.Equal(t, []string{"photo"}, values(t, m, "dc:title"))
	})

	t.Run("default_pattern_matches_everything_in_scope", func(t *testing.T) {
		tree := &rules.DirRule{
			Children: []rules.Node{
				&rules.FilesRule{Pattern: "*", Children: []rules.Node{set("k", "v")}},
			},
		}
		r := resolve.NewResolver(tree, meta.TransformRules{})

		m, _ := r.Resolve("", "anything.bin")
		assert.Equal(t, []string{"v"}, values(t, m, "k"))

		m, _ = r.Resolve("below", "anything.bin")
		assert.Equal(t, 0, m.Len(), "non-recursive selector is depth-bound")
	})
}

func TestResolver_MultipleMatches(t *testing.T) {
	// Two selectors match the same file; rules are cumulative, the later
	// match's snapshot wins per key.
	tree := &rules.DirRule{
		Children: []rules.Node{
			&rules.FilesRule{
				Pattern:  "*",
				Children: []rules.Node{set("dc:title", "generic"), set("dc:date", "2020")},
			},
			&rules.FilesRule{
				Filename: "special.txt",
				Children: []rules.Node{set("dc:title", "special")},
			},
		},
	}
	r := resolve.NewResolver(tree, meta.TransformRules{})

	m, _ := r.Resolve("", "special.txt")
	assert.Equal(t, []string{"special"}, values(t, m, "dc:title"))
	assert.Equal(t, []string{"2020"}, values(t, m, "dc:date"))

	m, _ = r.Resolve("", "plain.txt")
	assert.Equal(t, []string{"generic"}, values(t, m, "dc:title"))
}

func TestResolver_Links(t *testing.T) {
	tree := &rules.DirRule{
		Children: []rules.Node{
			set("dc:creator", "file-level"),
			&rules.FilesRule{
				Pattern: "*.pdf",
				Children: []rules.Node{
					&rules.LinkRule{
						Type:     "source",
						Path:     "src/*.tex",
						Children: []rules.Node{set("dc:description", "typeset from")},
					},
					&rules.LinkRule{
						Type: "thumbnail",
						Path: "thumbs/*.png",
					},
				},
			},
		},
	}
	r := resolve.NewResolver(tree, meta.TransformRules{})

	_, links := r.Resolve("", "paper.pdf")
	require.Len(t, links, 2)

	assert.Equal(t, "source", links[0].Type)
	assert.Equal(t, "src/*.tex", links[0].Path)
	assert.Equal(t, []string{"typeset from"}, values(t, links[0].Metadata, "dc:description"))
	// Links never inherit the file's metadata.
	_, ok := links[0].Metadata.Get("dc:creator")
	assert.False(t, ok)

	assert.Equal(t, "thumbnail", links[1].Type)
	assert.Equal(t, 0, links[1].Metadata.Len())
}

func TestResolver_NormalizationApplied(t *testing.T) {
	tree := &rules.DirRule{
		Children: []rules.Node{
			add("dc:creator", "A, B"),
			add("dc:description", "first"),
			&rules.DirRule{
				PathSegment: "doc",
				Children: []rules.Node{
					add("dc:description", "second"),
					&rules.FilesRule{Pattern: "*"},
				},
			},
		},
	}
	r := resolve.NewResolver(tree, meta.DefaultTransformRules())

	m, _ := r.Resolve("doc", "readme.txt")
	assert.Equal(t, []string{"A", "B"}, values(t, m, "dc:creator"))
	assert.Equal(t, []string{"first\nsecond"}, values(t, m, "dc:description"))
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{".", nil},
		{"/", nil},
		{"a/b", []string{"a", "b"}},
		{"/a//b/", []string{"a", "b"}},
		{"a\\b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolve.SplitPath(tt.in), "SplitPath(%q)", tt.in)
	}
}
