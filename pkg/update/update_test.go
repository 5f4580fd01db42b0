// Test Type: Integration Test
// Description: Walks a temp data root and verifies the produced records

package update_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ki-ujep/metafiles/pkg/meta"
	"github.com/ki-ujep/metafiles/pkg/resolve"
	"github.com/ki-ujep/metafiles/pkg/rules"
	"github.com/ki-ujep/metafiles/pkg/store"
	"github.com/ki-ujep/metafiles/pkg/update"
)

func testTree() *rules.DirRule {
	return &rules.DirRule{
		Children: []rules.Node{
			&rules.MetaOp{Kind: rules.OpSet, Key: "mfterms:prefix", Value: meta.Plain("x5")},
			&rules.MetaOp{Kind: rules.OpSet, Key: "dc:title", Value: meta.Plain("checksum {hash}")},
			&rules.FilesRule{
				Pattern:   "*",
				Recursive: true,
				Children: []rules.Node{
					&rules.MetaOp{Kind: rules.OpAdd, Key: "dc:identifier", Value: meta.Plain("{ark}")},
				},
			},
		},
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRun_RecordsEveryFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "sub/b.txt", "beta")

	st := openStore(t)
	resolver := resolve.NewResolver(testTree(), meta.TransformRules{})
	u := update.New(resolver, st, update.Options{
		NAAN:   "77298",
		Root:   root,
		Policy: store.DefaultPolicy(),
	})

	summary, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	assert.Zero(t, summary.Conflicts)

	records, err := st.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "a.txt", records[0].LocalPath)
	assert.Equal(t, "sub/b.txt", records[1].LocalPath)

	sum := sha256.Sum256([]byte("alpha"))
	assert.Equal(t, sum[:], records[0].Digest)

	// Placeholders are filled from the file being processed.
	title, ok := records[0].Metadata.First("dc:title")
	require.True(t, ok)
	assert.Equal(t, "checksum "+hex.EncodeToString(sum[:]), title.Text())

	ident, ok := records[0].Metadata.First("dc:identifier")
	require.True(t, ok)
	assert.Contains(t, ident.Text(), "ark:/77298/x5-")

	// The canonical form keys the record.
	assert.Contains(t, records[0].ArkBaseName, "ark%3A%2F77298%2Fx5")
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")

	st := openStore(t)
	resolver := resolve.NewResolver(testTree(), meta.TransformRules{})
	u := update.New(resolver, st, update.Options{NAAN: "77298", Root: root, Policy: store.DefaultPolicy()})

	_, err := u.Run(context.Background())
	require.NoError(t, err)

	summary, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Conflicts)

	records, err := st.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_ChangedFileIsAConflict(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")

	st := openStore(t)
	resolver := resolve.NewResolver(testTree(), meta.TransformRules{})
	u := update.New(resolver, st, update.Options{NAAN: "77298", Root: root, Policy: store.DefaultPolicy()})

	_, err := u.Run(context.Background())
	require.NoError(t, err)

	writeFile(t, root, "a.txt", "alpha v2")

	summary, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Conflicts)

	// Default policy accepts the change.
	records, err := st.ListFiles(context.Background())
	require.NoError(t, err)
	sum := sha256.Sum256([]byte("alpha v2"))
	assert.Equal(t, sum[:], records[0].Digest)
}

func TestRun_MissingPrefixFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")

	tree := &rules.DirRule{Children: []rules.Node{
		&rules.MetaOp{Kind: rules.OpSet, Key: "dc:title", Value: meta.Plain("untagged")},
	}}
	st := openStore(t)
	u := update.New(resolve.NewResolver(tree, meta.TransformRules{}), st,
		update.Options{NAAN: "77298", Root: root, Policy: store.DefaultPolicy()})

	_, err := u.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mfterms:prefix")
}

func TestSubstitutePlaceholders(t *testing.T) {
	subs := map[string]string{"hash": "abc", "ark": "ark:/1/x-bcd"}

	t.Run("replaces_known_keys", func(t *testing.T) {
		out, err := update.SubstitutePlaceholders("digest {hash} of {ark}", subs)
		require.NoError(t, err)
		assert.Equal(t, "digest abc of ark:/1/x-bcd", out)
	})

	t.Run("double_braces_are_literals", func(t *testing.T) {
		out, err := update.SubstitutePlaceholders("set {{x}} and {hash}", subs)
		require.NoError(t, err)
		assert.Equal(t, "set {x} and abc", out)
	})

	t.Run("unknown_key_is_an_error", func(t *testing.T) {
		_, err := update.SubstitutePlaceholders("{nope}", subs)
		require.Error(t, err)
	})

	t.Run("plain_text_untouched", func(t *testing.T) {
		out, err := update.SubstitutePlaceholders("no markers here", subs)
		require.NoError(t, err)
		assert.Equal(t, "no markers here", out)
	})
}
