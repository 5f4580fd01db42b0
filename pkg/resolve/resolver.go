// Package resolve implements the cascading metadata resolution engine:
// it walks a rule tree in lock-step with a file's directory path,
// accumulates metadata overlays, selects the file rules that own the
// file and produces a finalized metadata map plus link descriptors.
//
// Resolution is a pure function of (rule tree, path): the tree is never
// mutated and every call returns freshly allocated results, so one
// resolver may serve many goroutines resolving different files.
package resolve

import (
	"github.com/rs/zerolog"

	"github.com/ki-ujep/metafiles/pkg/logging"
	"github.com/ki-ujep/metafiles/pkg/meta"
	"github.com/ki-ujep/metafiles/pkg/rules"
)

// Resolver resolves per-file metadata against one immutable rule tree.
type Resolver struct {
	tree      *rules.DirRule
	transform meta.TransformRules
	logger    zerolog.Logger
}

// NewResolver creates a resolver over tree. The transform rules are
// applied once per file, after the walk completes.
func NewResolver(tree *rules.DirRule, transform meta.TransformRules) *Resolver {
	return &Resolver{
		tree:      tree,
		transform: transform,
		logger:    logging.GetLogger("resolve"),
	}
}

// Resolve computes the metadata and links for the file fileName inside
// the directory dirPath (relative to the scanned root). A file no rule
// selects yields an empty map and no links; per-file resolution never
// fails.
func (r *Resolver) Resolve(dirPath, fileName string) (*meta.Map, []meta.LinkInfo) {
	realDir := SplitPath(dirPath)

	walk := &walkState{
		resolver: r,
		realDir:  realDir,
		fileName: fileName,
	}
	walk.collectDir(r.tree, nil, meta.NewMap())

	merged := mergeCollected(walk.collected)
	final := meta.Normalize(merged, r.transform)

	r.logger.Debug().
		Str("dir", dirPath).
		Str("file", fileName).
		Int("matchedSelectors", len(walk.collected)).
		Int("links", len(walk.links)).
		Msg("file resolved")

	return final, walk.links
}

// walkState carries one resolution's accumulation: every matched
// selector contributes its full cascade snapshot to collected, links
// gather in document order.
type walkState struct {
	resolver  *Resolver
	realDir   []string
	fileName  string
	collected []*meta.Map
	links     []meta.LinkInfo
}

// collectDir walks one directory scope. The overlay passed in belongs
// to the parent; this node overlays its own operations onto a copy, so
// sibling branches never observe each other's values.
func (w *walkState) collectDir(node *rules.DirRule, parentRulePath []string, overlay *meta.Map) {
	rulePath := parentRulePath
	if node.PathSegment != "" {
		rulePath = append(append([]string(nil), parentRulePath...), node.PathSegment)
	}
	if !matchesDir(rulePath, w.realDir) {
		return
	}

	overlay = applyOps(overlay, node.Children)

	for _, child := range node.Children {
		switch c := child.(type) {
		case *rules.DirRule:
			w.collectDir(c, rulePath, overlay)
		case *rules.FilesRule:
			w.collectFiles(c, rulePath, overlay)
		case *rules.MetaOp:
			// already applied to the overlay
		}
	}
}

// collectFiles applies a file selector. On a match the selector's own
// operations overlay the inherited cascade, the snapshot joins the
// collector and the selector's link rules emit fresh link descriptors.
func (w *walkState) collectFiles(sel *rules.FilesRule, rulePath []string, overlay *meta.Map) {
	if !matchesFile(sel, rulePath, w.realDir, w.fileName) {
		return
	}

	matched := applyOps(overlay, sel.Children)
	w.collected = append(w.collected, matched)

	for _, child := range sel.Children {
		link, ok := child.(*rules.LinkRule)
		if !ok {
			continue
		}
		// Links start from an empty map: no inheritance from the file.
		linkMeta := applyOps(meta.NewMap(), link.Children)
		w.links = append(w.links, meta.LinkInfo{
			Type:     link.Type,
			Path:     link.Path,
			Metadata: linkMeta,
		})
	}

	w.resolver.logger.Debug().
		Str("file", w.fileName).
		Str("filename", sel.Filename).
		Str("pattern", sel.Pattern).
		Bool("recursive", sel.Recursive).
		Msg("selector matched")
}

// applyOps overlays the MetaOp children of a node onto base, returning
// a new map; base is never mutated.
func applyOps(base *meta.Map, children []rules.Node) *meta.Map {
	out := base.Clone()
	for _, child := range children {
		op, ok := child.(*rules.MetaOp)
		if !ok {
			continue
		}
		switch op.Kind {
		case rules.OpSet:
			out.Set(op.Key, op.Value)
		case rules.OpAdd:
			out.Add(op.Key, op.Value)
		}
	}
	return out
}

// mergeCollected folds the matched selectors' snapshots into one map.
// Later matches override earlier ones per key; key order follows first
// appearance across the snapshots.
func mergeCollected(collected []*meta.Map) *meta.Map {
	if len(collected) == 1 {
		return collected[0]
	}
	out := meta.NewMap()
	for _, m := range collected {
		for _, key := range m.Keys() {
			values, _ := m.Get(key)
			cp := make([]meta.Value, len(values))
			copy(cp, values)
			out.Replace(key, cp)
		}
	}
	return out
}
