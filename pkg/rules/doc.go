// Package rules defines the rule tree that drives metadata resolution
// and the loader that builds it from an XML rule document.
//
// A rule document mirrors the directory tree it describes: nested dir
// scopes, file selectors, metadata operations and link declarations.
// The loader resolves textual includes, validates the document and
// produces an immutable tree of tagged variants; after LoadFile returns
// the tree is never mutated and may be shared across concurrent
// resolutions.
package rules
