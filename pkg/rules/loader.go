package rules

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/ki-ujep/metafiles/pkg/errors"
	"github.com/ki-ujep/metafiles/pkg/logging"
	"github.com/ki-ujep/metafiles/pkg/meta"
)

// Namespace is the XML namespace of rule documents.
const Namespace = "http://ki.ujep.cz/metafiles"

// Element names recognized inside the rule namespace.
const (
	elemDir      = "dir"
	elemFiles    = "files"
	elemMetadata = "metadata"
	elemLinks    = "links"
	elemLink     = "link"
	elemSet      = "set"
	elemAdd      = "add"
	elemInclude  = "include"
)

// wellKnownAttrs maps shorthand metadata attributes on dir, files and
// link elements to their qualified keys. Each name also has a ".add"
// variant that accumulates instead of overriding.
var wellKnownAttrs = []struct {
	attr string
	key  string
}{
	{"creator", "dc:creator"},
	{"date", "dc:date"},
	{"description", "dc:description"},
	{"title", "dc:title"},
	{"prefix", "mfterms:prefix"},
	{"meta-manager", "mfterms:meta-manager"},
}

const includeCacheSize = 64

// Loader parses rule documents into immutable rule trees. Includes are
// resolved eagerly, before tree construction; parsed include targets
// are memoized so documents shared between rule files parse once.
//
// A Loader is not safe for concurrent use; load documents up front and
// share the resulting tree instead.
type Loader struct {
	logger zerolog.Logger
	cache  *lru.Cache[string, *etree.Document]
	active map[string]bool
}

// NewLoader creates a rule document loader.
func NewLoader() *Loader {
	cache, _ := lru.New[string, *etree.Document](includeCacheSize)
	return &Loader{
		logger: logging.GetLogger("rules.loader"),
		cache:  cache,
		active: make(map[string]bool),
	}
}

// LoadFile parses the rule document at path and returns the root
// directory rule. Any malformation is fatal: no partial tree is ever
// returned.
func (l *Loader) LoadFile(path string) (*DirRule, error) {
	doc, err := l.loadDocument(path)
	if err != nil {
		return nil, err
	}

	root := doc.Root()
	if root == nil {
		return nil, errors.Newf(errors.ErrDocumentParse, "rule document %s has no root element", path)
	}

	scope := scopeFor(root, nil)
	if nsURI(root, scope) != Namespace || root.Tag != elemDir {
		return nil, errors.Newf(errors.ErrDocumentParse,
			"rule document %s: root must be <dir> in namespace %s", path, Namespace)
	}

	tree, err := l.buildDir(root, scope)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Str("document", path).Msg("rule document loaded")
	return tree, nil
}

// loadDocument parses one document, resolving includes recursively.
// Resolved documents are cached by cleaned absolute path.
func (l *Loader) loadDocument(path string) (*etree.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrDocumentInclude, "cannot resolve document path %s", path)
	}
	abs = filepath.Clean(abs)

	if l.active[abs] {
		return nil, errors.Newf(errors.ErrDocumentInclude, "include cycle through %s", abs)
	}
	if doc, ok := l.cache.Get(abs); ok {
		return doc, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(abs); err != nil {
		return nil, errors.Wrapf(err, errors.ErrDocumentParse, "cannot read rule document %s", abs)
	}

	l.active[abs] = true
	defer delete(l.active, abs)

	if root := doc.Root(); root != nil {
		if err := l.resolveIncludes(root, scopeFor(root, nil), filepath.Dir(abs)); err != nil {
			return nil, err
		}
	}

	l.cache.Add(abs, doc)
	return doc, nil
}

// resolveIncludes splices included documents in place of include
// directives, depth first, before any tree construction happens.
func (l *Loader) resolveIncludes(el *etree.Element, scope map[string]string, baseDir string) error {
	for _, child := range append([]*etree.Element(nil), el.ChildElements()...) {
		childScope := scopeFor(child, scope)
		if nsURI(child, childScope) == Namespace && child.Tag == elemInclude {
			href := child.SelectAttrValue("href", "")
			if href == "" {
				return errors.New(errors.ErrDocumentInclude, "include directive without href")
			}
			target := href
			if !filepath.IsAbs(target) {
				target = filepath.Join(baseDir, target)
			}
			included, err := l.loadDocument(target)
			if err != nil {
				return err
			}
			root := included.Root()
			if root == nil {
				return errors.Newf(errors.ErrDocumentInclude, "included document %s has no root element", target)
			}
			idx := child.Index()
			el.InsertChildAt(idx, root.Copy())
			el.RemoveChild(child)
			continue
		}
		if err := l.resolveIncludes(child, childScope, baseDir); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) buildDir(el *etree.Element, scope map[string]string) (*DirRule, error) {
	segment := el.SelectAttrValue("path", "")
	if strings.ContainsAny(segment, "/\\") {
		return nil, errors.Newf(errors.ErrDocumentParse,
			"dir path %q must be a single path component", segment)
	}

	node := &DirRule{PathSegment: segment}

	ops, err := l.buildOps(el, scope)
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, ops...)

	for _, child := range el.ChildElements() {
		childScope := scopeFor(child, scope)
		if nsURI(child, childScope) != Namespace {
			return nil, errors.Newf(errors.ErrDocumentParse,
				"foreign element <%s> inside dir scope", child.FullTag())
		}
		switch child.Tag {
		case elemDir:
			sub, err := l.buildDir(child, childScope)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, sub)
		case elemFiles:
			sub, err := l.buildFiles(child, childScope)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, sub)
		case elemMetadata:
			// consumed by buildOps
		default:
			return nil, errors.Newf(errors.ErrDocumentParse,
				"unknown element <%s> inside dir scope", child.Tag)
		}
	}

	return node, nil
}

func (l *Loader) buildFiles(el *etree.Element, scope map[string]string) (*FilesRule, error) {
	node := &FilesRule{
		Filename: el.SelectAttrValue("filename", ""),
		Pattern:  el.SelectAttrValue("pattern", "*"),
	}

	if raw := el.SelectAttrValue("recursive", ""); raw != "" {
		recursive, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.Newf(errors.ErrDocumentParse,
				"files selector: recursive=%q is not a boolean", raw)
		}
		node.Recursive = recursive
	}

	ops, err := l.buildOps(el, scope)
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, ops...)

	for _, child := range el.ChildElements() {
		childScope := scopeFor(child, scope)
		if nsURI(child, childScope) != Namespace {
			return nil, errors.Newf(errors.ErrDocumentParse,
				"foreign element <%s> inside files selector", child.FullTag())
		}
		switch child.Tag {
		case elemMetadata:
			// consumed by buildOps
		case elemLinks:
			links, err := l.buildLinks(child, childScope)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, links...)
		default:
			return nil, errors.Newf(errors.ErrDocumentParse,
				"unknown element <%s> inside files selector", child.Tag)
		}
	}

	return node, nil
}

func (l *Loader) buildLinks(el *etree.Element, scope map[string]string) ([]Node, error) {
	var out []Node
	for _, child := range el.ChildElements() {
		childScope := scopeFor(child, scope)
		if nsURI(child, childScope) != Namespace || child.Tag != elemLink {
			return nil, errors.Newf(errors.ErrDocumentParse,
				"unknown element <%s> inside links block", child.Tag)
		}
		linkType := child.SelectAttrValue("type", "")
		linkPath := child.SelectAttrValue("path", "")
		if linkType == "" || linkPath == "" {
			return nil, errors.New(errors.ErrDocumentParse,
				"link element requires both type and path attributes")
		}
		ops, err := l.buildOps(child, childScope)
		if err != nil {
			return nil, err
		}
		link := &LinkRule{Type: linkType, Path: linkPath, Children: ops}
		out = append(out, link)
	}
	return out, nil
}

// buildOps extracts the metadata operations declared on an element:
// first the well-known Set attributes, then their ".add" variants, then
// the operations of a nested metadata block in document order. An
// absent attribute simply produces no operation.
func (l *Loader) buildOps(el *etree.Element, scope map[string]string) ([]Node, error) {
	var ops []Node

	for _, wk := range wellKnownAttrs {
		if attr := el.SelectAttr(wk.attr); attr != nil {
			ops = append(ops, &MetaOp{Kind: OpSet, Key: wk.key, Value: meta.Plain(attr.Value)})
		}
	}
	for _, wk := range wellKnownAttrs {
		if attr := el.SelectAttr(wk.attr + ".add"); attr != nil {
			ops = append(ops, &MetaOp{Kind: OpAdd, Key: wk.key, Value: meta.Plain(attr.Value)})
		}
	}

	for _, block := range el.ChildElements() {
		blockScope := scopeFor(block, scope)
		if nsURI(block, blockScope) != Namespace || block.Tag != elemMetadata {
			continue
		}
		blockOps, err := l.buildMetadataBlock(block, blockScope)
		if err != nil {
			return nil, err
		}
		ops = append(ops, blockOps...)
	}

	return ops, nil
}

func (l *Loader) buildMetadataBlock(block *etree.Element, scope map[string]string) ([]Node, error) {
	var ops []Node
	for _, child := range block.ChildElements() {
		childScope := scopeFor(child, scope)
		if nsURI(child, childScope) != Namespace {
			return nil, errors.Newf(errors.ErrDocumentParse,
				"foreign element <%s> inside metadata block", child.FullTag())
		}

		var kind OpKind
		switch child.Tag {
		case elemSet:
			kind = OpSet
		case elemAdd:
			kind = OpAdd
		default:
			return nil, errors.Newf(errors.ErrDocumentParse,
				"unsupported element <%s> inside metadata block", child.Tag)
		}

		key := child.SelectAttrValue("type", "")
		if key == "" {
			return nil, errors.Newf(errors.ErrDocumentParse,
				"metadata <%s> is missing its type attribute", child.Tag)
		}

		value, err := l.elementValue(child, childScope)
		if err != nil {
			return nil, err
		}
		if kind == OpAdd && !value.IsStructured() {
			value = meta.Plain(strings.TrimSpace(value.Text()))
		}
		ops = append(ops, &MetaOp{Kind: kind, Key: key, Value: value})
	}
	return ops, nil
}

// elementValue extracts the value carried by a metadata set/add
// element: nested element content becomes a structured fragment, bare
// text a plain value. An element with neither is an authoring mistake.
func (l *Loader) elementValue(el *etree.Element, scope map[string]string) (meta.Value, error) {
	if children := el.ChildElements(); len(children) > 0 {
		fragment, err := serializeFragment(children[0], scopeFor(children[0], scope))
		if err != nil {
			return meta.Value{}, err
		}
		return meta.Structured(fragment), nil
	}
	if strings.TrimSpace(el.Text()) == "" {
		return meta.Value{}, errors.Newf(errors.ErrDocumentParse,
			"metadata <%s type=%q> has neither text nor element content",
			el.Tag, el.SelectAttrValue("type", ""))
	}
	return meta.Plain(el.Text()), nil
}

// serializeFragment renders an embedded fragment to its canonical
// self-contained form: namespace prefixes used inside the fragment but
// declared on an ancestor are re-declared on the fragment root.
func serializeFragment(el *etree.Element, scope map[string]string) (string, error) {
	frag := el.Copy()

	for _, prefix := range usedPrefixes(frag, nil) {
		if fragmentDeclares(frag, prefix) {
			continue
		}
		uri, ok := scope[prefix]
		if !ok || uri == "" {
			continue
		}
		if prefix == "" {
			frag.CreateAttr("xmlns", uri)
		} else {
			frag.CreateAttr("xmlns:"+prefix, uri)
		}
	}

	doc := etree.NewDocument()
	doc.SetRoot(frag)
	out, err := doc.WriteToString()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrDocumentParse, "cannot serialize metadata fragment")
	}
	return strings.TrimSpace(out), nil
}

// usedPrefixes collects namespace prefixes referenced anywhere in the
// fragment, in first-use order.
func usedPrefixes(el *etree.Element, seen []string) []string {
	appendPrefix := func(p string) {
		for _, s := range seen {
			if s == p {
				return
			}
		}
		seen = append(seen, p)
	}

	appendPrefix(el.Space)
	for _, a := range el.Attr {
		if a.Space != "" && a.Space != "xmlns" {
			appendPrefix(a.Space)
		}
	}
	for _, child := range el.ChildElements() {
		seen = usedPrefixes(child, seen)
	}
	return seen
}

func fragmentDeclares(el *etree.Element, prefix string) bool {
	for _, a := range el.Attr {
		if prefix == "" && a.Space == "" && a.Key == "xmlns" {
			return true
		}
		if a.Space == "xmlns" && a.Key == prefix {
			return true
		}
	}
	return false
}

// scopeFor computes the namespace scope in effect for el given the
// parent scope, copying only when el declares namespaces of its own.
// The empty prefix tracks the default namespace.
func scopeFor(el *etree.Element, parent map[string]string) map[string]string {
	scope := parent
	copied := false
	ensure := func() {
		if !copied {
			next := make(map[string]string, len(parent)+2)
			for k, v := range parent {
				next[k] = v
			}
			scope = next
			copied = true
		}
	}
	for _, a := range el.Attr {
		if a.Space == "" && a.Key == "xmlns" {
			ensure()
			scope[""] = a.Value
		} else if a.Space == "xmlns" {
			ensure()
			scope[a.Key] = a.Value
		}
	}
	return scope
}

// nsURI resolves the namespace URI of an element under a scope.
func nsURI(el *etree.Element, scope map[string]string) string {
	return scope[el.Space]
}
