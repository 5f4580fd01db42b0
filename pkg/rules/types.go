package rules

import "github.com/ki-ujep/metafiles/pkg/meta"

// Node is the tagged-variant interface for rule tree nodes. The loader
// is the only producer; resolution code switches exhaustively over the
// concrete types.
type Node interface {
	isNode()
}

// DirRule scopes its children to one directory level. PathSegment is a
// single path component (never contains a separator); an empty segment
// keeps the parent's scope, which is how the implicit document root
// works. Children are DirRule, FilesRule and MetaOp nodes in document
// order.
type DirRule struct {
	PathSegment string
	Children    []Node
}

// FilesRule selects files within its enclosing directory scope. When
// Filename is set the selector matches by exact name and Pattern is
// never consulted; otherwise Pattern (default "*") is matched glob-style
// against the file name. Recursive extends the match to any depth below
// the scope instead of only files directly inside it. Children are
// MetaOp and LinkRule nodes in document order.
type FilesRule struct {
	Filename  string
	Pattern   string
	Recursive bool
	Children  []Node
}

// OpKind distinguishes the override primitive from the accumulation
// primitive.
type OpKind int

const (
	// OpSet replaces a key's whole value sequence with a single value.
	OpSet OpKind = iota
	// OpAdd appends a value to a key's sequence, creating it if absent.
	OpAdd
)

// MetaOp is a single metadata operation against a qualified key.
type MetaOp struct {
	Kind  OpKind
	Key   string
	Value meta.Value
}

// LinkRule declares a relationship from the selected file to other
// files matching Path. Children are MetaOp nodes scoped to the link
// itself; links never inherit the file's metadata.
type LinkRule struct {
	Type     string
	Path     string
	Children []Node
}

func (*DirRule) isNode()   {}
func (*FilesRule) isNode() {}
func (*MetaOp) isNode()    {}
func (*LinkRule) isNode()  {}
