package resolve

import (
	"path/filepath"
	"strings"

	"github.com/ki-ujep/metafiles/pkg/rules"
)

// SplitPath normalizes a directory path and splits it into components.
// Repeated separators collapse, leading and trailing separators drop,
// "." and the empty path both mean the tree root.
func SplitPath(path string) []string {
	path = strings.ReplaceAll(path, "\\", "/")
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." {
			continue
		}
		segments = append(segments, seg)
	}
	return segments
}

// matchesDir reports whether rulePath is a component-wise prefix of
// realDir. Directory segments are literal names: case-sensitive, no
// glob semantics at the directory level.
func matchesDir(rulePath, realDir []string) bool {
	if len(rulePath) > len(realDir) {
		return false
	}
	for i, seg := range rulePath {
		if realDir[i] != seg {
			return false
		}
	}
	return true
}

// samePath reports component-wise equality.
func samePath(a, b []string) bool {
	return len(a) == len(b) && matchesDir(a, b)
}

// matchesFile decides whether a file selector applies to fileName in
// realDir given the selector's rule path. An exact filename takes
// precedence: when Filename is set the pattern is never consulted. The
// recursive flag widens the directory condition from "exactly this
// scope" to "anywhere at or below it".
func matchesFile(sel *rules.FilesRule, rulePath, realDir []string, fileName string) bool {
	if !(samePath(realDir, rulePath) || sel.Recursive) {
		return false
	}
	if sel.Filename != "" {
		return fileName == sel.Filename
	}
	pattern := sel.Pattern
	if pattern == "" {
		pattern = "*"
	}
	matched, err := filepath.Match(pattern, fileName)
	if err != nil {
		return false
	}
	return matched
}
