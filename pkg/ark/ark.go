// Package ark mints and parses ARK (Archival Resource Key) identifiers.
// An identifier is naan/shoulder/locid; the shoulder selects a local
// namespace, the locid names the object within it.
package ark

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ki-ujep/metafiles/pkg/errors"
)

var pathSplitter = regexp.MustCompile(
	`^(ark|ARK):/?(?P<naan>[0-9]+)/+(?P<shoulder>[a-z-]+[0-9]+)?(?P<locid>.*)$`)

var (
	repeatedSep   = regexp.MustCompile(`(/)/+|(\.)\.+`)
	percentEscape = regexp.MustCompile(`%[0-9a-fA-F]{2}`)
)

// Identifier is a parsed or minted ARK identifier. LocID is always kept
// in normalized form.
type Identifier struct {
	NAAN     string
	Shoulder string
	LocID    string
}

// New creates an identifier, normalizing the local id.
func New(naan, shoulder, locid string) Identifier {
	return Identifier{NAAN: naan, Shoulder: shoulder, LocID: NormalizeID(locid)}
}

// String returns the display form: separators every six locid
// characters for readability. Primary use is printed text.
func (id Identifier) String() string {
	return "ark:/" + id.NAAN + "/" + id.Shoulder + "-" + insertSeparator(id.LocID, 6, "-")
}

// Canonical returns the canonical normalized form, safe for use as a
// URL path component.
func (id Identifier) Canonical() string {
	return NormalizeID("ark:/" + id.NAAN + "/" + id.Shoulder + id.LocID)
}

// Parse parses an identifier in either display or canonical form.
func Parse(s string) (Identifier, error) {
	m := pathSplitter.FindStringSubmatch(s)
	if m == nil {
		return Identifier{}, errors.Newf(errors.ErrArkFormat,
			"identifier %q is not a parsable ARK identifier", s)
	}
	naan := m[pathSplitter.SubexpIndex("naan")]
	shoulder := m[pathSplitter.SubexpIndex("shoulder")]
	locid := m[pathSplitter.SubexpIndex("locid")]
	return New(naan, shoulder, NormalizeID(locid)), nil
}

// NormalizeID canonicalizes an identifier fragment: percent-encode,
// strip the readability separators, drop trailing slashes, collapse
// repeated separators and uppercase the percent escapes.
func NormalizeID(ident string) string {
	ident = url.QueryEscape(ident)
	ident = strings.ReplaceAll(ident, "-", "")
	ident = strings.TrimRight(ident, "/")
	ident = repeatedSep.ReplaceAllString(ident, "$1$2")
	ident = percentEscape.ReplaceAllStringFunc(ident, strings.ToUpper)
	return ident
}

// insertSeparator inserts sep between every n characters of s.
func insertSeparator(s string, n int, sep string) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i += n {
		if i > 0 {
			b.WriteString(sep)
		}
		end := i + n
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}
