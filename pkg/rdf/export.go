// Package rdf converts resolved metadata into an RDF/XML description.
// It consumes the resolver's output as opaque values: plain values
// become literals, structured fragments are re-parsed and attached as
// nested resource descriptions.
package rdf

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/ki-ujep/metafiles/pkg/errors"
	"github.com/ki-ujep/metafiles/pkg/logging"
	"github.com/ki-ujep/metafiles/pkg/meta"
)

// InternalPrefix marks keys that never leave the system; the exporter
// skips them.
const InternalPrefix = "mfterms:"

// RDFNamespace is the RDF syntax namespace, always bound on export.
const RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// PrefixMap maps qualified-key prefixes to namespace URIs. It is
// explicit configuration: the exporter has no ambient prefix table.
type PrefixMap map[string]string

// DefaultPrefixes returns the prefix bindings of the stock rule
// vocabulary.
func DefaultPrefixes() PrefixMap {
	return PrefixMap{
		"dc":      "http://purl.org/dc/elements/1.1/",
		"dcterms": "http://purl.org/dc/terms/",
		"rdf":     RDFNamespace,
		"spdx":    "http://spdx.org/rdf/terms#",
		"dcat":    "http://www.w3.org/ns/dcat#",
	}
}

// Exporter renders metadata maps as RDF/XML documents.
type Exporter struct {
	prefixes PrefixMap
	logger   zerolog.Logger
}

// NewExporter creates an exporter with the given prefix bindings.
func NewExporter(prefixes PrefixMap) *Exporter {
	return &Exporter{
		prefixes: prefixes,
		logger:   logging.GetLogger("rdf.exporter"),
	}
}

// Export builds an RDF/XML document describing subject with the given
// metadata and links. Internal keys, keys without a prefix and keys
// with unbound prefixes are skipped, not errors; filtering them here is
// this exporter's job, not the resolver's.
func (e *Exporter) Export(m *meta.Map, links []meta.LinkInfo, subject string) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("rdf:RDF")
	root.CreateAttr("xmlns:rdf", RDFNamespace)

	desc := root.CreateElement("rdf:Description")
	desc.CreateAttr("rdf:about", subject)

	bound := map[string]bool{"rdf": true}
	bind := func(prefix string) {
		if !bound[prefix] {
			root.CreateAttr("xmlns:"+prefix, e.prefixes[prefix])
			bound[prefix] = true
		}
	}

	for _, key := range m.Keys() {
		if strings.HasPrefix(key, InternalPrefix) {
			continue
		}
		prefix, local, ok := strings.Cut(key, ":")
		if !ok {
			e.logger.Debug().Str("key", key).Msg("skipping unqualified key")
			continue
		}
		if _, known := e.prefixes[prefix]; !known {
			e.logger.Debug().Str("key", key).Msg("skipping key with unbound prefix")
			continue
		}
		bind(prefix)

		values, _ := m.Get(key)
		for _, v := range values {
			if v.IsStructured() {
				if err := e.attachFragment(desc, prefix+":"+local, v.Text()); err != nil {
					return nil, err
				}
				continue
			}
			desc.CreateElement(prefix + ":" + local).SetText(v.Text())
		}
	}

	for _, link := range links {
		if err := e.attachLink(desc, bind, link); err != nil {
			return nil, err
		}
	}

	doc.Indent(2)
	return doc, nil
}

// ExportString is Export rendered to the serialized document.
func (e *Exporter) ExportString(m *meta.Map, links []meta.LinkInfo, subject string) (string, error) {
	doc, err := e.Export(m, links, subject)
	if err != nil {
		return "", err
	}
	return doc.WriteToString()
}

// attachFragment re-parses a structured fragment and nests it under a
// fresh predicate element.
func (e *Exporter) attachFragment(desc *etree.Element, predicate, fragment string) error {
	parsed := etree.NewDocument()
	if err := parsed.ReadFromString(fragment); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot re-parse structured value for %s", predicate)
	}
	root := parsed.Root()
	if root == nil {
		return errors.Newf(errors.ErrInternal, "structured value for %s is empty", predicate)
	}
	desc.CreateElement(predicate).AddChild(root.Copy())
	return nil
}

// attachLink emits one link as a nested description. A qualified link
// type with a bound prefix names the predicate; anything else falls
// back to dcterms:relation. A link resolved by the cache builder
// carries its target identifier under mfterms:ark.
func (e *Exporter) attachLink(desc *etree.Element, bind func(string), link meta.LinkInfo) error {
	predicate := "dcterms:relation"
	if prefix, _, ok := strings.Cut(link.Type, ":"); ok {
		if _, known := e.prefixes[prefix]; known {
			predicate = link.Type
			bind(prefix)
		}
	}
	if predicate == "dcterms:relation" {
		if _, known := e.prefixes["dcterms"]; !known {
			return errors.New(errors.ErrInternal, "dcterms prefix must be bound to export links")
		}
		bind("dcterms")
	}

	pred := desc.CreateElement(predicate)
	nested := pred.CreateElement("rdf:Description")

	linkMeta := link.Metadata
	if linkMeta == nil {
		linkMeta = meta.NewMap()
	}

	if target, ok := linkMeta.First("mfterms:ark"); ok {
		nested.CreateAttr("rdf:about", target.Text())
	}

	for _, key := range linkMeta.Keys() {
		if strings.HasPrefix(key, InternalPrefix) {
			continue
		}
		prefix, local, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		if _, known := e.prefixes[prefix]; !known {
			continue
		}
		bind(prefix)
		values, _ := linkMeta.Get(key)
		for _, v := range values {
			if v.IsStructured() {
				if err := e.attachFragment(nested, prefix+":"+local, v.Text()); err != nil {
					return err
				}
				continue
			}
			nested.CreateElement(prefix + ":" + local).SetText(v.Text())
		}
	}
	return nil
}
