// Package cache publishes resolved file records: link patterns are
// expanded to concrete targets, metadata is rendered as RDF/XML, and
// the result lands in the cache database plus a JSON contents export.
package cache

import (
	"context"
	"net/url"
	"os"
	"path"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/ki-ujep/metafiles/pkg/config"
	"github.com/ki-ujep/metafiles/pkg/errors"
	"github.com/ki-ujep/metafiles/pkg/logging"
	"github.com/ki-ujep/metafiles/pkg/meta"
	"github.com/ki-ujep/metafiles/pkg/rdf"
	"github.com/ki-ujep/metafiles/pkg/store"
)

// Builder rebuilds the cache database from the file records.
type Builder struct {
	files    *store.Store
	cache    *store.CacheStore
	exporter *rdf.Exporter
	location config.Location
	logger   zerolog.Logger
}

func NewBuilder(files *store.Store, cacheStore *store.CacheStore, exporter *rdf.Exporter, loc config.Location) *Builder {
	return &Builder{
		files:    files,
		cache:    cacheStore,
		exporter: exporter,
		location: loc,
		logger:   logging.GetLogger("cache"),
	}
}

// Run fills the cache: one row per file record, with links resolved
// against the other records and metadata rendered as RDF/XML. Returns
// the number of cached records.
func (b *Builder) Run(ctx context.Context) (int, error) {
	records, err := b.files.ListFiles(ctx)
	if err != nil {
		return 0, err
	}

	arkByPath := make(map[string]string, len(records))
	for _, rec := range records {
		arkByPath[rec.LocalPath] = rec.ArkBaseName
	}

	for _, rec := range records {
		links, err := b.resolveLinks(rec, arkByPath)
		if err != nil {
			return 0, err
		}

		rdfXML, err := b.exporter.ExportString(rec.Metadata, links, rec.ArkBaseName)
		if err != nil {
			return 0, err
		}

		row := store.CacheRecord{
			ArkID:       rec.ArkBaseName,
			URL:         b.fileURL(rec.LocalPath),
			MetadataRDF: rdfXML,
		}
		if err := b.cache.Put(ctx, row); err != nil {
			return 0, err
		}
	}

	b.logger.Info().Int("records", len(records)).Msg("cache rebuilt")
	return len(records), nil
}

// resolveLinks expands each link's path pattern, relative to the
// record's directory, into one link per matched file. The matched
// target's identifier is stored under mfterms:ark for the exporter;
// matches without a file record are skipped with a warning.
func (b *Builder) resolveLinks(rec store.FileRecord, arkByPath map[string]string) ([]meta.LinkInfo, error) {
	var resolved []meta.LinkInfo
	fsys := os.DirFS(b.location.Path)

	for _, link := range rec.Links {
		pattern := path.Join(path.Dir(rec.LocalPath), link.Path)
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInvalidInput,
				"bad link pattern %q on %s", link.Path, rec.LocalPath)
		}

		for _, match := range matches {
			targetArk, ok := arkByPath[match]
			if !ok {
				b.logger.Warn().Str("path", rec.LocalPath).Str("target", match).
					Msg("link target has no file record")
				continue
			}

			linkMeta := meta.NewMap()
			if link.Metadata != nil {
				linkMeta = link.Metadata.Clone()
			}
			linkMeta.Set("mfterms:ark", meta.Plain(targetArk))

			resolved = append(resolved, meta.LinkInfo{
				Type:     link.Type,
				Path:     match,
				Metadata: linkMeta,
			})
		}
	}
	return resolved, nil
}

// fileURL builds the published URL for a record from the location's
// URL components, with the local path carried in the query.
func (b *Builder) fileURL(localPath string) string {
	u := url.URL{
		Scheme:   b.location.URLProtocol,
		Host:     b.location.URLAuthority,
		Path:     b.location.URLPath,
		RawQuery: url.Values{"path": {localPath}}.Encode(),
	}
	return u.String()
}

// WriteContents exports the cache table as indented JSON to path.
func (b *Builder) WriteContents(ctx context.Context, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, errors.ErrStoreWrite, "cannot create contents file %s", outPath)
	}
	defer f.Close()

	if err := b.cache.ExportJSON(ctx, f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrStoreWrite, "cannot finish contents file %s", outPath)
	}
	return nil
}
