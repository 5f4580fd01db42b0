package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"

	_ "modernc.org/sqlite"

	"github.com/ki-ujep/metafiles/pkg/errors"
	"github.com/ki-ujep/metafiles/pkg/logging"
)

// CacheRecord is one row of the published cache: a minted identifier,
// the URL it resolves to and the rendered RDF/XML description.
type CacheRecord struct {
	ArkID       string `json:"ark_id"`
	URL         string `json:"url"`
	MetadataRDF string `json:"metadata_rdf"`
}

// CacheStore is the derived, fully-rebuildable cache database. Opening
// it drops any previous contents; the cache is always rebuilt from the
// record store.
type CacheStore struct {
	db *sql.DB
}

// OpenCache opens the cache database at path and resets its table.
func OpenCache(ctx context.Context, path string) (*CacheStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStoreOpen, "cannot open cache database %s", path)
	}
	logger := logging.GetLogger("store.cache")

	stmts := []string{
		`DROP TABLE IF EXISTS file_cache`,
		`CREATE TABLE file_cache (
			ark_id       TEXT PRIMARY KEY,
			url          TEXT,
			metadata_rdf TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, errors.ErrStoreOpen, "cannot reset cache in %s", path)
		}
	}
	logger.Debug().Str("path", path).Msg("cache database reset")
	return &CacheStore{db: db}, nil
}

// Close releases the cache database handle.
func (c *CacheStore) Close() error {
	return c.db.Close()
}

// Put inserts one cache row.
func (c *CacheStore) Put(ctx context.Context, rec CacheRecord) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO file_cache (ark_id, url, metadata_rdf) VALUES (?, ?, ?)`,
		rec.ArkID, rec.URL, rec.MetadataRDF)
	if err != nil {
		return errors.Wrapf(err, errors.ErrStoreWrite, "cannot insert cache row %s", rec.ArkID)
	}
	return nil
}

// List returns all cache rows in identifier order.
func (c *CacheStore) List(ctx context.Context) ([]CacheRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT ark_id, COALESCE(url, ''), COALESCE(metadata_rdf, '') FROM file_cache ORDER BY ark_id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreOpen, "cannot list cache rows")
	}
	defer func() { _ = rows.Close() }()

	var out []CacheRecord
	for rows.Next() {
		var rec CacheRecord
		if err := rows.Scan(&rec.ArkID, &rec.URL, &rec.MetadataRDF); err != nil {
			return nil, errors.Wrap(err, errors.ErrStoreOpen, "cannot scan cache row")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ExportJSON writes the whole cache table as a JSON array, the format
// the published contents file uses.
func (c *CacheStore) ExportJSON(ctx context.Context, w io.Writer) error {
	records, err := c.List(ctx)
	if err != nil {
		return err
	}
	if records == nil {
		records = []CacheRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return errors.Wrap(err, errors.ErrStoreWrite, "cannot export cache contents")
	}
	return nil
}
