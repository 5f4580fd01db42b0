// Package store persists resolved file records and the derived cache in
// SQLite. Writes go through a keyed upsert with a per-attribute
// conflict policy; every conflicting attribute leaves an audit trail in
// the change log.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ki-ujep/metafiles/pkg/errors"
	"github.com/ki-ujep/metafiles/pkg/logging"
	"github.com/ki-ujep/metafiles/pkg/meta"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_records (
	ark_base_name TEXT PRIMARY KEY,
	local_path    TEXT NOT NULL UNIQUE,
	digest        BLOB NOT NULL,
	metadata      TEXT NOT NULL,
	linkdata      TEXT NOT NULL,
	created       TIMESTAMP NOT NULL,
	updated       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS change_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL,
	object_id  TEXT NOT NULL,
	attribute  TEXT,
	operation  TEXT NOT NULL,
	severity   TEXT NOT NULL,
	old_value  TEXT,
	new_value  TEXT,
	description TEXT
);

CREATE INDEX IF NOT EXISTS ix_change_log_obj_attr_time
	ON change_log (object_id, attribute, created_at);
`

// Severity classifies a change-log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// FileRecord is one scanned file: its minted identifier, content
// digest and resolved metadata.
type FileRecord struct {
	ArkBaseName string
	LocalPath   string
	Digest      []byte
	Metadata    *meta.Map
	Links       []meta.LinkInfo
	Created     time.Time
	Updated     time.Time
}

// ChangeRecord is one audit entry.
type ChangeRecord struct {
	ID          int64
	CreatedAt   time.Time
	ObjectID    string
	Attribute   string
	Operation   string
	Severity    Severity
	OldValue    string
	NewValue    string
	Description string
}

// Store wraps the SQLite database holding file records, the change log
// and the derived cache.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// record schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStoreOpen, "cannot open database %s", path)
	}
	s := &Store{db: db, logger: logging.GetLogger("store")}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, errors.ErrStoreOpen, "cannot initialize schema in %s", path)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for collaborators that add their own
// tables (the cache builder).
func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertIfNewOrIdentical inserts rec, or verifies that the stored row
// for the same local path is identical. On any difference it returns a
// *Conflict carrying both versions; the caller decides how to resolve
// it (see Store.ResolveConflict).
func (s *Store) InsertIfNewOrIdentical(ctx context.Context, rec FileRecord) error {
	existing, err := s.getByLocalPath(ctx, rec.LocalPath)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.insert(ctx, rec)
	}
	if identical(*existing, rec) {
		return nil
	}
	return &Conflict{Existing: *existing, New: rec}
}

func (s *Store) insert(ctx context.Context, rec FileRecord) error {
	metaJSON, linkJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_records
			(ark_base_name, local_path, digest, metadata, linkdata, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ArkBaseName, rec.LocalPath, rec.Digest, metaJSON, linkJSON, now, now)
	if err != nil {
		return errors.Wrapf(err, errors.ErrStoreWrite, "cannot insert record for %s", rec.LocalPath)
	}
	s.logger.Debug().Str("path", rec.LocalPath).Str("ark", rec.ArkBaseName).Msg("record inserted")
	return nil
}

// ListFiles returns all file records in local-path order.
func (s *Store) ListFiles(ctx context.Context) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ark_base_name, local_path, digest, metadata, linkdata, created, updated
		FROM file_records ORDER BY local_path`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreOpen, "cannot list file records")
	}
	defer func() { _ = rows.Close() }()

	var out []FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) getByLocalPath(ctx context.Context, localPath string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ark_base_name, local_path, digest, metadata, linkdata, created, updated
		FROM file_records WHERE local_path = ?`, localPath)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.IsCode(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (FileRecord, error) {
	var rec FileRecord
	var metaJSON, linkJSON string
	err := row.Scan(&rec.ArkBaseName, &rec.LocalPath, &rec.Digest,
		&metaJSON, &linkJSON, &rec.Created, &rec.Updated)
	if err == sql.ErrNoRows {
		return rec, errors.New(errors.ErrNotFound, "record not found")
	}
	if err != nil {
		return rec, errors.Wrap(err, errors.ErrStoreOpen, "cannot scan file record")
	}

	rec.Metadata = meta.NewMap()
	if err := json.Unmarshal([]byte(metaJSON), rec.Metadata); err != nil {
		return rec, errors.Wrapf(err, errors.ErrInternal, "corrupt metadata for %s", rec.LocalPath)
	}
	if err := json.Unmarshal([]byte(linkJSON), &rec.Links); err != nil {
		return rec, errors.Wrapf(err, errors.ErrInternal, "corrupt link data for %s", rec.LocalPath)
	}
	return rec, nil
}

func encodeRecord(rec FileRecord) (string, string, error) {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrInternal, "cannot encode metadata")
	}
	links := rec.Links
	if links == nil {
		links = []meta.LinkInfo{}
	}
	linkJSON, err := json.Marshal(links)
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrInternal, "cannot encode link data")
	}
	return string(metaJSON), string(linkJSON), nil
}

func identical(a, b FileRecord) bool {
	if a.ArkBaseName != b.ArkBaseName || a.LocalPath != b.LocalPath {
		return false
	}
	if len(a.Digest) != len(b.Digest) {
		return false
	}
	for i := range a.Digest {
		if a.Digest[i] != b.Digest[i] {
			return false
		}
	}
	am, al, err := encodeRecord(a)
	if err != nil {
		return false
	}
	bm, bl, err := encodeRecord(b)
	if err != nil {
		return false
	}
	return am == bm && al == bl
}

// LogChange appends one change-log entry.
func (s *Store) LogChange(ctx context.Context, entry ChangeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO change_log
			(created_at, object_id, attribute, operation, severity, old_value, new_value, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), entry.ObjectID, entry.Attribute, entry.Operation,
		string(entry.Severity), entry.OldValue, entry.NewValue, entry.Description)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreWrite, "cannot write change log entry")
	}
	return nil
}

// Changes returns the audit entries for one object, oldest first.
func (s *Store) Changes(ctx context.Context, objectID string) ([]ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, object_id, attribute, operation, severity,
		       COALESCE(old_value, ''), COALESCE(new_value, ''), COALESCE(description, '')
		FROM change_log WHERE object_id = ? ORDER BY id`, objectID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreOpen, "cannot read change log")
	}
	defer func() { _ = rows.Close() }()

	var out []ChangeRecord
	for rows.Next() {
		var c ChangeRecord
		var severity string
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.ObjectID, &c.Attribute, &c.Operation,
			&severity, &c.OldValue, &c.NewValue, &c.Description); err != nil {
			return nil, errors.Wrap(err, errors.ErrStoreOpen, "cannot scan change log entry")
		}
		c.Severity = Severity(severity)
		out = append(out, c)
	}
	return out, rows.Err()
}
