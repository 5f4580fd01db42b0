package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ki-ujep/metafiles/pkg/errors"
)

func zerologLevel(s Severity) zerolog.Level {
	switch s {
	case SeverityWarning:
		return zerolog.WarnLevel
	case SeverityError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ConflictAction decides what happens to one attribute when an incoming
// record disagrees with the stored one.
type ConflictAction int

const (
	// ActionIgnore keeps the stored value silently.
	ActionIgnore ConflictAction = iota
	// ActionUpdate takes the new value and logs the change as info.
	ActionUpdate
	// ActionWarn takes the new value and logs the change as a warning.
	ActionWarn
	// ActionError keeps the stored value, logs an error and fails the
	// resolution.
	ActionError
)

// ConflictPolicy assigns actions per attribute name, with a default for
// attributes not listed.
type ConflictPolicy struct {
	PerAttribute map[string]ConflictAction
	Default      ConflictAction
}

// DefaultPolicy mirrors the stock behavior: differences are taken but
// flagged as warnings in the audit trail.
func DefaultPolicy() ConflictPolicy {
	return ConflictPolicy{Default: ActionWarn}
}

// StrictPolicy refuses any change to an already-recorded file.
func StrictPolicy() ConflictPolicy {
	return ConflictPolicy{Default: ActionError}
}

func (p ConflictPolicy) action(attribute string) ConflictAction {
	if a, ok := p.PerAttribute[attribute]; ok {
		return a
	}
	return p.Default
}

// Conflict reports that an incoming record differs from the stored one
// for the same local path.
type Conflict struct {
	Existing FileRecord
	New      FileRecord
}

func (c *Conflict) Error() string {
	return fmt.Sprintf("record for %s conflicts with stored version", c.New.LocalPath)
}

// attribute names used in the policy and the change log
const (
	AttrArk      = "ark_base_name"
	AttrDigest   = "digest"
	AttrMetadata = "metadata"
	AttrLinkdata = "linkdata"
)

// ResolveConflict applies the policy to each differing attribute of c,
// writes audit entries, and updates the stored row with whatever the
// policy accepted. An ActionError attribute fails the whole resolution
// after its audit entry is written.
func (s *Store) ResolveConflict(ctx context.Context, c *Conflict, policy ConflictPolicy) error {
	metaOld, linkOld, err := encodeRecord(c.Existing)
	if err != nil {
		return err
	}
	metaNew, linkNew, err := encodeRecord(c.New)
	if err != nil {
		return err
	}

	type diff struct {
		attribute string
		old, new  string
	}
	var diffs []diff
	if c.Existing.ArkBaseName != c.New.ArkBaseName {
		diffs = append(diffs, diff{AttrArk, c.Existing.ArkBaseName, c.New.ArkBaseName})
	}
	if !strings.EqualFold(hex.EncodeToString(c.Existing.Digest), hex.EncodeToString(c.New.Digest)) {
		diffs = append(diffs, diff{AttrDigest,
			strings.ToUpper(hex.EncodeToString(c.Existing.Digest)),
			strings.ToUpper(hex.EncodeToString(c.New.Digest))})
	}
	if metaOld != metaNew {
		diffs = append(diffs, diff{AttrMetadata, metaOld, metaNew})
	}
	if linkOld != linkNew {
		diffs = append(diffs, diff{AttrLinkdata, linkOld, linkNew})
	}

	apply := map[string]bool{}
	var failed bool
	for _, d := range diffs {
		action := policy.action(d.attribute)
		severity := SeverityInfo
		description := d.attribute + " changed"
		switch action {
		case ActionIgnore:
			continue
		case ActionUpdate:
			apply[d.attribute] = true
		case ActionWarn:
			severity = SeverityWarning
			apply[d.attribute] = true
		case ActionError:
			severity = SeverityError
			description = "failed attempt to change " + d.attribute
			failed = true
		}
		entry := ChangeRecord{
			ObjectID:    c.Existing.LocalPath,
			Attribute:   d.attribute,
			Operation:   "update",
			Severity:    severity,
			OldValue:    d.old,
			NewValue:    d.new,
			Description: description,
		}
		if err := s.LogChange(ctx, entry); err != nil {
			return err
		}
		s.logger.WithLevel(zerologLevel(severity)).
			Str("path", c.Existing.LocalPath).
			Str("attribute", d.attribute).
			Msg(description)
	}

	if failed {
		return errors.Newf(errors.ErrStoreConflict,
			"record for %s rejected by conflict policy", c.New.LocalPath)
	}
	if len(apply) == 0 {
		return nil
	}
	return s.updateAttributes(ctx, c, apply, metaNew, linkNew)
}

func (s *Store) updateAttributes(ctx context.Context, c *Conflict, apply map[string]bool, metaNew, linkNew string) error {
	sets := []string{"updated = ?"}
	args := []any{time.Now().UTC()}
	if apply[AttrArk] {
		sets = append(sets, "ark_base_name = ?")
		args = append(args, c.New.ArkBaseName)
	}
	if apply[AttrDigest] {
		sets = append(sets, "digest = ?")
		args = append(args, c.New.Digest)
	}
	if apply[AttrMetadata] {
		sets = append(sets, "metadata = ?")
		args = append(args, metaNew)
	}
	if apply[AttrLinkdata] {
		sets = append(sets, "linkdata = ?")
		args = append(args, linkNew)
	}
	args = append(args, c.Existing.LocalPath)

	_, err := s.db.ExecContext(ctx,
		"UPDATE file_records SET "+strings.Join(sets, ", ")+" WHERE local_path = ?", args...)
	if err != nil {
		return errors.Wrapf(err, errors.ErrStoreWrite, "cannot update record for %s", c.Existing.LocalPath)
	}
	return nil
}
