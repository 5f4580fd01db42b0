// Package update walks a data root, resolves metadata for every file,
// and records the results in the file database.
package update

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ki-ujep/metafiles/pkg/ark"
	"github.com/ki-ujep/metafiles/pkg/errors"
	"github.com/ki-ujep/metafiles/pkg/filehash"
	"github.com/ki-ujep/metafiles/pkg/fntrans"
	"github.com/ki-ujep/metafiles/pkg/logging"
	"github.com/ki-ujep/metafiles/pkg/meta"
	"github.com/ki-ujep/metafiles/pkg/resolve"
	"github.com/ki-ujep/metafiles/pkg/store"
)

// Options configures an update run.
type Options struct {
	// NAAN is the authority number minted into every identifier.
	NAAN string
	// Root is the data root; record paths are stored relative to it.
	Root string
	// Policy decides what happens when a file record already exists
	// with different content.
	Policy store.ConflictPolicy
	// Workers bounds concurrent resolution and hashing. Zero means
	// one worker per CPU.
	Workers int
}

// Summary reports what a run did.
type Summary struct {
	Files     int
	Conflicts int
}

// Updater drives the per-file pipeline.
type Updater struct {
	resolver *resolve.Resolver
	store    *store.Store
	opts     Options
	logger   zerolog.Logger
}

func New(resolver *resolve.Resolver, st *store.Store, opts Options) *Updater {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Updater{
		resolver: resolver,
		store:    st,
		opts:     opts,
		logger:   logging.GetLogger("update"),
	}
}

// Run processes every regular file under the root. Resolution and
// hashing run in parallel; database writes are serialized afterwards so
// record order follows the directory walk.
func (u *Updater) Run(ctx context.Context) (Summary, error) {
	paths, err := listFiles(u.opts.Root)
	if err != nil {
		return Summary{}, err
	}
	u.logger.Info().Int("files", len(paths)).Str("root", u.opts.Root).Msg("update started")

	records := make([]store.FileRecord, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Workers)
	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := u.buildRecord(rel)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Files: len(records)}
	for _, rec := range records {
		err := u.store.InsertIfNewOrIdentical(ctx, rec)
		if err == nil {
			continue
		}
		var conflict *store.Conflict
		if !stderrors.As(err, &conflict) {
			return summary, err
		}
		summary.Conflicts++
		if err := u.store.ResolveConflict(ctx, conflict, u.opts.Policy); err != nil {
			return summary, err
		}
	}
	u.logger.Info().Int("files", summary.Files).Int("conflicts", summary.Conflicts).Msg("update finished")
	return summary, nil
}

// buildRecord resolves, hashes, and assembles one file record. rel is
// the slash-separated path relative to the root.
func (u *Updater) buildRecord(rel string) (store.FileRecord, error) {
	dir, name := splitRel(rel)
	metadata, links := u.resolver.Resolve(dir, name)

	shoulder, ok := metadata.First("mfterms:prefix")
	if !ok {
		return store.FileRecord{}, errors.Newf(errors.ErrInvalidInput,
			"no mfterms:prefix resolved for %s", rel).WithDetail("path", rel)
	}

	locid, err := fntrans.Bcode(name)
	if err != nil {
		return store.FileRecord{}, errors.Wrapf(err, errors.ErrNameCodec,
			"cannot encode file name %q", name)
	}
	id := ark.New(u.opts.NAAN, shoulder.Text(), locid)

	digest, err := filehash.HashFile(filepath.Join(u.opts.Root, filepath.FromSlash(rel)))
	if err != nil {
		return store.FileRecord{}, err
	}

	subs := map[string]string{
		"hash": hex.EncodeToString(digest),
		"ark":  id.String(),
	}
	metadata, err = substituteMap(metadata, subs)
	if err != nil {
		return store.FileRecord{}, errors.Wrapf(err, errors.ErrInvalidInput,
			"placeholder substitution failed for %s", rel)
	}

	u.logger.Debug().Str("path", rel).Str("ark", id.String()).Msg("record built")
	return store.FileRecord{
		ArkBaseName: id.Canonical(),
		LocalPath:   rel,
		Digest:      digest,
		Metadata:    metadata,
		Links:       links,
	}, nil
}

// listFiles returns slash-separated paths of all regular files under
// root, in walk order.
func listFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "cannot walk %s", path)
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot relativize %s", path)
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func splitRel(rel string) (dir, name string) {
	dir = filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		dir = ""
	}
	return dir, filepath.Base(rel)
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// SubstitutePlaceholders replaces {key} occurrences with values from
// subs. Doubled braces escape literal braces. An unknown key is an
// error.
func SubstitutePlaceholders(template string, subs map[string]string) (string, error) {
	// Stash escaped braces so the pattern cannot see them.
	t := strings.ReplaceAll(template, "{{", "\x01")
	t = strings.ReplaceAll(t, "}}", "\x02")

	var missing string
	t = placeholderPattern.ReplaceAllStringFunc(t, func(m string) string {
		key := m[1 : len(m)-1]
		value, ok := subs[key]
		if !ok {
			missing = key
			return m
		}
		return value
	})
	if missing != "" {
		return "", errors.Newf(errors.ErrInvalidInput, "unknown placeholder %q", missing)
	}

	t = strings.ReplaceAll(t, "\x01", "{")
	return strings.ReplaceAll(t, "\x02", "}"), nil
}

// substituteMap applies placeholder substitution to every value,
// structured fragments included.
func substituteMap(m *meta.Map, subs map[string]string) (*meta.Map, error) {
	out := meta.NewMap()
	for _, key := range m.Keys() {
		values, _ := m.Get(key)
		replaced := make([]meta.Value, 0, len(values))
		for _, v := range values {
			text, err := SubstitutePlaceholders(v.Text(), subs)
			if err != nil {
				return nil, err
			}
			if v.IsStructured() {
				replaced = append(replaced, meta.Structured(text))
			} else {
				replaced = append(replaced, meta.Plain(text))
			}
		}
		out.Replace(key, replaced)
	}
	return out, nil
}
