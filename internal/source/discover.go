package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-billy/v5"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/frontmatter"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// Discoverer enumerates the source tree rooted at a billy filesystem.
type Discoverer struct {
	fs            billy.Filesystem
	roots         []string
	includeDrafts bool
	fingerprint   bool
	logger        *slog.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithRoots limits discovery to the given slash-separated directories
// (typically the configured topic directories).
func WithRoots(dirs ...string) Option {
	return func(d *Discoverer) {
		for _, dir := range dirs {
			d.roots = append(d.roots, strings.Trim(path.Clean(dir), "/"))
		}
	}
}

// WithDrafts includes content marked as draft.
func WithDrafts(include bool) Option {
	return func(d *Discoverer) { d.includeDrafts = include }
}

// WithFingerprints computes Item.Fingerprint for every discovered item.
func WithFingerprints(enabled bool) Option {
	return func(d *Discoverer) { d.fingerprint = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Discoverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDiscoverer creates a Discoverer over fsys.
func NewDiscoverer(fsys billy.Filesystem, opts ...Option) *Discoverer {
	d := &Discoverer{fs: fsys, fingerprint: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns every in-scope item sorted by path. Failing to enumerate
// the tree is fatal; an unreadable individual file is kept without a
// fingerprint so the build reports it against that item.
func (d *Discoverer) Discover(ctx context.Context, scope Scope) ([]Item, error) {
	roots := d.roots
	if len(roots) == 0 {
		roots = []string{""}
	}

	var items []Item
	seen := make(map[string]bool)
	for _, root := range roots {
		if root == "." {
			root = ""
		}
		if root != "" {
			if _, err := d.fs.Stat(root); err != nil {
				if stderrors.Is(err, fs.ErrNotExist) {
					d.logger.Warn("Topic directory does not exist", logfields.Path(root))
					continue
				}
				return nil, enumerationError(err, root)
			}
		}
		if err := d.walk(ctx, root, scope, seen, &items); err != nil {
			return nil, err
		}
	}

	slices.SortFunc(items, func(a, b Item) int { return strings.Compare(a.Path, b.Path) })
	return items, nil
}

func enumerationError(err error, dir string) error {
	return errors.WrapError(err, errors.CategoryIO, "enumerate source tree").
		Fatal().
		WithContext("path", dir).
		Build()
}

func (d *Discoverer) walk(ctx context.Context, dir string, scope Scope, seen map[string]bool, items *[]Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		return enumerationError(err, dir)
	}

	for _, info := range entries {
		name := info.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		rel := name
		if dir != "" {
			rel = dir + "/" + name
		}

		if info.IsDir() {
			if err := d.walk(ctx, rel, scope, seen, items); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		kind, ok := KindOf(name)
		if !ok || seen[rel] || !scope.Contains(rel) {
			continue
		}
		seen[rel] = true

		item := Item{
			Path:       rel,
			Kind:       kind,
			ModifiedAt: info.ModTime(),
			Size:       info.Size(),
			Slug:       SlugFor(rel),
			Dir:        dirOf(rel),
		}
		if err := d.inspect(&item); err != nil {
			d.logger.Warn("Unable to inspect source file", logfields.Path(rel), logfields.Error(err))
		}
		if item.Draft && !d.includeDrafts {
			d.logger.Debug("Skipping draft", logfields.Path(rel))
			continue
		}
		*items = append(*items, item)
	}
	return nil
}

// inspect reads the file when its contents are needed: always for content
// (draft flag), for images only when fingerprinting.
func (d *Discoverer) inspect(item *Item) error {
	if item.Kind == KindImage && !d.fingerprint {
		return nil
	}

	data, err := d.read(item.Path)
	if err != nil {
		return err
	}

	if item.Kind == KindImage {
		item.Fingerprint = HashBytes(data)
		return nil
	}

	doc, err := frontmatter.Parse(data)
	if err != nil {
		// Malformed frontmatter is a render failure; the raw hash still tracks edits.
		if d.fingerprint {
			item.Fingerprint = HashBytes(data)
		}
		return nil
	}
	item.Draft = IsDraft(doc.Fields)
	if d.fingerprint {
		fp, err := frontmatter.Fingerprint(doc.Fields, doc.Body)
		if err != nil {
			fp = HashBytes(data)
		}
		item.Fingerprint = fp
	}
	return nil
}

func (d *Discoverer) read(p string) ([]byte, error) {
	f, err := d.fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// IsDraft reports whether frontmatter marks a document as a draft.
func IsDraft(fields map[string]any) bool {
	for _, key := range []string{"draft", "is_draft"} {
		switch v := fields[key].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil && b {
				return true
			}
		}
	}
	return false
}

// HashBytes returns the xxhash64 of data as 16 hex digits.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
