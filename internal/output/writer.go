// Package output persists build artifacts under the output root and removes
// the artifacts of sources that no longer exist.
//
// Every path handled here is slash-separated and relative to the output
// root. Only paths recorded in the build cache are ever removed.
package output

import (
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/go-git/go-billy/v5"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/source"
	"git.home.luguber.info/inful/pressroom/internal/util/sets"
)

// Artifact is one generated file.
type Artifact struct {
	Path string
	Data []byte
}

// Result is everything produced for one source item in this run.
type Result struct {
	Item       source.Item
	Artifacts  []Artifact
	Partial    bool
	ConfigHash string
	// Previous holds the outputs recorded for the item before this run.
	Previous []string
	// Claims, when set, protects previous outputs that now belong to
	// another source from removal.
	Claims Claims
	Page   *cache.Page
}

// Writer writes artifacts atomically and returns the cache entry describing them.
type Writer struct {
	fs     billy.Filesystem
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a writer for a filesystem rooted at the output directory.
func NewWriter(fsys billy.Filesystem) *Writer {
	return &Writer{fs: fsys, logger: slog.Default(), now: time.Now}
}

// WithLogger sets a custom logger.
func (w *Writer) WithLogger(logger *slog.Logger) *Writer {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// WithClock overrides the time recorded in BuiltAt.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	if now != nil {
		w.now = now
	}
	return w
}

// EnsureRoot creates the output root and checks that files can be written
// into it. Failure is fatal to the run.
func (w *Writer) EnsureRoot() error {
	if err := w.fs.MkdirAll(".", 0o755); err != nil {
		return rootError(err, "create output root")
	}
	f, err := w.fs.TempFile(".", ".pressroom-probe-")
	if err != nil {
		return rootError(err, "output root is not writable")
	}
	name := f.Name()
	_ = f.Close()
	if err := w.fs.Remove(name); err != nil {
		return rootError(err, "output root is not writable")
	}
	return nil
}

func rootError(err error, msg string) error {
	return errors.WrapError(err, errors.CategoryIO, msg).
		Fatal().
		WithContext("root", "output").
		Build()
}

// Write persists every artifact of res and removes previously recorded
// outputs that were not produced again.
//
// The returned entry is meaningful even when err is non-nil: it is marked
// partial and tracks every path that may exist on disk, so nothing written
// so far is left untracked.
func (w *Writer) Write(res Result) (cache.Entry, error) {
	entry := cache.Entry{
		SourcePath:         res.Item.Path,
		Kind:               res.Item.Kind,
		SourceModifiedAt:   res.Item.ModifiedAt,
		ContentFingerprint: res.Item.Fingerprint,
		ConfigHash:         res.ConfigHash,
		Partial:            res.Partial,
		BuiltAt:            w.now().UTC(),
		Page:               res.Page,
	}

	written := sets.New[string]()
	for _, a := range res.Artifacts {
		if err := w.writeFile(a.Path, a.Data); err != nil {
			entry.Partial = true
			entry.OutputPaths = cache.NormalizeOutputs(append(sets.Sorted(written), res.Previous...))
			return entry, errors.WrapError(err, errors.CategoryIO, "write output").
				NextRun().
				WithContext("source", res.Item.Path).
				WithContext("output", a.Path).
				Build()
		}
		written.Add(a.Path)
	}

	var stale []string
	for _, p := range res.Previous {
		if !written.Has(p) && !res.Claims.OwnedByOther(p, res.Item.Path) {
			stale = append(stale, p)
		}
	}
	removed, failed := removeAll(w.fs, stale)
	if removed > 0 {
		w.logger.Debug("Removed superseded outputs",
			logfields.Path(res.Item.Path),
			logfields.Count(removed))
	}

	// Outputs that could not be removed stay tracked.
	entry.OutputPaths = cache.NormalizeOutputs(append(sets.Sorted(written), failed...))
	if len(failed) > 0 {
		w.logger.Warn("Could not remove superseded outputs",
			logfields.Path(res.Item.Path),
			logfields.Count(len(failed)))
	}
	return entry, nil
}

func (w *Writer) writeFile(p string, data []byte) error {
	dir := path.Dir(p)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := w.fs.TempFile(dir, "."+path.Base(p)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return err
	}
	if err := w.fs.Rename(tmpName, p); err != nil {
		_ = w.fs.Remove(tmpName)
		return err
	}
	return nil
}

// removeAll removes each path and prunes directories left empty. A path
// that is already gone counts as removed. It returns the number removed
// and the paths that could not be removed.
func removeAll(fsys billy.Filesystem, paths []string) (int, []string) {
	removed := 0
	var failed []string
	for _, p := range paths {
		if err := fsys.Remove(p); err != nil && !os.IsNotExist(err) {
			failed = append(failed, p)
			continue
		}
		removed++
		pruneEmptyDirs(fsys, path.Dir(p))
	}
	return removed, failed
}

// pruneEmptyDirs removes dir and its ancestors while they are empty,
// stopping at the output root.
func pruneEmptyDirs(fsys billy.Filesystem, dir string) {
	for dir != "." && dir != "/" && dir != "" {
		entries, err := fsys.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := fsys.Remove(dir); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}
