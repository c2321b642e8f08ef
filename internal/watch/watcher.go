package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// treeWatcher watches source trees recursively plus individual files, and
// emits one signal per burst of changes once the burst has gone quiet.
type treeWatcher struct {
	fsw      *fsnotify.Watcher
	roots    []string
	files    map[string]struct{}
	ignore   []string
	debounce time.Duration
	logger   *slog.Logger
}

func newTreeWatcher(roots, files, ignore []string, debounce time.Duration, logger *slog.Logger) (*treeWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to create file watcher").Fatal().Build()
	}
	w := &treeWatcher{
		fsw:      fsw,
		files:    make(map[string]struct{}, len(files)),
		debounce: debounce,
		logger:   logger,
	}
	for _, root := range roots {
		abs, absErr := filepath.Abs(root)
		if absErr != nil {
			_ = fsw.Close()
			return nil, errors.WrapError(absErr, errors.CategoryIO, "failed to resolve watch root").
				WithContext("root", root).Build()
		}
		w.roots = append(w.roots, abs)
	}
	// An ignored directory that contains a root would hide the whole tree.
	for _, p := range ignore {
		abs, absErr := filepath.Abs(p)
		if absErr != nil || p == "" || w.containsRoot(abs) {
			continue
		}
		w.ignore = append(w.ignore, abs)
	}
	for _, root := range w.roots {
		if addErr := w.addTree(root); addErr != nil {
			_ = fsw.Close()
			return nil, addErr
		}
	}
	// Watch the directory holding each file; editors replace files by rename.
	for _, file := range files {
		abs, absErr := filepath.Abs(file)
		if absErr != nil {
			continue
		}
		if addErr := fsw.Add(filepath.Dir(abs)); addErr != nil {
			_ = fsw.Close()
			return nil, errors.WrapError(addErr, errors.CategoryIO, "failed to watch directory").
				WithContext("path", filepath.Dir(abs)).Build()
		}
		w.files[abs] = struct{}{}
	}
	return w, nil
}

func (w *treeWatcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (hidden(d.Name()) || w.ignored(p)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
	if err != nil {
		return errors.WrapError(err, errors.CategoryIO, "failed to watch source tree").
			WithContext("root", root).Build()
	}
	return nil
}

// relevant reports whether an event should trigger a rebuild.
func (w *treeWatcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if _, ok := w.files[ev.Name]; ok {
		return true
	}
	if w.ignored(ev.Name) {
		return false
	}
	base := filepath.Base(ev.Name)
	if hidden(base) || strings.HasSuffix(base, "~") {
		return false
	}
	for _, root := range w.roots {
		if within(root, ev.Name) {
			return true
		}
	}
	return false
}

func (w *treeWatcher) ignored(p string) bool {
	for _, prefix := range w.ignore {
		if within(prefix, p) {
			return true
		}
	}
	return false
}

// run forwards debounced change signals to fire until ctx is done.
func (w *treeWatcher) run(ctx context.Context, fire func(reason string)) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	var (
		pending int
		last    string
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) && w.underRoot(ev.Name) {
				// New directories need their own watches; an error here just
				// means the path was not a directory or vanished again.
				_ = w.addTree(ev.Name)
			}
			w.logger.Debug("Source change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			pending++
			last = ev.Name
			timer.Reset(w.debounce)
		case <-timer.C:
			if pending == 0 {
				continue
			}
			w.logger.Info("Changes settled", logfields.Count(pending), logfields.Path(last))
			pending = 0
			fire(ReasonChange)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *treeWatcher) underRoot(p string) bool {
	for _, root := range w.roots {
		if within(root, p) {
			return true
		}
	}
	return false
}

func (w *treeWatcher) containsRoot(dir string) bool {
	for _, root := range w.roots {
		if within(dir, root) {
			return true
		}
	}
	return false
}

func (w *treeWatcher) close() error {
	return w.fsw.Close()
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
