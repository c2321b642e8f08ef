package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// Store reads and atomically replaces the cache file.
type Store struct {
	fs     billy.Filesystem
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the cache file at path within fsys.
func NewStore(fsys billy.Filesystem, path string) *Store {
	return &Store{fs: fsys, path: path, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Path returns the cache file path within the store filesystem.
func (s *Store) Path() string {
	return s.path
}

// Load reads the cache file. It never fails: a missing file yields an empty
// cache, and an unreadable, malformed or foreign-version file yields an
// empty cache flagged as recovered.
func (s *Store) Load() *BuildCache {
	f, err := s.fs.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New()
		}
		return s.recover("unreadable", err)
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return s.recover("unreadable", err)
	}

	var c BuildCache
	if err := json.Unmarshal(data, &c); err != nil {
		return s.recover("malformed", err)
	}
	if c.Version != Version {
		return s.recover("version mismatch", fmt.Errorf("found version %d, want %d", c.Version, Version))
	}
	if c.Entries == nil {
		c.Entries = make(map[string]Entry)
	}
	for p, e := range c.Entries {
		if e.SourcePath != p {
			e.SourcePath = p
			c.Entries[p] = e
		}
	}
	return &c
}

func (s *Store) recover(reason string, cause error) *BuildCache {
	err := errors.WrapError(cause, errors.CategoryCache, "build cache discarded").
		Warning().
		WithContext("reason", reason).
		WithContext("path", s.path).
		Build()
	s.logger.Warn("Build cache unusable, starting from an empty cache",
		logfields.Path(s.path),
		logfields.Reason(reason),
		logfields.Error(err))
	c := New()
	c.recovered = reason
	return c
}

// Commit writes c to a temporary file next to the cache file, syncs it and
// renames it over the target. Readers see either the old or the new file.
func (s *Store) Commit(c *BuildCache) error {
	out := BuildCache{Version: Version, OutputRoot: c.OutputRoot, Entries: c.Entries, Site: c.Site}
	if out.Entries == nil {
		out.Entries = map[string]Entry{}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return commitError(err, s.path, "marshal build cache")
	}

	dir := path.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return commitError(err, s.path, "create cache directory")
	}

	tmp, err := s.fs.TempFile(dir, ".build-cache-")
	if err != nil {
		return commitError(err, s.path, "create temporary cache file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return commitError(err, s.path, "write temporary cache file")
	}
	if syncer, ok := tmp.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			_ = tmp.Close()
			cleanup()
			return commitError(err, s.path, "sync temporary cache file")
		}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return commitError(err, s.path, "close temporary cache file")
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		cleanup()
		return commitError(err, s.path, "replace cache file")
	}

	s.logger.Debug("Build cache committed", logfields.Path(s.path), logfields.Count(len(out.Entries)))
	return nil
}

func commitError(err error, p, msg string) error {
	return errors.WrapError(err, errors.CategoryCache, msg).Fatal().WithContext("path", p).Build()
}
