package output

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/util/sets"
)

// Stats counts what a collection removed.
type Stats struct {
	Entries int
	Outputs int
}

// Collector removes the outputs of deleted sources.
type Collector struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// NewCollector creates a collector for a filesystem rooted at the output directory.
func NewCollector(fsys billy.Filesystem) *Collector {
	return &Collector{fs: fsys, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (c *Collector) WithLogger(logger *slog.Logger) *Collector {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Collect removes every recorded output of each deleted source, then its
// cache entry. Paths that a surviving entry also records are left on disk.
// An entry whose outputs cannot all be removed is kept with the remaining
// paths so a later run retries; the first such failure is returned
// alongside the stats.
func (c *Collector) Collect(deleted []string, bc *cache.BuildCache) (Stats, error) {
	var stats Stats
	var firstErr error

	gone := sets.New(deleted...)
	live := bc.Owners(gone.Has)

	for _, src := range deleted {
		entry, ok := bc.Get(src)
		if !ok {
			continue
		}
		var owned []string
		for _, p := range entry.OutputPaths {
			if owner, shared := live[p]; shared {
				c.logger.Debug("Keeping output owned by a live source",
					logfields.Path(p),
					slog.String("owner", owner))
				continue
			}
			owned = append(owned, p)
		}
		removed, failed := removeAll(c.fs, owned)
		stats.Outputs += removed

		if len(failed) > 0 {
			entry.OutputPaths = failed
			bc.Put(src, entry)
			c.logger.Warn("Could not remove outputs of deleted source",
				logfields.Path(src),
				logfields.Count(len(failed)))
			if firstErr == nil {
				firstErr = errors.NewError(errors.CategoryIO, "remove outputs of deleted source").
					NextRun().
					WithContext("source", src).
					WithContext("remaining", len(failed)).
					Build()
			}
			continue
		}

		bc.Remove(src)
		stats.Entries++
		c.logger.Debug("Collected deleted source",
			logfields.Path(src),
			logfields.Count(removed))
	}
	return stats, firstErr
}
