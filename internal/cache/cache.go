// Package cache persists the build cache: the record of which outputs each
// source item produced, used to decide what must be rebuilt or removed.
package cache

import (
	"maps"
	"slices"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/source"
)

// Version is the on-disk format version. Files carrying any other version
// are discarded and the next build starts from an empty cache.
const Version = 1

// Entry records the outputs produced from one source item.
type Entry struct {
	SourcePath         string      `json:"source_path"`
	Kind               source.Kind `json:"kind"`
	SourceModifiedAt   time.Time   `json:"source_modified_at"`
	OutputPaths        []string    `json:"output_paths"`
	ContentFingerprint string      `json:"content_fingerprint,omitempty"`
	ConfigHash         string      `json:"config_hash,omitempty"`
	Partial            bool        `json:"partial,omitempty"`
	BuiltAt            time.Time   `json:"built_at"`
	Page               *Page       `json:"page,omitempty"`
}

// Page is the metadata of a rendered content item that whole-site
// artifacts are built from. URL is relative to the site root.
type Page struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at,omitzero"`
}

// SiteKey names the owner of whole-site artifacts in output claims and logs.
// It can never collide with a source path, which is always relative.
const SiteKey = "@site"

// BuildCache maps source paths to entries. It is a plain value owned by the
// caller; nothing in this package keeps a reference to it.
type BuildCache struct {
	Version    int              `json:"version"`
	OutputRoot string           `json:"output_root,omitempty"` // absolute directory the outputs live in
	Entries    map[string]Entry `json:"entries"`

	// Site tracks feed.xml and sitemap.xml. It is not a source entry, so
	// change detection never classifies it.
	Site *Entry `json:"site,omitempty"`

	recovered string
}

// New returns an empty cache.
func New() *BuildCache {
	return &BuildCache{Version: Version, Entries: make(map[string]Entry)}
}

// Recovered reports whether Load discarded an unusable cache file, and why.
func (c *BuildCache) Recovered() (string, bool) {
	return c.recovered, c.recovered != ""
}

// Get returns the entry for path.
func (c *BuildCache) Get(path string) (Entry, bool) {
	e, ok := c.Entries[path]
	return e, ok
}

// Put inserts or replaces the entry for path. Output paths are stored
// sorted and de-duplicated.
func (c *BuildCache) Put(path string, e Entry) {
	if c.Entries == nil {
		c.Entries = make(map[string]Entry)
	}
	e.SourcePath = path
	e.OutputPaths = NormalizeOutputs(e.OutputPaths)
	c.Entries[path] = e
}

// Remove deletes the entry for path.
func (c *BuildCache) Remove(path string) {
	delete(c.Entries, path)
}

// Paths returns every tracked source path in sorted order.
func (c *BuildCache) Paths() []string {
	return slices.Sorted(maps.Keys(c.Entries))
}

// Len returns the number of entries.
func (c *BuildCache) Len() int {
	return len(c.Entries)
}

// OutputCount returns the number of tracked output paths across all entries.
func (c *BuildCache) OutputCount() int {
	n := 0
	for _, e := range c.Entries {
		n += len(e.OutputPaths)
	}
	return n
}

// Owners maps every tracked output path to the source that recorded it,
// skipping the sources for which skip returns true. Site artifacts are
// owned by SiteKey.
func (c *BuildCache) Owners(skip func(src string) bool) map[string]string {
	owners := make(map[string]string, c.OutputCount())
	for src, e := range c.Entries {
		if skip != nil && skip(src) {
			continue
		}
		for _, p := range e.OutputPaths {
			owners[p] = src
		}
	}
	if c.Site != nil && (skip == nil || !skip(SiteKey)) {
		for _, p := range c.Site.OutputPaths {
			owners[p] = SiteKey
		}
	}
	return owners
}

// NormalizeOutputs sorts and de-duplicates output paths.
func NormalizeOutputs(paths []string) []string {
	out := slices.Clone(paths)
	slices.Sort(out)
	return slices.Compact(out)
}
