// Package source discovers the authored content tree: markdown articles and
// the images that accompany them.
package source

import (
	"path"
	"strings"
	"time"
)

// Kind distinguishes content from images.
type Kind string

const (
	KindContent Kind = "content"
	KindImage   Kind = "image"
	// KindSite marks the whole-site artifacts derived from every content
	// item. Discovery never yields it.
	KindSite Kind = "site"
)

var extensions = map[string]Kind{
	".md":       KindContent,
	".mdx":      KindContent,
	".markdown": KindContent,
	".jpg":      KindImage,
	".jpeg":     KindImage,
	".png":      KindImage,
	".gif":      KindImage,
	".webp":     KindImage,
}

// KindOf classifies a path by extension. ok is false for files the pipeline ignores.
func KindOf(p string) (Kind, bool) {
	k, ok := extensions[strings.ToLower(path.Ext(p))]
	return k, ok
}

// Item is one file of the source tree. Path is slash-separated, relative to
// the content root, and identifies the item across runs.
type Item struct {
	Path        string
	Kind        Kind
	ModifiedAt  time.Time
	Size        int64
	Slug        string
	Dir         string
	Fingerprint string
	Draft       bool
}

// IsIndex reports whether the item is an index.* file that names its directory.
func (i Item) IsIndex() bool {
	return isIndex(i.Path)
}

// OutputDir returns the output directory for a content item: the item's own
// directory for index files, else a directory named after the slug.
func (i Item) OutputDir() string {
	if i.IsIndex() {
		return i.Dir
	}
	return path.Join(i.Dir, i.Slug)
}

func isIndex(p string) bool {
	base := path.Base(p)
	return strings.EqualFold(strings.TrimSuffix(base, path.Ext(base)), "index")
}

func dirOf(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}
