package source

import (
	"path"
	"strings"
)

// Scope restricts which paths a run discovers and may delete. The zero
// Scope covers the whole tree.
type Scope struct {
	Topic string // topic key, informational
	Dir   string // slash-separated directory prefix
	Slug  string
}

// IsZero reports whether s covers everything.
func (s Scope) IsZero() bool {
	return s.Dir == "" && s.Slug == ""
}

// Contains reports whether p, a slash-separated source path, is in scope.
// A slug scope matches the article file itself and every file below a
// directory with that slug, so sibling images follow their article.
func (s Scope) Contains(p string) bool {
	if s.Dir != "" {
		dir := strings.Trim(s.Dir, "/")
		if p != dir && !strings.HasPrefix(p, dir+"/") {
			return false
		}
	}
	if s.Slug == "" {
		return true
	}
	if SlugFor(p) == s.Slug {
		return true
	}
	for d := dirOf(p); d != ""; d = dirOf(d) {
		if Slugify(path.Base(d)) == s.Slug {
			return true
		}
	}
	return false
}

// String renders the scope for logs and reports.
func (s Scope) String() string {
	var parts []string
	if s.Topic != "" {
		parts = append(parts, "topic="+s.Topic)
	} else if s.Dir != "" {
		parts = append(parts, "dir="+s.Dir)
	}
	if s.Slug != "" {
		parts = append(parts, "slug="+s.Slug)
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ",")
}
