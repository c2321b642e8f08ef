package source

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify lowercases s, strips diacritics and collapses every run of
// characters outside [a-z0-9] into a single hyphen.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

// SlugFor derives the slug of a source path: the parent directory name for
// index files, else the file stem.
func SlugFor(p string) string {
	if isIndex(p) {
		if dir := dirOf(p); dir != "" {
			return Slugify(path.Base(dir))
		}
		return "index"
	}
	base := path.Base(p)
	return Slugify(strings.TrimSuffix(base, path.Ext(base)))
}
