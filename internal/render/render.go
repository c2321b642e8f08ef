// Package render turns markdown sources into HTML pages. Rendering is a pure
// transform: no filesystem access and no shared state between calls.
package render

import (
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/frontmatter"
)

// Version identifies the page layout. Bumping it invalidates every content entry.
const Version = "1"

// Renderer renders a markdown body with its parsed frontmatter.
type Renderer interface {
	Render(body []byte, fm Frontmatter) (*Rendered, error)
}

// Rendered is a complete HTML page plus metadata derived while rendering.
type Rendered struct {
	HTML        []byte
	Title       string
	WordCount   int
	ReadingTime int // minutes, rounded up
}

// RenderError reports a content item that could not be rendered.
type RenderError struct {
	Path string
	err  *errors.ClassifiedError
}

func newRenderError(msg string, cause error) *RenderError {
	return &RenderError{err: errors.WrapError(cause, errors.CategoryRender, msg).NextRun().Build()}
}

// NewRenderError reports a failure rendering the item at path.
func NewRenderError(path, msg string, cause error) *RenderError {
	e := newRenderError(msg, cause)
	e.Path = path
	return e
}

func (e *RenderError) Error() string {
	if e.Path == "" {
		return e.err.Error()
	}
	return "render " + e.Path + ": " + e.err.Error()
}

func (e *RenderError) Unwrap() error { return e.err }

// ParseDocument splits src into frontmatter and body. Invalid UTF-8 and
// malformed frontmatter are reported as *RenderError.
func ParseDocument(src []byte) (Frontmatter, []byte, error) {
	if !utf8.Valid(src) {
		return nil, nil, newRenderError("source is not valid UTF-8", nil)
	}
	doc, err := frontmatter.Parse(src)
	if err != nil {
		return nil, nil, newRenderError("malformed frontmatter", err)
	}
	return Frontmatter(doc.Fields), doc.Body, nil
}

// Frontmatter is the parsed YAML header of a document.
type Frontmatter map[string]any

// String returns the trimmed string value of key.
func (f Frontmatter) String(key string) string {
	if s, ok := f[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func (f Frontmatter) Title() string       { return f.String("title") }
func (f Frontmatter) Description() string { return f.String("description") }

// Tags accepts either a YAML list or a comma separated string.
func (f Frontmatter) Tags() []string {
	var tags []string
	switch v := f["tags"].(type) {
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
				tags = append(tags, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				tags = append(tags, s)
			}
		}
	}
	return tags
}

// PublishedAt reads the first of date, published_at or publication_date.
func (f Frontmatter) PublishedAt() (time.Time, bool) {
	for _, key := range []string{"date", "published_at", "publication_date"} {
		switch v := f[key].(type) {
		case time.Time:
			return v, true
		case string:
			for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", time.DateOnly} {
				if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

// AsRenderError extracts a *RenderError from err.
func AsRenderError(err error) (*RenderError, bool) {
	var re *RenderError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}
