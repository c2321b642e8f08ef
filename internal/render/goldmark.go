package render

import (
	"bytes"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

const defaultWordsPerMinute = 200

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{- with .Description}}
<meta name="description" content="{{.}}">
{{- end}}
{{- range .Tags}}
<meta property="article:tag" content="{{.}}">
{{- end}}
</head>
<body>
<article>
<header>
<h1>{{.Title}}</h1>
{{- with .Published}}
<time datetime="{{.Format "2006-01-02"}}">{{.Format "January 2, 2006"}}</time>
{{- end}}
<p class="reading-time">{{.ReadingTime}} min read</p>
</header>
{{.Body}}
</article>
</body>
</html>
`))

type pageData struct {
	Lang        string
	Title       string
	Description string
	Tags        []string
	Published   *time.Time
	ReadingTime int
	Body        template.HTML
}

// GoldmarkRenderer renders GitHub-flavoured markdown with footnotes and
// typographic punctuation, and wraps the result in a minimal HTML page.
type GoldmarkRenderer struct {
	unsafeHTML     bool
	wordsPerMinute int
	lang           string
}

// GoldmarkOption configures a GoldmarkRenderer.
type GoldmarkOption func(*GoldmarkRenderer)

// WithRawHTML controls whether raw HTML in markdown is passed through.
func WithRawHTML(allow bool) GoldmarkOption {
	return func(r *GoldmarkRenderer) { r.unsafeHTML = allow }
}

// WithWordsPerMinute sets the reading speed used for reading time.
func WithWordsPerMinute(wpm int) GoldmarkOption {
	return func(r *GoldmarkRenderer) {
		if wpm > 0 {
			r.wordsPerMinute = wpm
		}
	}
}

// WithLang sets the page language attribute.
func WithLang(lang string) GoldmarkOption {
	return func(r *GoldmarkRenderer) {
		if lang != "" {
			r.lang = lang
		}
	}
}

// NewGoldmarkRenderer creates a renderer. Raw HTML is allowed by default.
func NewGoldmarkRenderer(opts ...GoldmarkOption) *GoldmarkRenderer {
	r := &GoldmarkRenderer{unsafeHTML: true, wordsPerMinute: defaultWordsPerMinute, lang: "en"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// engine builds a fresh goldmark instance per call so concurrent renders
// share nothing.
func (r *GoldmarkRenderer) engine() goldmark.Markdown {
	rendererOptions := []renderer.Option{html.WithXHTML()}
	if r.unsafeHTML {
		rendererOptions = append(rendererOptions, html.WithUnsafe())
	}
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote, extension.Typographer),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(rendererOptions...),
	)
}

// Render implements Renderer.
func (r *GoldmarkRenderer) Render(body []byte, fm Frontmatter) (*Rendered, error) {
	var buf bytes.Buffer
	if err := r.engine().Convert(body, &buf); err != nil {
		return nil, newRenderError("markdown conversion failed", err)
	}

	stats, err := analyze(buf.Bytes())
	if err != nil {
		return nil, newRenderError("rendered HTML could not be analyzed", err)
	}

	title := fm.Title()
	if title == "" {
		title = stats.firstHeading
	}
	readingTime := 0
	if stats.words > 0 {
		readingTime = (stats.words + r.wordsPerMinute - 1) / r.wordsPerMinute
	}

	data := pageData{
		Lang:        r.lang,
		Title:       title,
		Description: fm.Description(),
		Tags:        fm.Tags(),
		ReadingTime: readingTime,
		// goldmark output is trusted: raw HTML passthrough is an explicit option.
		Body: template.HTML(buf.String()),
	}
	if t, ok := fm.PublishedAt(); ok {
		data.Published = &t
	}

	var page bytes.Buffer
	if err := pageTemplate.Execute(&page, data); err != nil {
		return nil, newRenderError("page template failed", err)
	}

	return &Rendered{
		HTML:        page.Bytes(),
		Title:       title,
		WordCount:   stats.words,
		ReadingTime: readingTime,
	}, nil
}
