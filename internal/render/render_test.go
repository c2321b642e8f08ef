package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

func TestParseDocument(t *testing.T) {
	fm, body, err := ParseDocument([]byte("---\ntitle: Hello\ntags: go, web\ndate: 2026-02-03\n---\n# Heading\n"))
	require.NoError(t, err)
	require.Equal(t, "Hello", fm.Title())
	require.Equal(t, []string{"go", "web"}, fm.Tags())
	published, ok := fm.PublishedAt()
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), published.UTC())
	require.Equal(t, "# Heading\n", string(body))
}

func TestParseDocument_Errors(t *testing.T) {
	tests := map[string][]byte{
		"invalid utf8":   {0xff, 0xfe, 'x'},
		"unclosed":       []byte("---\ntitle: x\n"),
		"malformed yaml": []byte("---\ntitle: [x\n---\nbody"),
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseDocument(src)
			require.Error(t, err)
			re, ok := AsRenderError(err)
			require.True(t, ok)
			re.Path = "a.md"
			require.True(t, strings.HasPrefix(re.Error(), "render a.md: "))
			require.True(t, errors.HasCategory(err, errors.CategoryRender))
		})
	}
}

func TestGoldmarkRenderer(t *testing.T) {
	r := NewGoldmarkRenderer()
	fm := Frontmatter{"title": "Trip <Report>", "description": "Notes", "tags": []any{"travel"}}
	body := []byte("Intro with \"quotes\" and a footnote.[^1]\n\n## Day one\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n~~gone~~\n\n[^1]: The note.\n")

	page, err := r.Render(body, fm)
	require.NoError(t, err)

	out := string(page.HTML)
	require.Contains(t, out, "<!DOCTYPE html>")
	require.Contains(t, out, "<title>Trip &lt;Report&gt;</title>")
	require.Contains(t, out, `<meta name="description" content="Notes">`)
	require.Contains(t, out, `content="travel"`)
	require.Contains(t, out, `<h2 id="day-one">`)
	require.Contains(t, out, "<table>")
	require.Contains(t, out, "<del>gone</del>")
	require.Contains(t, out, "&ldquo;quotes&rdquo;")
	require.Contains(t, out, `class="footnotes"`)

	require.Equal(t, "Trip <Report>", page.Title)
	require.Greater(t, page.WordCount, 10)
	require.Equal(t, 1, page.ReadingTime)
}

func TestGoldmarkRenderer_TitleFromHeading(t *testing.T) {
	page, err := NewGoldmarkRenderer().Render([]byte("# First *Heading*\n\nText.\n"), Frontmatter{})
	require.NoError(t, err)
	require.Equal(t, "First Heading", page.Title)
}

func TestGoldmarkRenderer_ReadingTime(t *testing.T) {
	body := []byte(strings.Repeat("word ", 450))
	page, err := NewGoldmarkRenderer(WithWordsPerMinute(200)).Render(body, Frontmatter{})
	require.NoError(t, err)
	require.Equal(t, 450, page.WordCount)
	require.Equal(t, 3, page.ReadingTime)
}

func TestGoldmarkRenderer_RawHTML(t *testing.T) {
	body := []byte("<div class=\"x\">raw</div>\n")

	page, err := NewGoldmarkRenderer().Render(body, Frontmatter{})
	require.NoError(t, err)
	require.Contains(t, string(page.HTML), `<div class="x">raw</div>`)

	page, err = NewGoldmarkRenderer(WithRawHTML(false)).Render(body, Frontmatter{})
	require.NoError(t, err)
	require.NotContains(t, string(page.HTML), `<div class="x">`)
}

func TestGoldmarkRenderer_Lang(t *testing.T) {
	page, err := NewGoldmarkRenderer(WithLang("pt")).Render([]byte("Olá.\n"), Frontmatter{})
	require.NoError(t, err)
	require.Contains(t, string(page.HTML), `<html lang="pt">`)

	page, err = NewGoldmarkRenderer(WithLang("")).Render([]byte("Hi.\n"), Frontmatter{})
	require.NoError(t, err)
	require.Contains(t, string(page.HTML), `<html lang="en">`)
}

func TestGoldmarkRenderer_IsDeterministic(t *testing.T) {
	r := NewGoldmarkRenderer()
	body := []byte("# Same\n\nInput.\n")
	a, err := r.Render(body, Frontmatter{"title": "x"})
	require.NoError(t, err)
	b, err := r.Render(body, Frontmatter{"title": "x"})
	require.NoError(t, err)
	require.Equal(t, a.HTML, b.HTML)
}

func TestDataJSON(t *testing.T) {
	fm := Frontmatter{"title": "Hello", "tags": []any{"a"}}
	data, err := DataJSON(fm, &Rendered{Title: "Hello", WordCount: 12, ReadingTime: 1}, "hello", "fp")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "hello", decoded["slug"])
	require.Equal(t, float64(12), decoded["word_count"])
	require.Equal(t, float64(1), decoded["reading_time_minutes"])
	require.Equal(t, "fp", decoded["fingerprint"])
	require.Equal(t, "Hello", decoded["frontmatter"].(map[string]any)["title"])
}
