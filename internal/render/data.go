package render

import (
	"encoding/json"
)

// DataJSON renders the optional per-article data artifact: the frontmatter
// plus metadata derived while rendering.
func DataJSON(fm Frontmatter, page *Rendered, slug, fingerprint string) ([]byte, error) {
	doc := struct {
		Title       string      `json:"title"`
		Slug        string      `json:"slug"`
		WordCount   int         `json:"word_count"`
		ReadingTime int         `json:"reading_time_minutes"`
		Fingerprint string      `json:"fingerprint,omitempty"`
		Frontmatter Frontmatter `json:"frontmatter"`
	}{
		Title:       page.Title,
		Slug:        slug,
		WordCount:   page.WordCount,
		ReadingTime: page.ReadingTime,
		Fingerprint: fingerprint,
		Frontmatter: fm,
	}
	if doc.Frontmatter == nil {
		doc.Frontmatter = Frontmatter{}
	}
	if doc.Title == "" {
		doc.Title = slug
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, newRenderError("encode data artifact", err)
	}
	return append(data, '\n'), nil
}
