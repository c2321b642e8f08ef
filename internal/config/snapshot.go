package config

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

type snapshotWriter struct {
	parts []string
}

func (w *snapshotWriter) add(key string, values ...string) {
	w.parts = append(w.parts, key+"="+strings.Join(values, ","))
}

func (w *snapshotWriter) sum() string {
	h := sha256.New()
	for _, p := range w.parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ImagesSnapshot computes a stable hash of the settings that shape image
// outputs. Format order and size order do not affect the result.
func (c *Config) ImagesSnapshot() string {
	if c == nil {
		return ""
	}
	w := &snapshotWriter{}
	img := c.Images

	formats := slices.Clone(img.Formats)
	slices.Sort(formats)
	w.add("images.formats", formats...)

	sizes := make([]string, 0, len(img.Sizes))
	for _, s := range img.Sizes {
		sizes = append(sizes, strings.Join([]string{
			s.Name, strconv.Itoa(s.Width), strconv.Itoa(s.Height), strconv.FormatBool(s.Crop), s.Class,
		}, ":"))
	}
	slices.Sort(sizes)
	w.add("images.sizes", sizes...)

	quality := make([]string, 0)
	for format, classes := range img.Quality {
		for class, q := range classes {
			quality = append(quality, format+"/"+class+":"+strconv.Itoa(q))
		}
	}
	slices.Sort(quality)
	w.add("images.quality", quality...)

	w.add("images.naming", img.Naming)
	w.add("images.resample", img.Resample)
	w.add("images.allow_upscale", strconv.FormatBool(img.AllowUpscale))
	w.add("images.output_dir", img.OutputDir)
	return w.sum()
}

// ContentSnapshot computes a stable hash of the settings that shape content outputs.
func (c *Config) ContentSnapshot() string {
	if c == nil {
		return ""
	}
	w := &snapshotWriter{}
	w.add("content.emit_json", strconv.FormatBool(c.Content.EmitJSON))
	w.add("content.raw_html", strconv.FormatBool(c.Content.RawHTMLEnabled()))
	w.add("content.words_per_minute", strconv.Itoa(c.Content.WordsPerMinute))
	w.add("site.language", c.Site.Language)
	return w.sum()
}

// SiteSnapshot computes a stable hash of the settings that shape feed.xml
// and sitemap.xml.
func (c *Config) SiteSnapshot() string {
	if c == nil {
		return ""
	}
	w := &snapshotWriter{}
	w.add("site.title", c.Site.Title)
	w.add("site.base_url", c.Site.BaseURL)
	w.add("site.description", c.Site.Description)
	w.add("site.language", c.Site.Language)
	w.add("site.feed_items", strconv.Itoa(c.Site.FeedItems))
	return w.sum()
}
