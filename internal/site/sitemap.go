package site

import (
	"encoding/xml"
	"net/url"
	"slices"
	"strings"
)

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// renderSitemap lists the site root followed by every page in URL order.
// lastmod is the day the source was last modified.
func renderSitemap(base *url.URL, pages []Page) ([]byte, error) {
	sorted := slices.Clone(pages)
	slices.SortFunc(sorted, func(a, b Page) int { return strings.Compare(a.URL, b.URL) })

	set := urlset{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	// A root index page already stands for the site root.
	if len(sorted) == 0 || sorted[0].URL != "" {
		set.URLs = append(set.URLs, sitemapURL{Loc: link(base, "")})
	}
	for _, p := range sorted {
		u := sitemapURL{Loc: link(base, p.URL)}
		if !p.ModifiedAt.IsZero() {
			u.LastMod = p.ModifiedAt.UTC().Format("2006-01-02")
		}
		set.URLs = append(set.URLs, u)
	}
	return marshal(set, SitemapPath)
}
