// Package site renders the whole-site artifacts, feed.xml and sitemap.xml,
// from the page metadata recorded in the build cache. Nothing here reads
// sources: a page appears once its content item has been built.
package site

import (
	"cmp"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"git.home.luguber.info/inful/pressroom/internal/cache"
	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/output"
	"git.home.luguber.info/inful/pressroom/internal/source"
)

// Output paths relative to the output root.
const (
	FeedPath    = "feed.xml"
	SitemapPath = "sitemap.xml"
)

// Page is one built content item.
type Page struct {
	cache.Page
	Source     string
	ModifiedAt time.Time
}

// Pages returns the page of every content entry, newest first. Undated
// pages sort last, by URL.
func Pages(bc *cache.BuildCache) []Page {
	var pages []Page
	for _, src := range bc.Paths() {
		e, _ := bc.Get(src)
		if e.Kind != source.KindContent || e.Page == nil {
			continue
		}
		pages = append(pages, Page{Page: *e.Page, Source: src, ModifiedAt: e.SourceModifiedAt})
	}
	slices.SortStableFunc(pages, func(a, b Page) int {
		switch {
		case a.PublishedAt.IsZero() != b.PublishedAt.IsZero():
			if a.PublishedAt.IsZero() {
				return 1
			}
			return -1
		case !a.PublishedAt.Equal(b.PublishedAt):
			return b.PublishedAt.Compare(a.PublishedAt)
		}
		return cmp.Compare(a.URL, b.URL)
	})
	return pages
}

// Digest identifies the page set. The artifacts only need regenerating
// when it changes.
func Digest(pages []Page) string {
	h := xxhash.New()
	for _, p := range pages {
		_, _ = fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%d\x00%d\n",
			p.Source, p.URL, p.Title, p.Description, p.PublishedAt.Unix(), p.ModifiedAt.Unix())
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Generate renders feed.xml and sitemap.xml for pages, which must be in
// the order Pages returns.
func Generate(cfg config.SiteConfig, pages []Page) ([]output.Artifact, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, siteError(err, "parse site.base_url")
	}
	feed, err := renderFeed(cfg, base, pages)
	if err != nil {
		return nil, err
	}
	sitemap, err := renderSitemap(base, pages)
	if err != nil {
		return nil, err
	}
	return []output.Artifact{
		{Path: FeedPath, Data: feed},
		{Path: SitemapPath, Data: sitemap},
	}, nil
}

// link resolves a page URL, relative to the site root, against base.
func link(base *url.URL, rel string) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(rel, "/")
	u.RawPath = ""
	return u.String()
}
