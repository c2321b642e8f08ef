package site

import (
	"bytes"
	"encoding/xml"
	"net/url"

	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Atom    string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Self          atomLink  `xml:"atom:link"`
	Items         []rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	PubDate     string  `xml:"pubDate,omitempty"`
	Description string  `xml:"description,omitempty"`
}

type rssGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// rfc822 is the RSS 2.0 date format with a numeric zone.
const rfc822 = "Mon, 02 Jan 2006 15:04:05 -0700"

// renderFeed builds an RSS 2.0 channel of the newest pages. lastBuildDate
// is the newest publication date, so unchanged pages give identical bytes.
func renderFeed(cfg config.SiteConfig, base *url.URL, pages []Page) ([]byte, error) {
	title := cfg.Title
	if title == "" {
		title = base.Host
	}
	description := cfg.Description
	if description == "" {
		description = "Recent posts from " + title
	}

	channel := rssChannel{
		Title:       title,
		Link:        link(base, ""),
		Description: description,
		Language:    cfg.Language,
		Self:        atomLink{Href: link(base, FeedPath), Rel: "self", Type: "application/rss+xml"},
	}
	for i, p := range pages {
		if cfg.FeedItems > 0 && i == cfg.FeedItems {
			break
		}
		href := link(base, p.URL)
		item := rssItem{
			Title:       p.Title,
			Link:        href,
			GUID:        rssGUID{Value: href, IsPermaLink: true},
			Description: p.Description,
		}
		if !p.PublishedAt.IsZero() {
			item.PubDate = p.PublishedAt.UTC().Format(rfc822)
			if channel.LastBuildDate == "" {
				channel.LastBuildDate = item.PubDate
			}
		}
		channel.Items = append(channel.Items, item)
	}

	return marshal(rss{Version: "2.0", Atom: "http://www.w3.org/2005/Atom", Channel: channel}, FeedPath)
}

func marshal(v any, name string) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, siteError(err, "encode "+name)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func siteError(err error, msg string) error {
	return errors.WrapError(err, errors.CategoryRender, msg).
		NextRun().
		WithContext("source", "site").
		Build()
}
