// Package parser extracts the SEO-relevant parts of an HTML document.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/BenjaminSRussell/seo_audit/internal/canonical"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// MaxHeadingRunes bounds the stored text of a heading
const MaxHeadingRunes = 100

// Image is one <img> element
type Image struct {
	Src    string
	Alt    string
	HasAlt bool
}

// Hreflang is one <link rel="alternate" hreflang> declaration
type Hreflang struct {
	Lang string
	Href string
	URL  types.CanonicalURL
}

// Document holds everything extracted from one page
type Document struct {
	Lang string

	Title    string
	HasTitle bool

	MetaDescription    string
	HasMetaDescription bool

	HasCanonical bool
	CanonicalRaw string
	Canonical    types.CanonicalURL

	Robots types.RobotsMeta

	Headings []types.HeadingItem
	Links    []types.CanonicalURL
	Images   []Image
	Hreflang []Hreflang
	JSONLD   []string

	WordCount int
}

// ImagesMissingAlt counts images with no alt attribute at all
func (d *Document) ImagesMissingAlt() int {
	missing := 0
	for _, img := range d.Images {
		if !img.HasAlt {
			missing++
		}
	}
	return missing
}

// H1 returns the text of every level-1 heading
func (d *Document) H1() []string {
	var h1 []string
	for _, h := range d.Headings {
		if h.Level == 1 {
			h1 = append(h1, h.Text)
		}
	}
	return h1
}

// Parse extracts a Document from body. Relative references resolve against
// pageURL, or against <base href> when the page declares one.
func Parse(body []byte, pageURL types.CanonicalURL) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	base := pageURL.String()
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := canonical.Canonicalize(href, base); err == nil {
			base = resolved.String()
		}
	}

	d := &Document{}
	d.Lang = strings.TrimSpace(doc.Find("html").AttrOr("lang", ""))

	title := doc.Find("title").First()
	if title.Length() > 0 {
		d.HasTitle = true
		d.Title = collapseSpace(title.Text())
	}

	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(s.AttrOr("name", "")))
		content, hasContent := s.Attr("content")
		switch name {
		case "description":
			if !d.HasMetaDescription {
				d.HasMetaDescription = true
				d.MetaDescription = collapseSpace(content)
			}
		case "robots":
			if hasContent {
				d.Robots = parseRobotsMeta(content)
			}
		}
	})

	if link := doc.Find("link[rel~='canonical']").First(); link.Length() > 0 {
		d.HasCanonical = true
		d.CanonicalRaw = strings.TrimSpace(link.AttrOr("href", ""))
		if u, err := canonical.Canonicalize(d.CanonicalRaw, base); err == nil {
			d.Canonical = u
		}
	}

	d.Headings = extractHeadings(doc)
	d.Links = extractLinks(doc, base)

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		alt, hasAlt := s.Attr("alt")
		d.Images = append(d.Images, Image{
			Src:    s.AttrOr("src", ""),
			Alt:    alt,
			HasAlt: hasAlt,
		})
	})

	doc.Find("link[rel~='alternate'][hreflang]").Each(func(i int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		entry := Hreflang{
			Lang: strings.TrimSpace(s.AttrOr("hreflang", "")),
			Href: href,
		}
		if u, err := canonical.Canonicalize(href, base); err == nil {
			entry.URL = u
		}
		d.Hreflang = append(d.Hreflang, entry)
	})

	doc.Find("script[type='application/ld+json']").Each(func(i int, s *goquery.Selection) {
		d.JSONLD = append(d.JSONLD, s.Text())
	})

	d.WordCount = CountWords(doc.Nodes...)

	return d, nil
}

func extractHeadings(doc *goquery.Document) []types.HeadingItem {
	var headings []types.HeadingItem
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		level := int(goquery.NodeName(s)[1] - '0')
		headings = append(headings, types.HeadingItem{
			Level:    level,
			Text:     truncateRunes(collapseSpace(s.Text()), MaxHeadingRunes),
			Position: i,
		})
	})
	return headings
}

// extractLinks returns unique crawlable <a href> targets in document order
func extractLinks(doc *goquery.Document, base string) []types.CanonicalURL {
	links := make([]types.CanonicalURL, 0)
	visited := make(map[types.CanonicalURL]bool)

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, err := canonical.Canonicalize(href, base)
		if err != nil {
			return
		}
		if !visited[link] {
			links = append(links, link)
			visited[link] = true
		}
	})
	return links
}

func parseRobotsMeta(content string) types.RobotsMeta {
	meta := types.RobotsMeta{Raw: strings.TrimSpace(content)}
	for _, directive := range strings.Split(content, ",") {
		switch strings.ToLower(strings.TrimSpace(directive)) {
		case "noindex":
			meta.NoIndex = true
		case "nofollow":
			meta.NoFollow = true
		case "none":
			meta.NoIndex = true
			meta.NoFollow = true
		}
	}
	return meta
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
