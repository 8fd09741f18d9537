package export

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

// URLSet represents the XML sitemap structure
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// URL represents a single URL in the sitemap
type URL struct {
	Loc      string  `xml:"loc"`
	Lastmod  string  `xml:"lastmod,omitempty"`
	Priority float64 `xml:"priority,omitempty"`
}

// SitemapURLs selects the pages that belong in a sitemap: indexable 200
// responses that do not canonicalize elsewhere
func SitemapURLs(summary *types.AuditSummary) URLSet {
	urlSet := URLSet{
		XMLNS: sitemapNS,
		URLs:  make([]URL, 0),
	}

	for i := range summary.Pages {
		page := &summary.Pages[i]
		if !page.Indexable() {
			continue
		}
		if page.Canonical != "" && page.Canonical != page.URL {
			continue
		}

		priority := 0.5
		if page.Depth == 0 {
			priority = 1.0
		} else if page.Depth == 1 {
			priority = 0.8
		}

		urlSet.URLs = append(urlSet.URLs, URL{
			Loc:      page.URL.String(),
			Lastmod:  lastmod(page.CrawledAt),
			Priority: priority,
		})
	}
	return urlSet
}

// ExportSitemap writes the sitemap and returns the number of URLs in it
func (e *Exporter) ExportSitemap(summary *types.AuditSummary, outputFile string) (int, error) {
	urlSet := SitemapURLs(summary)

	output, err := xml.MarshalIndent(urlSet, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal XML: %w", err)
	}

	xmlContent := append([]byte(xml.Header), output...)
	xmlContent = append(xmlContent, '\n')

	if err := os.WriteFile(outputFile, xmlContent, 0644); err != nil {
		return 0, fmt.Errorf("failed to write sitemap: %w", err)
	}

	return len(urlSet.URLs), nil
}
