// Package seeding discovers the initial URL set of an audit from the
// site's XML sitemaps.
package seeding

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BenjaminSRussell/seo_audit/internal/canonical"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// MaxSitemapURLs caps the number of page URLs taken from all sitemaps
const MaxSitemapURLs = 50_000

// conventionalPaths are probed on the seed host in order
var conventionalPaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml"}

// Gate is the part of the politeness gate discovery depends on
type Gate interface {
	WaitForSlot(ctx context.Context, u types.CanonicalURL) error
	Sitemaps(ctx context.Context, origin string) []string
}

// Document decodes both <urlset> and <sitemapindex> roots
type Document struct {
	XMLName  xml.Name
	URLs     []Entry `xml:"url"`
	Sitemaps []Entry `xml:"sitemap"`
}

// Entry is a <url> or <sitemap> element
type Entry struct {
	Loc string `xml:"loc"`
}

// Result is what discovery found
type Result struct {
	// URLs are same-host page URLs in sitemap order, deduplicated
	URLs []types.CanonicalURL
	// Sitemaps lists every sitemap that was fetched and parsed
	Sitemaps []string
	// OffHost counts sitemap entries dropped for pointing at another host
	OffHost int
}

// Discoverer fetches and parses sitemaps for a seed URL
type Discoverer struct {
	client    *http.Client
	gate      Gate
	userAgent string
	maxBytes  int64
	logger    *zap.Logger
}

// Option configures a Discoverer
type Option func(*Discoverer)

// WithClient replaces the HTTP client
func WithClient(client *http.Client) Option {
	return func(d *Discoverer) { d.client = client }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Discoverer) { d.logger = logger }
}

// NewDiscoverer creates a discoverer whose requests go through gate
func NewDiscoverer(cfg types.AuditConfig, gate Gate, opts ...Option) *Discoverer {
	d := &Discoverer{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		gate:      gate,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBodyBytes,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type discovery struct {
	seed    types.CanonicalURL
	result  *Result
	visited map[string]bool
	seen    map[types.CanonicalURL]bool
}

// Discover collects page URLs from the conventional sitemap locations and
// the robots.txt Sitemap: directives of the seed host. A missing or broken
// sitemap is not an error; the result is simply empty. Only a cancelled
// context is reported.
func (d *Discoverer) Discover(ctx context.Context, seed types.CanonicalURL) (*Result, error) {
	origin := canonical.Origin(seed)
	if origin == "" {
		return nil, fmt.Errorf("seed %q has no origin", seed)
	}

	run := &discovery{
		seed:    seed,
		result:  &Result{},
		visited: make(map[string]bool),
		seen:    make(map[types.CanonicalURL]bool),
	}

	candidates := make([]string, 0, len(conventionalPaths))
	for _, p := range conventionalPaths {
		candidates = append(candidates, origin+p)
	}
	candidates = append(candidates, d.gate.Sitemaps(ctx, origin)...)

	for _, sitemapURL := range candidates {
		if err := ctx.Err(); err != nil {
			return run.result, err
		}
		d.fetchSitemap(ctx, run, sitemapURL, 0)
	}

	d.logger.Info("sitemap discovery finished",
		zap.String("seed", seed.String()),
		zap.Int("urls", len(run.result.URLs)),
		zap.Int("sitemaps", len(run.result.Sitemaps)),
		zap.Int("off_host", run.result.OffHost))

	return run.result, nil
}

// fetchSitemap follows sitemap indexes one level deep
func (d *Discoverer) fetchSitemap(ctx context.Context, run *discovery, raw string, depth int) {
	sitemapURL, err := canonical.Canonicalize(raw, "")
	if err != nil || run.visited[sitemapURL.String()] {
		return
	}
	run.visited[sitemapURL.String()] = true

	doc, err := d.load(ctx, sitemapURL)
	if err != nil {
		d.logger.Debug("sitemap unavailable",
			zap.String("url", sitemapURL.String()),
			zap.Error(err))
		return
	}
	run.result.Sitemaps = append(run.result.Sitemaps, sitemapURL.String())

	switch doc.XMLName.Local {
	case "sitemapindex":
		if depth > 0 {
			d.logger.Warn("ignoring nested sitemap index", zap.String("url", sitemapURL.String()))
			return
		}
		for _, child := range doc.Sitemaps {
			if ctx.Err() != nil {
				return
			}
			d.fetchSitemap(ctx, run, strings.TrimSpace(child.Loc), depth+1)
		}
	case "urlset":
		for _, entry := range doc.URLs {
			run.add(strings.TrimSpace(entry.Loc))
		}
	default:
		d.logger.Warn("unrecognized sitemap root",
			zap.String("url", sitemapURL.String()),
			zap.String("root", doc.XMLName.Local))
	}
}

func (run *discovery) add(loc string) {
	if len(run.result.URLs) >= MaxSitemapURLs {
		return
	}
	u, err := canonical.Canonicalize(loc, "")
	if err != nil {
		return
	}
	if !canonical.SameHost(u, run.seed) {
		run.result.OffHost++
		return
	}
	if run.seen[u] {
		return
	}
	run.seen[u] = true
	run.result.URLs = append(run.result.URLs, u)
}

func (d *Discoverer) load(ctx context.Context, u types.CanonicalURL) (*Document, error) {
	if err := d.gate.WaitForSlot(ctx, u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	body, err = maybeGunzip(body)
	if err != nil {
		return nil, err
	}

	return ParseSitemap(body)
}

// ParseSitemap decodes a <urlset> or <sitemapindex> document
func ParseSitemap(body []byte) (*Document, error) {
	var doc Document
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}
	return &doc, nil
}

// maybeGunzip inflates .xml.gz payloads served without Content-Encoding
func maybeGunzip(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip sitemap: %w", err)
	}
	defer zr.Close()

	inflated, err := io.ReadAll(io.LimitReader(zr, MaxSitemapURLs*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate sitemap: %w", err)
	}
	return inflated, nil
}
