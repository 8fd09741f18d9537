// Package graph folds page results into the site link graph as they arrive
// and runs the cross-page consistency checks once the crawl has ended.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// Site-level issue codes
const (
	CodeOrphanPage            = "orphan_page"
	CodeRedirectLoop          = "redirect_loop"
	CodeLongRedirectChain     = "long_redirect_chain"
	CodeHreflangNotReciprocal = "hreflang_not_reciprocal"
	CodeHreflangCodeMismatch  = "hreflang_code_mismatch"
	CodeHreflangNotCrawled    = "hreflang_target_not_crawled"
	CodeCanonicalBlocked      = "canonical_blocked_by_robots"
	CodeCanonicalTargetNotOK  = "canonical_target_not_ok"
	CodeNoIndexInSitemap      = "noindex_in_sitemap"
	CodeBlockedInSitemap      = "blocked_in_sitemap"
	CodeNoIndexCanonicalOther = "noindex_canonical_conflict"
	CodeBrokenInternalLink    = "broken_internal_link"
	CodeDeepPage              = "deep_page"
)

// DeepPageDepth is the click distance from the seed beyond which a page is
// reported as hard to reach
const DeepPageDepth = 3

type node struct {
	inbound  int
	outbound map[types.CanonicalURL]struct{}
	// redirectTo is the final URL when this node answered with a redirect
	redirectTo types.CanonicalURL
	inSitemap  bool
	viaCrawl   bool
	fetched    bool
	blocked    bool
}

// Graph is the directed internal-link graph of one audit. It is safe for
// concurrent use.
type Graph struct {
	mu   sync.Mutex
	seed types.CanonicalURL

	nodes map[types.CanonicalURL]*node
	// pages is keyed by requested URL and, for redirects, the final URL
	pages map[types.CanonicalURL]*types.PageResult
	order []*types.PageResult
}

// New creates an empty graph for the site rooted at seed
func New(seed types.CanonicalURL) *Graph {
	return &Graph{
		seed:  seed,
		nodes: make(map[types.CanonicalURL]*node),
		pages: make(map[types.CanonicalURL]*types.PageResult),
	}
}

func (g *Graph) nodeLocked(u types.CanonicalURL) *node {
	n, ok := g.nodes[u]
	if !ok {
		n = &node{}
		g.nodes[u] = n
	}
	return n
}

// Observe folds one analyzed page into the graph
func (g *Graph) Observe(result *types.PageResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	src := g.nodeLocked(result.URL)
	src.fetched = true
	src.viaCrawl = true
	g.pages[result.URL] = result
	g.order = append(g.order, result)

	if result.FinalURL != "" && result.FinalURL != result.URL {
		src.redirectTo = result.FinalURL
		dst := g.nodeLocked(result.FinalURL)
		dst.viaCrawl = true
		if result.RedirectChain.StopReason == "" {
			dst.fetched = true
			if _, ok := g.pages[result.FinalURL]; !ok {
				g.pages[result.FinalURL] = result
			}
		}
	}

	for _, link := range result.InternalLinks {
		if link == result.URL || link == result.FinalURL {
			continue
		}
		if src.outbound == nil {
			src.outbound = make(map[types.CanonicalURL]struct{})
		}
		if _, dup := src.outbound[link]; dup {
			continue
		}
		src.outbound[link] = struct{}{}

		dst := g.nodeLocked(link)
		dst.inbound++
		dst.viaCrawl = true
	}
}

// ObserveSitemap marks URLs listed in the site's sitemaps
func (g *Graph) ObserveSitemap(urls []types.CanonicalURL) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, u := range urls {
		g.nodeLocked(u).inSitemap = true
	}
}

// ObserveBlocked marks a URL robots.txt kept the crawler away from
func (g *Graph) ObserveBlocked(u types.CanonicalURL) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodeLocked(u).blocked = true
}

// Report is the outcome of the final consistency pass
type Report struct {
	// PageIssues are extra findings keyed by the page they attach to
	PageIssues map[types.CanonicalURL][]types.Issue
	SiteIssues []types.Issue
	// Nodes is a snapshot sorted by URL
	Nodes []types.SiteGraphNode
	Links types.LinkStats
}

type checker struct {
	g      *Graph
	report *Report
}

func (c *checker) page(u types.CanonicalURL, issue types.Issue) {
	issue.URL = u
	c.report.PageIssues[u] = append(c.report.PageIssues[u], issue)
}

func (c *checker) site(u types.CanonicalURL, issue types.Issue) {
	issue.URL = u
	c.report.SiteIssues = append(c.report.SiteIssues, issue)
}

func (c *checker) both(u types.CanonicalURL, issue types.Issue) {
	c.page(u, issue)
	c.site(u, issue)
}

// Check runs the orphan, redirect, hreflang and indexability checks.
// Call it after the crawl has finished.
func (g *Graph) Check() Report {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := &checker{g: g, report: &Report{PageIssues: make(map[types.CanonicalURL][]types.Issue)}}

	pages := append([]*types.PageResult(nil), g.order...)
	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })

	c.orphans()
	for _, p := range pages {
		c.redirects(p)
		c.hreflang(p)
		c.indexability(p)
		c.brokenLinks(p)
	}
	c.blockedInSitemap()

	depths := g.linkDepthsLocked()
	c.deepPages(depths)
	c.report.Links = g.linkStatsLocked(depths)
	c.report.Nodes = g.snapshotLocked(depths)
	return *c.report
}

// Nodes returns a snapshot of the graph sorted by URL
func (g *Graph) Nodes() []types.SiteGraphNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked(g.linkDepthsLocked())
}

func (g *Graph) snapshotLocked(depths map[types.CanonicalURL]int) []types.SiteGraphNode {
	out := make([]types.SiteGraphNode, 0, len(g.nodes))
	for u, n := range g.nodes {
		snap := types.SiteGraphNode{
			URL:       u,
			Inbound:   n.inbound,
			InSitemap: n.inSitemap,
			ViaCrawl:  n.viaCrawl,
			Fetched:   n.fetched,
			Blocked:   n.blocked,
			LinkDepth: -1,
		}
		if d, ok := depths[u]; ok {
			snap.LinkDepth = d
		}
		for link := range n.outbound {
			snap.Outbound = append(snap.Outbound, link)
		}
		sort.Slice(snap.Outbound, func(i, j int) bool { return snap.Outbound[i] < snap.Outbound[j] })
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// isHome reports whether u is the seed or the URL the seed redirected to
func (g *Graph) isHome(u types.CanonicalURL) bool {
	if u == g.seed {
		return true
	}
	n, ok := g.nodes[g.seed]
	return ok && n.redirectTo != "" && u == n.redirectTo
}

func (g *Graph) sortedURLs() []types.CanonicalURL {
	urls := make([]types.CanonicalURL, 0, len(g.nodes))
	for u := range g.nodes {
		urls = append(urls, u)
	}
	sort.Slice(urls, func(i, j int) bool { return urls[i] < urls[j] })
	return urls
}

// orphans are sitemap URLs no crawled page links to
func (c *checker) orphans() {
	for _, u := range c.g.sortedURLs() {
		n := c.g.nodes[u]
		if !n.inSitemap || n.inbound > 0 || c.g.isHome(u) {
			continue
		}
		msg := "Listed in the sitemap but no crawled page links to it"
		if !n.fetched {
			msg = "Listed in the sitemap but never reached by following links"
		}
		issue := types.Issue{Code: CodeOrphanPage, Message: msg, Severity: types.SeverityWarning}
		if _, crawled := c.g.pages[u]; crawled {
			c.both(u, issue)
		} else {
			c.site(u, issue)
		}
	}
}

func (c *checker) redirects(p *types.PageResult) {
	chain := p.RedirectChain
	switch {
	case chain.Loop:
		c.site(p.URL, types.Issue{
			Code:     CodeRedirectLoop,
			Message:  fmt.Sprintf("Redirect loop after %d hops: %s", chain.Len(), chain.StopReason),
			Severity: types.SeverityError,
		})
	case chain.TooLong:
		c.site(p.URL, types.Issue{
			Code:     CodeLongRedirectChain,
			Message:  fmt.Sprintf("Redirect chain cut at %d hops", chain.Len()),
			Severity: types.SeverityError,
		})
	}
}

// selfCode returns the hreflang code a page declares for itself
func selfCode(p *types.PageResult) (string, bool) {
	for _, code := range sortedCodes(p.Hreflang) {
		target := p.Hreflang[code]
		if target == p.URL || target == p.FinalURL {
			return code, true
		}
	}
	return "", false
}

func sortedCodes(m map[string]types.CanonicalURL) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func pointsAt(target types.CanonicalURL, p *types.PageResult) bool {
	return target == p.URL || (p.FinalURL != "" && target == p.FinalURL)
}

func (c *checker) hreflang(a *types.PageResult) {
	if len(a.Hreflang) == 0 {
		return
	}
	own, hasOwn := selfCode(a)

	for _, lang := range sortedCodes(a.Hreflang) {
		target := a.Hreflang[lang]
		if pointsAt(target, a) {
			continue
		}

		b, crawled := c.g.pages[target]
		if !crawled {
			c.page(a.URL, types.Issue{
				Code:     CodeHreflangNotCrawled,
				Message:  fmt.Sprintf("hreflang %q target %s was not crawled; reciprocity unverified", lang, target),
				Severity: types.SeverityInfo,
			})
			continue
		}

		var backCodes []string
		for _, code := range sortedCodes(b.Hreflang) {
			if pointsAt(b.Hreflang[code], a) {
				backCodes = append(backCodes, code)
			}
		}

		if len(backCodes) == 0 {
			c.both(a.URL, types.Issue{
				Code:     CodeHreflangNotReciprocal,
				Message:  fmt.Sprintf("hreflang %q points to %s, which does not link back", lang, target),
				Severity: types.SeverityWarning,
			})
			continue
		}

		if hasOwn && !contains(backCodes, own) {
			c.both(a.URL, types.Issue{
				Code: CodeHreflangCodeMismatch,
				Message: fmt.Sprintf("%s links back with hreflang %q but this page declares itself %q",
					target, backCodes[0], own),
				Severity: types.SeverityWarning,
			})
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (c *checker) indexability(p *types.PageResult) {
	n := c.g.nodes[p.URL]
	canon := p.Canonical
	pointsElsewhere := canon != "" && !pointsAt(canon, p)

	if canon != "" {
		if target, ok := c.g.nodes[canon]; ok && target.blocked {
			c.both(p.URL, types.Issue{
				Code:     CodeCanonicalBlocked,
				Message:  fmt.Sprintf("Canonical target %s is disallowed by robots.txt", canon),
				Severity: types.SeverityError,
			})
		}
	}

	if pointsElsewhere {
		if target, ok := c.g.pages[canon]; ok && (target.StatusCode != 200 || target.RedirectChain.Len() > 0) {
			c.page(p.URL, types.Issue{
				Code:     CodeCanonicalTargetNotOK,
				Message:  fmt.Sprintf("Canonical target %s answered %d or redirected", canon, target.StatusCode),
				Severity: types.SeverityWarning,
			})
		}
	}

	if !p.Robots.NoIndex {
		return
	}
	if n != nil && n.inSitemap {
		c.both(p.URL, types.Issue{
			Code:     CodeNoIndexInSitemap,
			Message:  "Page is marked noindex but listed in the sitemap",
			Severity: types.SeverityWarning,
		})
	}
	if pointsElsewhere {
		c.page(p.URL, types.Issue{
			Code:     CodeNoIndexCanonicalOther,
			Message:  fmt.Sprintf("Page is noindex and also canonicalizes to %s", canon),
			Severity: types.SeverityWarning,
		})
	}
}

func (c *checker) blockedInSitemap() {
	for _, u := range c.g.sortedURLs() {
		n := c.g.nodes[u]
		if n.blocked && n.inSitemap {
			c.site(u, types.Issue{
				Code:     CodeBlockedInSitemap,
				Message:  "Listed in the sitemap but disallowed by robots.txt",
				Severity: types.SeverityWarning,
			})
		}
	}
}

func (c *checker) brokenLinks(p *types.PageResult) {
	for _, link := range p.InternalLinks {
		target, ok := c.g.pages[link]
		if !ok || target.URL != link || target.StatusCode < 400 {
			continue
		}
		c.page(p.URL, types.Issue{
			Code:     CodeBrokenInternalLink,
			Message:  fmt.Sprintf("Links to %s, which returned %d", link, target.StatusCode),
			Severity: types.SeverityWarning,
		})
	}
}

// linkDepthsLocked walks the link graph breadth first from the seed. A
// redirect target shares the depth of the URL that redirected to it.
func (g *Graph) linkDepthsLocked() map[types.CanonicalURL]int {
	depths := make(map[types.CanonicalURL]int)
	if _, ok := g.nodes[g.seed]; !ok {
		return depths
	}

	var queue []types.CanonicalURL
	visit := func(u types.CanonicalURL, d int) {
		for u != "" {
			if _, seen := depths[u]; seen {
				return
			}
			depths[u] = d
			queue = append(queue, u)
			n, ok := g.nodes[u]
			if !ok {
				return
			}
			u = n.redirectTo
		}
	}

	visit(g.seed, 0)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		n, ok := g.nodes[u]
		if !ok {
			continue
		}
		links := make([]types.CanonicalURL, 0, len(n.outbound))
		for link := range n.outbound {
			links = append(links, link)
		}
		sort.Slice(links, func(i, j int) bool { return links[i] < links[j] })
		for _, link := range links {
			visit(link, depths[u]+1)
		}
	}
	return depths
}

// linkStatsLocked aggregates inbound and outbound counts over fetched pages.
// The top tenth by inbound links, at least one page, is reported as high
// authority.
func (g *Graph) linkStatsLocked(depths map[types.CanonicalURL]int) types.LinkStats {
	var stats types.LinkStats
	var ranked []types.PageAuthority
	var inbound, outbound int

	for _, u := range g.sortedURLs() {
		n := g.nodes[u]
		if !n.fetched {
			continue
		}
		inbound += n.inbound
		outbound += len(n.outbound)
		ranked = append(ranked, types.PageAuthority{URL: u, Inbound: n.inbound})

		d, ok := depths[u]
		switch {
		case !ok:
			stats.Unreachable++
		case d > DeepPageDepth:
			stats.DeepPages++
		}
		if ok && d > stats.MaxLinkDepth {
			stats.MaxLinkDepth = d
		}
	}
	if len(ranked) == 0 {
		return stats
	}

	stats.AvgInbound = float64(inbound) / float64(len(ranked))
	stats.AvgOutbound = float64(outbound) / float64(len(ranked))

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Inbound > ranked[j].Inbound })
	top := len(ranked) / 10
	if top < 1 {
		top = 1
	}
	stats.HighAuthority = ranked[:top]
	return stats
}

// deepPages flags fetched pages more than DeepPageDepth clicks from the seed
func (c *checker) deepPages(depths map[types.CanonicalURL]int) {
	for _, u := range c.g.sortedURLs() {
		d, ok := depths[u]
		if !ok || d <= DeepPageDepth || !c.g.nodes[u].fetched {
			continue
		}
		c.site(u, types.Issue{
			Code:     CodeDeepPage,
			Message:  fmt.Sprintf("Page is %d clicks from the homepage", d),
			Severity: types.SeverityInfo,
		})
	}
}
