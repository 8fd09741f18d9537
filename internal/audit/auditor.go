// Package audit coordinates one site audit: seeding, crawling, the graph
// checks and the final summary.
package audit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BenjaminSRussell/seo_audit/internal/analyzer"
	"github.com/BenjaminSRussell/seo_audit/internal/canonical"
	"github.com/BenjaminSRussell/seo_audit/internal/config"
	"github.com/BenjaminSRussell/seo_audit/internal/crawler"
	"github.com/BenjaminSRussell/seo_audit/internal/fetcher"
	"github.com/BenjaminSRussell/seo_audit/internal/graph"
	"github.com/BenjaminSRussell/seo_audit/internal/politeness"
	"github.com/BenjaminSRussell/seo_audit/internal/seeding"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// Auditor runs audits for one configuration
type Auditor struct {
	cfg       types.AuditConfig
	seed      types.CanonicalURL
	client    *http.Client
	logger    *zap.Logger
	observers []crawler.Observer

	subMu  sync.Mutex
	subs   map[int]func(types.Progress)
	nextID int
}

// Option configures an Auditor
type Option func(*Auditor)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Auditor) { a.logger = logger }
}

// WithHTTPClient sets the client used for robots.txt, sitemaps and pages.
// Its redirect policy is not modified.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Auditor) { a.client = client }
}

// WithObserver adds a receiver of per-URL crawl transitions
func WithObserver(o crawler.Observer) Option {
	return func(a *Auditor) { a.observers = append(a.observers, o) }
}

// New validates cfg and creates an auditor. Nothing touches the network
// until Run.
func New(cfg types.AuditConfig, opts ...Option) (*Auditor, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	seed, err := canonical.Canonicalize(cfg.SeedURL, "")
	if err != nil {
		return nil, fmt.Errorf("%w: seed_url: %v", config.ErrInvalidConfig, err)
	}

	a := &Auditor{
		cfg:    cfg,
		seed:   seed,
		logger: zap.NewNop(),
		subs:   make(map[int]func(types.Progress)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Seed returns the canonical seed URL
func (a *Auditor) Seed() types.CanonicalURL {
	return a.seed
}

// Subscribe registers fn for progress events and returns a function that
// removes it. fn is called from worker goroutines, one event at a time.
func (a *Auditor) Subscribe(fn func(types.Progress)) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	id := a.nextID
	a.nextID++
	a.subs[id] = fn

	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.subs, id)
	}
}

func (a *Auditor) subscribers() []func(types.Progress) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	fns := make([]func(types.Progress), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	return fns
}

// clientFor gives each component its own copy of the shared client, since
// the fetcher replaces the redirect policy of the client it is handed
func (a *Auditor) clientFor() *http.Client {
	if a.client == nil {
		return &http.Client{Timeout: a.cfg.RequestTimeout}
	}
	c := *a.client
	return &c
}

// Run performs one audit. A cancelled ctx, an expired MaxDuration or an
// exhausted page budget all yield a partial summary and a nil error.
func (a *Auditor) Run(ctx context.Context) (*types.AuditSummary, error) {
	started := time.Now()
	logger := a.logger.With(zap.String("seed", a.seed.String()))

	// MaxDuration bounds discovery and crawl together
	discoverCtx := ctx
	crawlOpts := []crawler.Option{crawler.WithLogger(logger)}
	if a.cfg.MaxDuration > 0 {
		deadline := started.Add(a.cfg.MaxDuration)
		var cancel context.CancelFunc
		discoverCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
		crawlOpts = append(crawlOpts, crawler.WithDeadline(deadline))
	}

	gate := politeness.NewGate(a.cfg,
		politeness.WithClient(a.clientFor()),
		politeness.WithLogger(logger))
	f := fetcher.New(a.cfg,
		fetcher.WithClient(a.clientFor()),
		fetcher.WithLogger(logger))
	discoverer := seeding.NewDiscoverer(a.cfg, gate,
		seeding.WithClient(a.clientFor()),
		seeding.WithLogger(logger))

	g := graph.New(a.seed)
	state := &runState{
		auditor:   a,
		graph:     g,
		observers: a.observers,
		budget:    a.cfg.MaxPages,
	}

	c := crawler.New(a.cfg, a.seed, gate, f,
		analyzer.New(analyzer.WithImages(a.cfg.AnalyzeImages)),
		append(crawlOpts, crawler.WithObserver(state))...)
	state.pending = c.Pending
	c.Seed(a.seed, types.SourceSeed)

	discovered, err := discoverer.Discover(discoverCtx, a.seed)
	if err != nil {
		logger.Warn("sitemap discovery interrupted", zap.Error(err))
	}
	if discovered != nil {
		g.ObserveSitemap(discovered.URLs)
		for _, u := range discovered.URLs {
			c.Seed(u, types.SourceSitemap)
		}
	}

	stats, err := c.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit of %s failed: %w", a.seed, err)
	}

	summary := buildSummary(a.cfg, a.seed, state.results(), g.Check(), stats)
	summary.StartedAt = started
	summary.FinishedAt = time.Now()

	logger.Info("audit finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.String("partial_reason", summary.PartialReason),
		zap.Int("pages", summary.PagesVisited),
		zap.Int("site_issues", len(summary.SiteIssues)),
		zap.Duration("duration", summary.FinishedAt.Sub(started)))

	return summary, nil
}

// runState receives crawler transitions for one run
type runState struct {
	auditor   *Auditor
	graph     *graph.Graph
	observers []crawler.Observer
	budget    int
	pending   func() int

	mu    sync.Mutex
	pages []*types.PageResult

	// publishMu keeps progress events ordered
	publishMu sync.Mutex
}

func (s *runState) PageAnalyzed(result *types.PageResult) {
	s.graph.Observe(result)
	for _, o := range s.observers {
		o.PageAnalyzed(result)
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	s.pages = append(s.pages, result)
	visited := len(s.pages)
	s.mu.Unlock()

	progress := types.Progress{
		PagesVisited:     visited,
		TotalBudget:      s.budget,
		CurrentURL:       result.URL,
		RecentIssueCount: len(result.Issues),
	}
	if s.pending != nil {
		progress.Remaining = s.pending()
	}
	for _, fn := range s.auditor.subscribers() {
		fn(progress)
	}
}

func (s *runState) URLBlocked(u types.CanonicalURL) {
	s.graph.ObserveBlocked(u)
	for _, o := range s.observers {
		o.URLBlocked(u)
	}
}

func (s *runState) URLSkipped(entry types.FrontierEntry, reason crawler.SkipReason) {
	for _, o := range s.observers {
		o.URLSkipped(entry, reason)
	}
}

func (s *runState) results() []*types.PageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.PageResult(nil), s.pages...)
}
