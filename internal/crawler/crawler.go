// Package crawler schedules the breadth-first walk of one site: the
// frontier and the worker pool that gates, fetches and analyzes each URL.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BenjaminSRussell/seo_audit/internal/canonical"
	"github.com/BenjaminSRussell/seo_audit/internal/fetcher"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// Gate decides whether and when a URL may be requested
type Gate interface {
	IsAllowed(ctx context.Context, u types.CanonicalURL) bool
	WaitForSlot(ctx context.Context, u types.CanonicalURL) error
}

// Fetcher performs one fetch, consulting hop before each redirect
type Fetcher interface {
	Fetch(ctx context.Context, u types.CanonicalURL, hop fetcher.HopFunc) *fetcher.Outcome
}

// Analyzer turns an outcome into a page result
type Analyzer interface {
	Analyze(out *fetcher.Outcome) *types.PageResult
}

// SkipReason explains why a dequeued entry was never fetched
type SkipReason string

const (
	SkipBudget    SkipReason = "budget"
	SkipTimeout   SkipReason = "timeout"
	SkipCancelled SkipReason = "cancelled"
)

// Observer receives every terminal URL transition. Calls arrive from
// worker goroutines concurrently.
type Observer interface {
	PageAnalyzed(result *types.PageResult)
	URLBlocked(u types.CanonicalURL)
	URLSkipped(entry types.FrontierEntry, reason SkipReason)
}

type nopObserver struct{}

func (nopObserver) PageAnalyzed(*types.PageResult)             {}
func (nopObserver) URLBlocked(types.CanonicalURL)              {}
func (nopObserver) URLSkipped(types.FrontierEntry, SkipReason) {}

// Stats summarizes a finished crawl
type Stats struct {
	Analyzed      int
	Blocked       int
	SkippedBudget int
	SkippedDepth  int
	// Unfetched counts claimed URLs left without a terminal state
	Unfetched     int
	Panics        int
	TimedOut      bool
	Cancelled     bool
	Duration      time.Duration
	// States tallies claimed URLs by lifecycle state
	States        map[string]int
}

// BudgetExhausted reports whether work was left when the page budget ran out
func (s Stats) BudgetExhausted() bool {
	return s.SkippedBudget > 0
}

// Crawler drives the frontier with a bounded pool of workers
type Crawler struct {
	cfg      types.AuditConfig
	seed     types.CanonicalURL
	frontier *Frontier
	gate     Gate
	fetcher  Fetcher
	analyzer Analyzer
	observer Observer
	logger   *zap.Logger
	deadline time.Time

	// site is the URL whose host bounds the crawl; it starts as seed and
	// follows a completed cross-host redirect of the seed itself
	siteMu sync.RWMutex
	site   types.CanonicalURL

	analyzed      atomic.Int64
	blocked       atomic.Int64
	skippedBudget atomic.Int64
	panics        atomic.Int64
	timedOut      atomic.Bool
}

// Option configures a Crawler
type Option func(*Crawler)

// WithObserver registers the receiver of URL transitions
func WithObserver(o Observer) Option {
	return func(c *Crawler) { c.observer = o }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) { c.logger = logger }
}

// WithDeadline stops dispatching at t instead of MaxDuration after Run
// starts, so time already spent elsewhere in the audit counts
func WithDeadline(t time.Time) Option {
	return func(c *Crawler) { c.deadline = t }
}

// New creates a crawler for the site rooted at seed
func New(cfg types.AuditConfig, seed types.CanonicalURL, gate Gate, f Fetcher, a Analyzer, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:      cfg,
		seed:     seed,
		site:     seed,
		frontier: NewFrontier(cfg.MaxPages),
		gate:     gate,
		fetcher:  f,
		analyzer: a,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seed queues a depth-0 URL. Off-host URLs and duplicates are ignored.
func (c *Crawler) Seed(u types.CanonicalURL, source types.Source) bool {
	if !canonical.SameHost(u, c.Site()) {
		return false
	}
	return c.frontier.Push(types.FrontierEntry{URL: u, Depth: 0, Source: source})
}

// Site returns the URL whose host the crawl is confined to
func (c *Crawler) Site() types.CanonicalURL {
	c.siteMu.RLock()
	defer c.siteMu.RUnlock()
	return c.site
}

// followSeedRedirect moves the crawl to the host the seed redirected to,
// as with an apex domain answering 301 to its www host
func (c *Crawler) followSeedRedirect(entry types.FrontierEntry, result *types.PageResult) {
	if entry.URL != c.seed || result.FinalURL == "" || result.RedirectChain.StopReason != "" {
		return
	}
	if canonical.SameHost(result.FinalURL, c.seed) {
		return
	}

	c.siteMu.Lock()
	c.site = result.FinalURL
	c.siteMu.Unlock()

	c.logger.Info("seed redirected to another host, following it",
		zap.String("seed", c.seed.String()),
		zap.String("site", result.FinalURL.String()))
}

// Pending returns the number of queued URLs
func (c *Crawler) Pending() int {
	return c.frontier.Pending()
}

// Run crawls until the frontier is exhausted, the budget is spent, the
// MaxDuration elapses or ctx is cancelled. MaxDuration only stops new
// dispatches; requests already in flight finish under their own timeout.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	start := time.Now()

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	switch {
	case !c.deadline.IsZero():
		dispatchCtx, cancelDispatch = context.WithDeadline(ctx, c.deadline)
	case c.cfg.MaxDuration > 0:
		dispatchCtx, cancelDispatch = context.WithTimeout(ctx, c.cfg.MaxDuration)
	}
	defer cancelDispatch()

	workers := c.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	c.logger.Info("starting crawl",
		zap.String("seed", c.seed.String()),
		zap.Int("workers", workers),
		zap.Int("queued", c.frontier.Pending()))

	g, fetchCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return c.work(fetchCtx, dispatchCtx)
		})
	}
	err := g.Wait()

	stats := Stats{
		Analyzed:      int(c.analyzed.Load()),
		Blocked:       int(c.blocked.Load()),
		SkippedBudget: int(c.skippedBudget.Load()),
		SkippedDepth:  c.frontier.TooDeep(),
		Panics:        int(c.panics.Load()),
		Cancelled:     ctx.Err() != nil,
		Duration:      time.Since(start),
	}
	stats.TimedOut = !stats.Cancelled &&
		(c.timedOut.Load() || errors.Is(dispatchCtx.Err(), context.DeadlineExceeded))

	reason := SkipBudget
	switch {
	case stats.Cancelled:
		reason = SkipCancelled
	case stats.TimedOut:
		reason = SkipTimeout
	}
	for _, entry := range c.frontier.Drain() {
		if reason == SkipBudget {
			stats.SkippedBudget++
			c.frontier.Mark(entry.URL, types.StateSkippedByBudget)
		}
		c.observer.URLSkipped(entry, reason)
	}
	stats.Unfetched = c.frontier.Unsettled()
	stats.States = c.frontier.StateCounts()

	c.logger.Info("crawl finished",
		zap.Int("analyzed", stats.Analyzed),
		zap.Int("blocked", stats.Blocked),
		zap.Int("skipped_budget", stats.SkippedBudget),
		zap.Int("skipped_depth", stats.SkippedDepth),
		zap.Int("unfetched", stats.Unfetched),
		zap.Bool("budget_spent", c.frontier.BudgetSpent()),
		zap.Bool("timed_out", stats.TimedOut),
		zap.Bool("cancelled", stats.Cancelled),
		zap.Duration("duration", stats.Duration))

	if err != nil {
		return stats, fmt.Errorf("crawl worker failed: %w", err)
	}
	return stats, nil
}

func (c *Crawler) work(fetchCtx, dispatchCtx context.Context) error {
	for {
		entry, ok := c.frontier.Next(dispatchCtx)
		if !ok {
			return nil
		}
		c.processSafely(fetchCtx, dispatchCtx, entry)
		c.frontier.Done()
	}
}

// process runs gate, fetch and analyze for one entry
func (c *Crawler) process(fetchCtx, dispatchCtx context.Context, entry *types.FrontierEntry, reserved *bool) {
	if !c.gate.IsAllowed(fetchCtx, entry.URL) {
		c.blocked.Add(1)
		c.logger.Debug("blocked by robots.txt", zap.String("url", entry.URL.String()))
		c.frontier.Mark(entry.URL, types.StateSkippedByRobots)
		c.observer.URLBlocked(entry.URL)
		return
	}

	if !c.frontier.Reserve(entry) {
		c.skippedBudget.Add(1)
		c.frontier.Mark(entry.URL, types.StateSkippedByBudget)
		c.observer.URLSkipped(*entry, SkipBudget)
		return
	}
	*reserved = true
	c.frontier.Mark(entry.URL, types.StateGated)

	if err := c.gate.WaitForSlot(dispatchCtx, entry.URL); err != nil {
		c.observer.URLSkipped(*entry, c.stopReason(fetchCtx, dispatchCtx))
		return
	}

	var hops []types.CanonicalURL
	outcome := c.fetcher.Fetch(fetchCtx, entry.URL, c.hopFunc(dispatchCtx, &hops))
	c.frontier.Mark(entry.URL, types.StateFetched)

	result := c.analyzer.Analyze(outcome)
	result.Depth = entry.Depth
	result.Seq = entry.Seq

	c.followSeedRedirect(*entry, result)
	c.enqueueLinks(result, *entry)

	c.analyzed.Add(1)
	c.logger.Debug("page analyzed",
		zap.String("url", result.URL.String()),
		zap.Int("status", result.StatusCode),
		zap.Int("issues", len(result.Issues)))
	c.observer.PageAnalyzed(result)

	c.frontier.Mark(entry.URL, types.StateAnalyzed)
	for _, u := range hops {
		c.frontier.Mark(u, types.StateAnalyzed)
	}
}

// stopReason classifies a failed dispatch wait and records a timeout
func (c *Crawler) stopReason(fetchCtx, dispatchCtx context.Context) SkipReason {
	if fetchCtx.Err() != nil {
		return SkipCancelled
	}
	if errors.Is(dispatchCtx.Err(), context.DeadlineExceeded) {
		c.timedOut.Store(true)
	}
	return SkipTimeout
}

func (c *Crawler) enqueueLinks(result *types.PageResult, parent types.FrontierEntry) {
	site := c.Site()
	if !canonical.SameHost(result.FinalURL, site) {
		return
	}

	depth := parent.Depth + 1
	for _, link := range result.InternalLinks {
		if !canonical.SameHost(link, site) {
			continue
		}
		if depth > c.cfg.MaxDepth {
			c.frontier.SkipTooDeep(link)
			continue
		}
		c.frontier.Push(types.FrontierEntry{
			URL:    link,
			Depth:  depth,
			Parent: parent.URL,
			Source: types.SourceLink,
		})
	}
}

// hopFunc applies the visited set, robots.txt and the rate limit to every
// redirect target before it is requested. Targets cleared for a request
// are appended to requested.
func (c *Crawler) hopFunc(dispatchCtx context.Context, requested *[]types.CanonicalURL) fetcher.HopFunc {
	return func(ctx context.Context, from, to types.CanonicalURL) error {
		if !c.frontier.Claim(to) {
			return fmt.Errorf("%w: %s already visited", fetcher.ErrStopRedirect, to)
		}
		if !c.gate.IsAllowed(ctx, to) {
			c.frontier.Mark(to, types.StateSkippedByRobots)
			c.observer.URLBlocked(to)
			return fmt.Errorf("%w: %s disallowed by robots.txt", fetcher.ErrStopRedirect, to)
		}
		if err := c.gate.WaitForSlot(dispatchCtx, to); err != nil {
			c.stopReason(ctx, dispatchCtx)
			return fmt.Errorf("%w: %v", fetcher.ErrStopRedirect, err)
		}
		c.frontier.Mark(to, types.StateGated)
		*requested = append(*requested, to)
		return nil
	}
}
