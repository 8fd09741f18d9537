// Package politeness decides whether and when a URL may be requested:
// robots.txt rules per host and a per-host token bucket.
package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BenjaminSRussell/seo_audit/internal/canonical"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

const maxRobotsBytes = 512 << 10

// Gate holds one robots.txt ruleset and one rate limiter per host
type Gate struct {
	client    *http.Client
	userAgent string
	agent     string
	limit     rate.Limit
	logger    *zap.Logger

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	limiter *rate.Limiter

	// mu serializes the robots.txt load; loaded is set once a load ran to
	// completion, successful or not
	mu     sync.Mutex
	loaded bool
	robots *robotstxt.RobotsData
	group  *robotstxt.Group
}

// Option configures a Gate
type Option func(*Gate)

// WithClient replaces the HTTP client used for robots.txt
func WithClient(client *http.Client) Option {
	return func(g *Gate) { g.client = client }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// NewGate creates a gate using the agent, rate and timeout from cfg
func NewGate(cfg types.AuditConfig, opts ...Option) *Gate {
	g := &Gate{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		userAgent: cfg.UserAgent,
		agent:     productToken(cfg.UserAgent),
		limit:     rate.Limit(cfg.RequestsPerSecond),
		logger:    zap.NewNop(),
		hosts:     make(map[string]*hostState),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsAllowed reports whether robots.txt permits u. It never takes a rate
// slot for u itself; the first call for a host fetches robots.txt.
func (g *Gate) IsAllowed(ctx context.Context, u types.CanonicalURL) bool {
	origin := canonical.Origin(u)
	if origin == "" {
		return false
	}

	hs := g.host(origin)
	g.loadRobots(ctx, origin, hs)
	if hs.group == nil {
		return true
	}

	parsed, err := url.Parse(string(u))
	if err != nil {
		return false
	}
	return hs.group.Test(parsed.RequestURI())
}

// WaitForSlot blocks until the host of u may receive another request.
// It returns the context's error only once ctx has actually ended.
func (g *Gate) WaitForSlot(ctx context.Context, u types.CanonicalURL) error {
	origin := canonical.Origin(u)
	if origin == "" {
		return fmt.Errorf("no host in %q", u)
	}
	return wait(ctx, g.host(origin).limiter)
}

// wait takes a reservation and sleeps until it matures. Unlike
// rate.Limiter.Wait it does not fail early when the delay runs past the
// context deadline.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate limit burst exceeded")
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sitemaps returns the Sitemap: directives from the robots.txt of origin
func (g *Gate) Sitemaps(ctx context.Context, origin string) []string {
	hs := g.host(origin)
	g.loadRobots(ctx, origin, hs)
	if hs.robots == nil {
		return nil
	}
	return hs.robots.Sitemaps
}

// Interval returns the minimum spacing currently enforced for origin
func (g *Gate) Interval(origin string) time.Duration {
	limit := g.host(origin).limiter.Limit()
	if limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

func (g *Gate) host(origin string) *hostState {
	g.mu.Lock()
	defer g.mu.Unlock()

	hs, ok := g.hosts[origin]
	if !ok {
		hs = &hostState{limiter: rate.NewLimiter(g.limit, 1)}
		g.hosts[origin] = hs
	}
	return hs
}

// loadRobots fetches robots.txt for origin once. A load cut short by the
// caller's context is not remembered, so the next caller tries again.
func (g *Gate) loadRobots(ctx context.Context, origin string, hs *hostState) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.loaded {
		return
	}

	robots, err := g.fetchRobots(ctx, origin, hs)
	if err != nil {
		if ctx.Err() != nil {
			g.logger.Debug("robots.txt load interrupted",
				zap.String("host", origin),
				zap.Error(err))
			return
		}
		hs.loaded = true
		g.logger.Warn("robots.txt unavailable, allowing all",
			zap.String("host", origin),
			zap.Error(err))
		return
	}
	hs.loaded = true

	hs.robots = robots
	hs.group = robots.FindGroup(g.agent)

	if hs.group != nil && hs.group.CrawlDelay > 0 {
		delayLimit := rate.Every(hs.group.CrawlDelay)
		if delayLimit < hs.limiter.Limit() {
			hs.limiter.SetLimit(delayLimit)
			g.logger.Info("applying robots.txt crawl-delay",
				zap.String("host", origin),
				zap.Duration("delay", hs.group.CrawlDelay))
		}
	}
}

func (g *Gate) fetchRobots(ctx context.Context, origin string, hs *hostState) (*robotstxt.RobotsData, error) {
	if err := wait(ctx, hs.limiter); err != nil {
		return nil, fmt.Errorf("waiting for slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	return robots, nil
}

// productToken extracts "SEOAuditBot" from "SEOAuditBot/1.0 (+https://...)"
func productToken(userAgent string) string {
	token := strings.TrimSpace(userAgent)
	if i := strings.IndexAny(token, "/ "); i > 0 {
		token = token[:i]
	}
	return token
}
