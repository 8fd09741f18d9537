// Package metrics exposes audit progress as Prometheus collectors on a
// private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BenjaminSRussell/seo_audit/internal/crawler"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

const namespace = "seoaudit"

// Collector records crawl transitions. It satisfies crawler.Observer and
// its Progress method can be handed to audit.Auditor.Subscribe.
type Collector struct {
	registry *prometheus.Registry

	pages         *prometheus.CounterVec
	issues        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	blocked       prometheus.Counter
	fetchDuration prometheus.Histogram
	queue         prometheus.Gauge
	visited       prometheus.Gauge
}

var _ crawler.Observer = (*Collector)(nil)

// New creates a collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Analyzed pages by HTTP status class.",
		}, []string{"status_class"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Page issues by severity.",
		}, []string{"severity"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_skipped_total",
			Help:      "Queued URLs that were never fetched, by reason.",
		}, []string{"reason"}),
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_blocked_total",
			Help:      "URLs disallowed by robots.txt.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Response time of analyzed pages.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
		}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "urls_in_queue",
			Help:      "URLs waiting in the frontier.",
		}),
		visited: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pages_visited",
			Help:      "Pages analyzed so far in the current run.",
		}),
	}

	c.registry.MustRegister(c.pages, c.issues, c.skipped, c.blocked, c.fetchDuration, c.queue, c.visited)
	return c
}

// StatusClass buckets a status code; 0 means the fetch failed
func StatusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

func (c *Collector) PageAnalyzed(result *types.PageResult) {
	c.pages.WithLabelValues(StatusClass(result.StatusCode)).Inc()
	for _, issue := range result.Issues {
		c.issues.WithLabelValues(issue.Severity.String()).Inc()
	}
	if result.ResponseTime > 0 {
		c.fetchDuration.Observe(result.ResponseTime.Seconds())
	}
}

func (c *Collector) URLBlocked(types.CanonicalURL) {
	c.blocked.Inc()
}

func (c *Collector) URLSkipped(_ types.FrontierEntry, reason crawler.SkipReason) {
	c.skipped.WithLabelValues(string(reason)).Inc()
}

// Progress updates the queue and visited gauges
func (c *Collector) Progress(p types.Progress) {
	c.queue.Set(float64(p.Remaining))
	c.visited.Set(float64(p.PagesVisited))
}

// Handler serves /metrics and /healthz
func (c *Collector) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// NewServer returns an http.Server exposing Handler on addr
func (c *Collector) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
