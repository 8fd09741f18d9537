package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/seo_audit/internal/crawler"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "error", StatusClass(0))
	assert.Equal(t, "2xx", StatusClass(200))
	assert.Equal(t, "3xx", StatusClass(301))
	assert.Equal(t, "5xx", StatusClass(503))
}

func TestCollectorRecordsTransitions(t *testing.T) {
	c := New()
	c.PageAnalyzed(&types.PageResult{
		StatusCode:   200,
		ResponseTime: 120 * time.Millisecond,
		Issues: []types.Issue{
			{Code: "missing_h1", Severity: types.SeverityError},
			{Code: "title_too_long", Severity: types.SeverityWarning},
		},
	})
	c.PageAnalyzed(&types.PageResult{StatusCode: 404})
	c.URLBlocked("https://example.com/private")
	c.URLSkipped(types.FrontierEntry{}, crawler.SkipBudget)
	c.Progress(types.Progress{PagesVisited: 2, Remaining: 7})

	body := scrape(t, c)
	assert.Contains(t, body, `seoaudit_pages_total{status_class="2xx"} 1`)
	assert.Contains(t, body, `seoaudit_pages_total{status_class="4xx"} 1`)
	assert.Contains(t, body, `seoaudit_issues_total{severity="error"} 1`)
	assert.Contains(t, body, `seoaudit_issues_total{severity="warning"} 1`)
	assert.Contains(t, body, `seoaudit_urls_blocked_total 1`)
	assert.Contains(t, body, `seoaudit_urls_skipped_total{reason="budget"} 1`)
	assert.Contains(t, body, `seoaudit_urls_in_queue 7`)
	assert.Contains(t, body, `seoaudit_pages_visited 2`)
	assert.Contains(t, body, `seoaudit_fetch_duration_seconds_count 1`)
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCollectorsArePrivate(t *testing.T) {
	a, b := New(), New()
	a.URLBlocked("https://example.com/x")

	assert.Contains(t, scrape(t, a), "seoaudit_urls_blocked_total 1")
	assert.Contains(t, scrape(t, b), "seoaudit_urls_blocked_total 0")
}
