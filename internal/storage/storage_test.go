package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

func sampleSummary() *types.AuditSummary {
	crawled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &types.AuditSummary{
		RunID:        "run-1",
		SeedURL:      "https://example.com/",
		Status:       types.StatusCompleted,
		PagesVisited: 2,
		Pages: []types.PageResult{
			{
				URL:           "https://example.com/",
				FinalURL:      "https://example.com/",
				Seq:           0,
				StatusCode:    200,
				ResponseTime:  150 * time.Millisecond,
				Title:         "Home",
				InternalLinks: []types.CanonicalURL{"https://example.com/missing"},
				ExternalLinks: []string{"https://other.example.org/"},
				JSONLDTypes:   []string{"Organization"},
				CrawledAt:     crawled,
				Issues: []types.Issue{
					{Code: "missing_meta_description", Severity: types.SeverityWarning},
				},
			},
			{
				URL:        "https://example.com/missing",
				FinalURL:   "https://example.com/missing",
				Seq:        1,
				Depth:      1,
				StatusCode: 404,
				CrawledAt:  crawled,
				Issues: []types.Issue{
					{Code: "http_error", Severity: types.SeverityError},
				},
			},
		},
		SiteIssues: []types.Issue{
			{Code: "orphan_page", Severity: types.SeverityWarning, URL: "https://example.com/lost"},
		},
	}
}

func TestSQLiteSaveAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := Create(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveSummary(sampleSummary()))

	pages, err := store.QueryPages(PageFilter{})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, types.CanonicalURL("https://example.com/"), pages[0].URL)
	assert.Equal(t, 150*time.Millisecond, pages[0].ResponseTime)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), pages[0].CrawledAt)

	broken, err := store.QueryPages(PageFilter{StatusCode: 404})
	require.NoError(t, err)
	require.Len(t, broken, 1)
	assert.Equal(t, 1, broken[0].Depth)

	shallow := 0
	top, err := store.QueryPages(PageFilter{MaxDepth: &shallow})
	require.NoError(t, err)
	assert.Len(t, top, 1)

	withIssue, err := store.QueryPages(PageFilter{IssueCode: "missing_meta_description"})
	require.NoError(t, err)
	require.Len(t, withIssue, 1)
	assert.Equal(t, "Home", withIssue[0].Title)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalPages: 2, SuccessfulPages: 1, FailedPages: 1, Issues: 2, SiteIssues: 1}, stats)
}

func TestSQLiteCreateOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveSummary(sampleSummary()))
	require.NoError(t, store.Close())

	store, err = Create(path)
	require.NoError(t, err)
	defer store.Close()

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPages)
}

func TestSQLiteOpenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveSummary(sampleSummary()))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	pages, err := store.QueryPages(PageFilter{})
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}
