// Package storage dumps an audit summary into a queryable SQLite database.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	seed_url TEXT NOT NULL,
	started_at TEXT,
	finished_at TEXT,
	status TEXT NOT NULL,
	partial_reason TEXT,
	pages_visited INTEGER,
	pages_with_issues INTEGER,
	avg_response_ms INTEGER
);

CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT UNIQUE NOT NULL,
	final_url TEXT,
	seq INTEGER NOT NULL,
	depth INTEGER NOT NULL,
	status_code INTEGER,
	response_ms INTEGER,
	html_size INTEGER,
	title TEXT,
	meta_description TEXT,
	canonical TEXT,
	word_count INTEGER,
	noindex INTEGER,
	redirect_hops INTEGER,
	crawled_at TEXT,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_status_code ON pages(status_code);
CREATE INDEX IF NOT EXISTS idx_depth ON pages(depth);

CREATE TABLE IF NOT EXISTS issues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT,
	code TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT,
	site_level INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_issue_url ON issues(url);
CREATE INDEX IF NOT EXISTS idx_issue_code ON issues(code);

CREATE TABLE IF NOT EXISTS links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_url TEXT NOT NULL,
	target_url TEXT NOT NULL,
	internal INTEGER NOT NULL,
	FOREIGN KEY (source_url) REFERENCES pages(url)
);

CREATE INDEX IF NOT EXISTS idx_source_url ON links(source_url);
CREATE INDEX IF NOT EXISTS idx_target_url ON links(target_url);

CREATE TABLE IF NOT EXISTS structured_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	type TEXT NOT NULL,
	FOREIGN KEY (url) REFERENCES pages(url)
);
`

// SQLiteStorage holds one exported summary
type SQLiteStorage struct {
	db *sql.DB
}

// Create replaces any database at dbPath with an empty one
func Create(dbPath string) (*SQLiteStorage, error) {
	if err := os.Remove(dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove previous export: %w", err)
	}
	return Open(dbPath)
}

// Open opens dbPath, creating the schema if needed
func Open(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveSummary writes the run, its pages, issues and links in one transaction
func (s *SQLiteStorage) SaveSummary(summary *types.AuditSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO runs
		(run_id, seed_url, started_at, finished_at, status, partial_reason, pages_visited, pages_with_issues, avg_response_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.SeedURL.String(),
		formatTime(summary.StartedAt),
		formatTime(summary.FinishedAt),
		string(summary.Status),
		summary.PartialReason,
		summary.PagesVisited,
		summary.PagesWithIssues,
		summary.AvgResponseTime.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	pageStmt, err := tx.Prepare(`INSERT OR REPLACE INTO pages
		(url, final_url, seq, depth, status_code, response_ms, html_size, title, meta_description,
		 canonical, word_count, noindex, redirect_hops, crawled_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer pageStmt.Close()

	issueStmt, err := tx.Prepare("INSERT INTO issues (url, code, severity, message, site_level) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer issueStmt.Close()

	linkStmt, err := tx.Prepare("INSERT INTO links (source_url, target_url, internal) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer linkStmt.Close()

	typeStmt, err := tx.Prepare("INSERT INTO structured_data (url, type) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer typeStmt.Close()

	for _, page := range summary.Pages {
		url := page.URL.String()
		_, err := pageStmt.Exec(
			url,
			page.FinalURL.String(),
			page.Seq,
			page.Depth,
			page.StatusCode,
			page.ResponseTime.Milliseconds(),
			page.HTMLSize,
			page.Title,
			page.MetaDescription,
			page.Canonical.String(),
			page.WordCount,
			boolInt(page.Robots.NoIndex),
			page.RedirectChain.Len(),
			formatTime(page.CrawledAt),
			page.FetchError,
		)
		if err != nil {
			return fmt.Errorf("failed to save page %s: %w", url, err)
		}

		for _, issue := range page.Issues {
			if _, err := issueStmt.Exec(url, issue.Code, issue.Severity.String(), issue.Message, 0); err != nil {
				return fmt.Errorf("failed to save issue: %w", err)
			}
		}
		for _, link := range page.InternalLinks {
			if _, err := linkStmt.Exec(url, link.String(), 1); err != nil {
				return fmt.Errorf("failed to save link: %w", err)
			}
		}
		for _, link := range page.ExternalLinks {
			if _, err := linkStmt.Exec(url, link, 0); err != nil {
				return fmt.Errorf("failed to save link: %w", err)
			}
		}
		for _, t := range page.JSONLDTypes {
			if _, err := typeStmt.Exec(url, t); err != nil {
				return fmt.Errorf("failed to save structured data: %w", err)
			}
		}
	}

	for _, issue := range summary.SiteIssues {
		if _, err := issueStmt.Exec(issue.URL.String(), issue.Code, issue.Severity.String(), issue.Message, 1); err != nil {
			return fmt.Errorf("failed to save site issue: %w", err)
		}
	}

	return tx.Commit()
}

// PageFilter narrows QueryPages; zero values match everything
type PageFilter struct {
	StatusCode int
	MaxDepth   *int
	IssueCode  string
}

// QueryPages returns stored pages ordered by dispatch sequence
func (s *SQLiteStorage) QueryPages(filter PageFilter) ([]types.PageResult, error) {
	var where []string
	args := make([]interface{}, 0)

	if filter.StatusCode != 0 {
		where = append(where, "status_code = ?")
		args = append(args, filter.StatusCode)
	}
	if filter.MaxDepth != nil {
		where = append(where, "depth <= ?")
		args = append(args, *filter.MaxDepth)
	}
	if filter.IssueCode != "" {
		where = append(where, "url IN (SELECT url FROM issues WHERE code = ? AND site_level = 0)")
		args = append(args, filter.IssueCode)
	}

	query := "SELECT url, final_url, seq, depth, status_code, response_ms, title, crawled_at, error FROM pages"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	results := make([]types.PageResult, 0)
	for rows.Next() {
		var result types.PageResult
		var url, finalURL, crawledAt string
		var responseMS int64
		if err := rows.Scan(
			&url,
			&finalURL,
			&result.Seq,
			&result.Depth,
			&result.StatusCode,
			&responseMS,
			&result.Title,
			&crawledAt,
			&result.FetchError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		result.URL = types.CanonicalURL(url)
		result.FinalURL = types.CanonicalURL(finalURL)
		result.ResponseTime = time.Duration(responseMS) * time.Millisecond
		result.CrawledAt, _ = time.Parse(time.RFC3339Nano, crawledAt)
		results = append(results, result)
	}

	return results, rows.Err()
}

// Stats are aggregate counts over the stored pages
type Stats struct {
	TotalPages      int
	SuccessfulPages int
	FailedPages     int
	Issues          int
	SiteIssues      int
}

// GetStats returns aggregate counts
func (s *SQLiteStorage) GetStats() (Stats, error) {
	var stats Stats

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM pages", &stats.TotalPages},
		{"SELECT COUNT(*) FROM pages WHERE status_code = 200", &stats.SuccessfulPages},
		{"SELECT COUNT(*) FROM pages WHERE status_code >= 400 OR status_code = 0 OR error != ''", &stats.FailedPages},
		{"SELECT COUNT(*) FROM issues WHERE site_level = 0", &stats.Issues},
		{"SELECT COUNT(*) FROM issues WHERE site_level = 1", &stats.SiteIssues},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.sql).Scan(q.dest); err != nil {
			return stats, fmt.Errorf("failed to compute stats: %w", err)
		}
	}

	return stats, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
