package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/seo_audit/internal/config"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "seoaudit version")
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "audit")
	assert.Contains(t, out, "export")
}

func TestAuditCommandRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "audit", "--seed", "https://example.com/", "--max-pages", "0", "--output", t.TempDir())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = execute(t, "audit", "--output", t.TempDir())
	assert.ErrorIs(t, err, config.ErrInvalidConfig, "seed is required")
}

func TestAuditCommandRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "audit", "--seed", "https://example.com/", "--format", "pdf")
	assert.ErrorContains(t, err, "unknown export format")
}

func TestAuditCommandWritesReports(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>A single page site</title></head><body><h1>Hello</h1></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	out, err := execute(t, "audit",
		"--seed", srv.URL+"/",
		"--rps", "100",
		"--quiet",
		"--format", "json,csv",
		"--output", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Pages visited: 1")

	data, err := os.ReadFile(filepath.Join(dir, "audit.json"))
	require.NoError(t, err)
	var summary types.AuditSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 1, summary.PagesVisited)
	assert.Equal(t, types.StatusCompleted, summary.Status)

	_, err = os.Stat(filepath.Join(dir, "pages.csv"))
	assert.NoError(t, err)
}

func TestAuditCommandReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed_url: https://example.com/\nmax_pages: 0\n"), 0644))

	_, err := execute(t, "audit", "--config", path, "--output", dir)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	summary := types.AuditSummary{
		RunID:   "run-1",
		SeedURL: "https://example.com/",
		Status:  types.StatusCompleted,
		Pages: []types.PageResult{
			{URL: "https://example.com/", FinalURL: "https://example.com/", StatusCode: 200},
		},
	}
	data, err := json.Marshal(summary)
	require.NoError(t, err)
	input := filepath.Join(dir, "audit.json")
	require.NoError(t, os.WriteFile(input, data, 0644))

	out, err := execute(t, "export", "--input", input, "--format", "sitemap,yaml", "--output", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "sitemap.xml")

	sitemap, err := os.ReadFile(filepath.Join(dir, "sitemap.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(sitemap), "<loc>https://example.com/</loc>")

	_, err = os.Stat(filepath.Join(dir, "audit.yaml"))
	assert.NoError(t, err)
}

func TestExportCommandMissingInput(t *testing.T) {
	_, err := execute(t, "export", "--input", filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "failed to read report")
}

func TestQueryCommand(t *testing.T) {
	dir := t.TempDir()
	summary := types.AuditSummary{
		RunID:   "run-2",
		SeedURL: "https://example.com/",
		Status:  types.StatusCompleted,
		Pages: []types.PageResult{
			{URL: "https://example.com/", FinalURL: "https://example.com/", StatusCode: 200, Seq: 0},
			{
				URL: "https://example.com/gone", FinalURL: "https://example.com/gone", StatusCode: 404, Seq: 1, Depth: 1,
				Issues: []types.Issue{{Code: "http_error", Severity: types.SeverityError, URL: "https://example.com/gone"}},
			},
		},
	}
	data, err := json.Marshal(summary)
	require.NoError(t, err)
	input := filepath.Join(dir, "audit.json")
	require.NoError(t, os.WriteFile(input, data, 0644))

	_, err = execute(t, "export", "--input", input, "--format", "sqlite", "--output", dir)
	require.NoError(t, err)
	db := filepath.Join(dir, "audit.db")

	out, err := execute(t, "query", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Pages: 2 (ok 1, failed 1)")
	assert.Contains(t, out, "https://example.com/gone")

	out, err = execute(t, "query", "--db", db, "--status", "200")
	require.NoError(t, err)
	assert.NotContains(t, out, "https://example.com/gone")

	out, err = execute(t, "query", "--db", db, "--issue", "http_error")
	require.NoError(t, err)
	assert.Contains(t, out, "https://example.com/gone")
	assert.NotContains(t, out, "depth 0")
}

func TestQueryCommandMissingDatabase(t *testing.T) {
	_, err := execute(t, "query", "--db", filepath.Join(t.TempDir(), "none.db"))
	assert.ErrorContains(t, err, "failed to open audit database")
}
