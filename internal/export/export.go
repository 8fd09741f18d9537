// Package export writes an audit summary to files in the supported report
// formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BenjaminSRussell/seo_audit/internal/storage"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// Format names a report format
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatYAML    Format = "yaml"
	FormatSitemap Format = "sitemap"
	FormatSQLite  Format = "sqlite"
)

// Formats lists every supported format
var Formats = []Format{FormatJSON, FormatCSV, FormatYAML, FormatSitemap, FormatSQLite}

var fileNames = map[Format]string{
	FormatJSON:    "audit.json",
	FormatCSV:     "pages.csv",
	FormatYAML:    "audit.yaml",
	FormatSitemap: "sitemap.xml",
	FormatSQLite:  "audit.db",
}

// ParseFormats splits a comma separated list such as "json,csv"
func ParseFormats(list string) ([]Format, error) {
	var formats []Format
	seen := make(map[Format]bool)
	for _, part := range strings.Split(list, ",") {
		f := Format(strings.ToLower(strings.TrimSpace(part)))
		if f == "" || seen[f] {
			continue
		}
		if _, ok := fileNames[f]; !ok {
			return nil, fmt.Errorf("unknown export format %q", part)
		}
		seen[f] = true
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no export format given")
	}
	return formats, nil
}

type Exporter struct {
	outputDir string
}

func NewExporter(outputDir string) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Exporter{
		outputDir: outputDir,
	}, nil
}

// Export writes summary in each format and returns the written paths in
// the same order
func (e *Exporter) Export(summary *types.AuditSummary, formats []Format) ([]string, error) {
	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		name, ok := fileNames[f]
		if !ok {
			return paths, fmt.Errorf("unknown export format %q", f)
		}
		path := filepath.Join(e.outputDir, name)

		var err error
		switch f {
		case FormatJSON:
			err = e.ExportJSON(summary, path)
		case FormatCSV:
			err = e.ExportCSV(summary, path)
		case FormatYAML:
			err = e.ExportYAML(summary, path)
		case FormatSitemap:
			_, err = e.ExportSitemap(summary, path)
		case FormatSQLite:
			err = e.ExportSQLite(summary, path)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (e *Exporter) ExportJSON(summary *types.AuditSummary, outputFile string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}

	return nil
}

func (e *Exporter) ExportYAML(summary *types.AuditSummary, outputFile string) error {
	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create YAML file: %w", err)
	}
	defer file.Close()

	enc := yaml.NewEncoder(file)
	enc.SetIndent(2)
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush YAML: %w", err)
	}
	return nil
}

var csvHeaders = []string{
	"url", "final_url", "depth", "status_code", "response_time_ms", "html_size", "compressed",
	"title", "meta_description", "h1_count", "word_count", "internal_links", "external_links",
	"images_missing_alt", "redirect_hops", "canonical", "noindex", "issue_count", "issues", "fetch_error",
}

// ExportCSV writes one row per page
func (e *Exporter) ExportCSV(summary *types.AuditSummary, outputFile string) error {
	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, page := range summary.Pages {
		codes := make([]string, 0, len(page.Issues))
		for _, issue := range page.Issues {
			codes = append(codes, issue.Code)
		}

		record := []string{
			page.URL.String(),
			page.FinalURL.String(),
			strconv.Itoa(page.Depth),
			strconv.Itoa(page.StatusCode),
			strconv.FormatInt(page.ResponseTime.Milliseconds(), 10),
			strconv.FormatInt(page.HTMLSize, 10),
			strconv.FormatBool(page.Compressed),
			page.Title,
			page.MetaDescription,
			strconv.Itoa(len(page.H1)),
			strconv.Itoa(page.WordCount),
			strconv.Itoa(len(page.InternalLinks)),
			strconv.Itoa(len(page.ExternalLinks)),
			strconv.Itoa(page.ImagesMissingAlt),
			strconv.Itoa(page.RedirectChain.Len()),
			page.Canonical.String(),
			strconv.FormatBool(page.Robots.NoIndex),
			strconv.Itoa(len(page.Issues)),
			strings.Join(codes, ";"),
			page.FetchError,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ExportSQLite replaces outputFile with a database holding summary
func (e *Exporter) ExportSQLite(summary *types.AuditSummary, outputFile string) error {
	store, err := storage.Create(outputFile)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveSummary(summary); err != nil {
		return fmt.Errorf("failed to write SQLite export: %w", err)
	}
	return nil
}

func lastmod(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
