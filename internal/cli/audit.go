package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/seo_audit/internal/audit"
	"github.com/BenjaminSRussell/seo_audit/internal/config"
	"github.com/BenjaminSRussell/seo_audit/internal/export"
	"github.com/BenjaminSRussell/seo_audit/internal/metrics"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// flagKeys maps flag names to config keys
var flagKeys = map[string]string{
	"config":           "config",
	"seed":             "seed_url",
	"max-pages":        "max_pages",
	"max-depth":        "max_depth",
	"rps":              "requests_per_second",
	"timeout":          "request_timeout",
	"user-agent":       "user_agent",
	"follow-redirects": "follow_redirects",
	"analyze-images":   "analyze_images",
	"workers":          "workers",
	"max-redirects":    "max_redirects",
	"max-duration":     "max_duration",
	"max-body-bytes":   "max_body_bytes",
	"top-issues":       "top_issues",
}

func newAuditCmd() *cobra.Command {
	v := viper.New()
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit a site starting from a seed URL",
		Long: `Crawl the site behind --seed breadth first and write the audit report.

Every flag can also be set in a YAML config file (--config) or through
SEOAUDIT_-prefixed environment variables, e.g. SEOAUDIT_MAX_PAGES=1000.

Examples:
  seoaudit audit --seed https://example.com/
  seoaudit audit --seed https://example.com/ --max-pages 2000 --format json,csv,sitemap --output ./report
  seoaudit audit --config audit.yaml --metrics-addr :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "YAML config file")
	flags.StringP("seed", "s", "", "Seed URL (required unless set in config)")
	flags.Int("max-pages", d.MaxPages, "Maximum number of pages to fetch")
	flags.Int("max-depth", d.MaxDepth, "Maximum link depth from the seed")
	flags.Float64("rps", d.RequestsPerSecond, "Requests per second per host")
	flags.Duration("timeout", d.RequestTimeout, "Per-request timeout")
	flags.String("user-agent", d.UserAgent, "User-Agent header and robots.txt agent")
	flags.Bool("follow-redirects", d.FollowRedirects, "Follow redirects hop by hop")
	flags.Bool("analyze-images", d.AnalyzeImages, "Check images for missing alt text")
	flags.Int("workers", d.Workers, "Number of concurrent workers")
	flags.Int("max-redirects", d.MaxRedirects, "Maximum redirect hops per URL")
	flags.Duration("max-duration", d.MaxDuration, "Overall audit time limit (0 = none)")
	flags.Int64("max-body-bytes", d.MaxBodyBytes, "Maximum response body size to analyze")
	flags.Int("top-issues", d.TopIssues, "Number of issue codes in the summary ranking")

	flags.StringP("format", "f", string(export.FormatJSON), "Comma separated report formats: json,csv,yaml,sitemap,sqlite")
	flags.StringP("output", "o", "./report", "Report output directory")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while auditing")
	flags.Bool("quiet", false, "Do not print per-page progress")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	return cmd
}

func runAudit(cmd *cobra.Command, v *viper.Viper) error {
	formatList, _ := cmd.Flags().GetString("format")
	formats, err := export.ParseFormats(formatList)
	if err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.New()
	auditor, err := audit.New(cfg,
		audit.WithLogger(logger),
		audit.WithObserver(collector))
	if err != nil {
		return err
	}
	auditor.Subscribe(collector.Progress)

	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		out := cmd.ErrOrStderr()
		auditor.Subscribe(func(p types.Progress) {
			fmt.Fprintf(out, "[%d/%d] %s (%d issues, %d queued)\n",
				p.PagesVisited, p.TotalBudget, p.CurrentURL, p.RecentIssueCount, p.Remaining)
		})
	}

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		srv := collector.NewServer(addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := auditor.Run(ctx)
	if err != nil {
		return err
	}

	outputDir, _ := cmd.Flags().GetString("output")
	exporter, err := export.NewExporter(outputDir)
	if err != nil {
		return err
	}
	paths, err := exporter.Export(summary, formats)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	printSummary(cmd.OutOrStdout(), summary, paths)
	return nil
}

func printSummary(w io.Writer, s *types.AuditSummary, paths []string) {
	status := string(s.Status)
	if s.PartialReason != "" {
		status += " (" + s.PartialReason + ")"
	}

	fmt.Fprintf(w, "Audit %s: %s\n", status, s.SeedURL)
	fmt.Fprintf(w, "Pages visited: %d, with issues: %d, avg response: %s\n",
		s.PagesVisited, s.PagesWithIssues, s.AvgResponseTime.Round(time.Millisecond))
	fmt.Fprintf(w, "Site issues: %d\n", len(s.SiteIssues))
	if s.Unfetched > 0 {
		fmt.Fprintf(w, "Left unfetched: %d\n", s.Unfetched)
	}
	fmt.Fprintf(w, "Link depth: max %d, %d deep, %d unreachable, avg inbound %.1f\n",
		s.Links.MaxLinkDepth, s.Links.DeepPages, s.Links.Unreachable, s.Links.AvgInbound)
	if len(s.TopIssues) > 0 {
		fmt.Fprintln(w, "Top issues:")
		for _, ic := range s.TopIssues {
			fmt.Fprintf(w, "  %-32s %d\n", ic.Code, ic.Count)
		}
	}
	for _, p := range paths {
		fmt.Fprintf(w, "Wrote %s\n", p)
	}
}
