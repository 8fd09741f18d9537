package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/seo_audit/internal/storage"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List pages stored in a SQLite audit export",
		Long: `Read an audit.db written with --format sqlite and print its totals and the
pages matching the filters, in crawl order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			status, _ := cmd.Flags().GetInt("status")
			maxDepth, _ := cmd.Flags().GetInt("max-depth")
			issueCode, _ := cmd.Flags().GetString("issue")

			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("failed to open audit database: %w", err)
			}
			store, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.GetStats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pages: %d (ok %d, failed %d), page issues: %d, site issues: %d\n",
				stats.TotalPages, stats.SuccessfulPages, stats.FailedPages, stats.Issues, stats.SiteIssues)

			filter := storage.PageFilter{StatusCode: status, IssueCode: issueCode}
			if maxDepth >= 0 {
				filter.MaxDepth = &maxDepth
			}
			pages, err := store.QueryPages(filter)
			if err != nil {
				return err
			}
			for _, p := range pages {
				fmt.Fprintf(out, "%4d  %3d  depth %d  %s\n", p.Seq, p.StatusCode, p.Depth, p.URL)
			}
			return nil
		},
	}

	cmd.Flags().String("db", "report/audit.db", "SQLite audit export to read")
	cmd.Flags().Int("status", 0, "Only pages with this HTTP status")
	cmd.Flags().Int("max-depth", -1, "Only pages at or above this crawl depth")
	cmd.Flags().String("issue", "", "Only pages carrying this issue code")

	return cmd
}
