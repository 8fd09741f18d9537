// Package cli implements the seoaudit command line.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seoaudit",
		Short: "Crawl a website and report technical SEO issues",
		Long: `seoaudit crawls one site politely (robots.txt, per-host rate limit), analyzes every
page for on-page SEO problems, checks site-wide consistency and writes the audit as
JSON, CSV, YAML, an XML sitemap or a SQLite database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
