package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/seo_audit/internal/export"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert a JSON audit report to other formats",
		Long:  `Read an audit.json written by "seoaudit audit" and write it again in the given formats.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, _ := cmd.Flags().GetString("input")
			formatList, _ := cmd.Flags().GetString("format")
			outputDir, _ := cmd.Flags().GetString("output")

			formats, err := export.ParseFormats(formatList)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}
			var summary types.AuditSummary
			if err := json.Unmarshal(data, &summary); err != nil {
				return fmt.Errorf("failed to decode report %s: %w", input, err)
			}

			exporter, err := export.NewExporter(outputDir)
			if err != nil {
				return err
			}
			paths, err := exporter.Export(&summary, formats)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringP("input", "i", "report/audit.json", "JSON audit report to convert")
	cmd.Flags().StringP("format", "f", "csv,sitemap", "Comma separated report formats")
	cmd.Flags().StringP("output", "o", "./report", "Output directory")

	return cmd
}
