// Command seoaudit crawls a website and reports technical SEO issues.
//
// Usage:
//
//	seoaudit audit --seed https://example.com/
//	seoaudit export --input report/audit.json --format csv,sitemap
package main

import (
	"fmt"
	"os"

	"github.com/BenjaminSRussell/seo_audit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
