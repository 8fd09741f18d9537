package audit

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/BenjaminSRussell/seo_audit/internal/crawler"
	"github.com/BenjaminSRussell/seo_audit/internal/graph"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

func buildSummary(cfg types.AuditConfig, seed types.CanonicalURL, results []*types.PageResult, report graph.Report, stats crawler.Stats) *types.AuditSummary {
	s := &types.AuditSummary{
		RunID:            uuid.NewString(),
		SeedURL:          seed,
		Status:           types.StatusCompleted,
		StatusCodes:      make(map[int]int),
		IssuesBySeverity: make(map[string]int),
		SiteIssues:       report.SiteIssues,
		Nodes:            report.Nodes,
		Links:            report.Links,
		URLStates:        stats.States,
		Unfetched:        stats.Unfetched,
	}

	switch {
	case stats.Cancelled:
		s.Status, s.PartialReason = types.StatusPartial, types.PartialCancelled
	case stats.TimedOut:
		s.Status, s.PartialReason = types.StatusPartial, types.PartialTimeout
	case stats.BudgetExhausted():
		s.Status, s.PartialReason = types.StatusPartial, types.PartialBudget
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Seq < results[j].Seq })

	counts := make(map[string]int)
	var total time.Duration
	var timed int

	s.Pages = make([]types.PageResult, 0, len(results))
	for _, r := range results {
		page := *r
		if extra := report.PageIssues[page.URL]; len(extra) > 0 {
			page.Issues = append(append([]types.Issue(nil), r.Issues...), extra...)
		}

		s.StatusCodes[page.StatusCode]++
		if page.ResponseTime > 0 {
			total += page.ResponseTime
			timed++
		}
		if len(page.Issues) > 0 {
			s.PagesWithIssues++
		}
		for _, issue := range page.Issues {
			counts[issue.Code]++
			s.IssuesBySeverity[issue.Severity.String()]++
		}
		s.Pages = append(s.Pages, page)
	}

	s.PagesVisited = len(s.Pages)
	if timed > 0 {
		s.AvgResponseTime = total / time.Duration(timed)
	}
	s.TopIssues = topIssues(counts, cfg.TopIssues)
	return s
}

// topIssues orders codes by frequency, ties broken by code
func topIssues(counts map[string]int, limit int) []types.IssueCount {
	out := make([]types.IssueCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, types.IssueCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
