package analyzer

import (
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/BenjaminSRussell/seo_audit/internal/canonical"
	"github.com/BenjaminSRussell/seo_audit/internal/fetcher"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

const (
	MinTitleLength    = 10
	MaxTitleLength    = 65
	MinMetaDescLength = 50
	MaxMetaDescLength = 160
	MinWordCount      = 150

	SlowResponseThreshold = 3 * time.Second
	LargeHTMLThreshold    = 500 << 10
	minCompressibleBytes  = 1 << 10
)

func issue(code string, sev types.Severity, format string, args ...any) types.Issue {
	return types.Issue{Code: code, Message: fmt.Sprintf(format, args...), Severity: sev}
}

// FetchFailureRule reports transport errors
func FetchFailureRule(p *Page) []types.Issue {
	err := p.Outcome.Error()
	if err == nil {
		return nil
	}
	return []types.Issue{issue(CodeFetchFailed, types.SeverityError, "Fetch failed: %v", err)}
}

// HTTPStatusRule reports 4xx and 5xx responses
func HTTPStatusRule(p *Page) []types.Issue {
	status := p.Outcome.StatusCode
	if status < 400 {
		return nil
	}
	return []types.Issue{issue(CodeHTTPError, types.SeverityError,
		"HTTP %d %s", status, http.StatusText(status))}
}

// RedirectRule reports chain problems recorded by the fetcher
func RedirectRule(p *Page) []types.Issue {
	out := p.Outcome
	chain := out.Chain
	var issues []types.Issue

	if chain.Loop {
		issues = append(issues, issue(CodeRedirectLoop, types.SeverityError,
			"Redirect loop after %d hops: %s", chain.Len(), chain.StopReason))
	}
	if chain.TooLong {
		issues = append(issues, issue(CodeLongRedirectChain, types.SeverityError,
			"Redirect chain exceeds %d hops", chain.Len()))
	}
	if chain.Len() > 0 && chain.StopReason == fetcher.ReasonMissingLocation {
		issues = append(issues, issue(CodeRedirectNoLocation, types.SeverityError,
			"HTTP %d without a Location header", out.StatusCode))
	}
	if chain.Len() > 1 && !chain.Truncated() {
		issues = append(issues, issue(CodeMultipleRedirects, types.SeverityWarning,
			"%d redirects before the final URL", chain.Len()))
	}
	if out.Location != "" {
		issues = append(issues, issue(CodeRedirectStopped, types.SeverityInfo,
			"HTTP %d to %s was not followed", out.StatusCode, out.Location))
	}
	if chain.Len() > 0 && mixedProtocols(chain, out.FinalURL) {
		issues = append(issues, issue(CodeMixedProtocol, types.SeverityWarning,
			"Redirect chain mixes http and https"))
	}
	return issues
}

func mixedProtocols(chain types.RedirectChain, final types.CanonicalURL) bool {
	seen := map[string]bool{canonical.Scheme(final): true}
	for _, hop := range chain.Hops {
		seen[canonical.Scheme(hop.URL)] = true
	}
	return seen["http"] && seen["https"]
}

// SlowResponseRule flags responses slower than SlowResponseThreshold
func SlowResponseRule(p *Page) []types.Issue {
	if p.Outcome.Failed() || p.Outcome.ResponseTime <= SlowResponseThreshold {
		return nil
	}
	return []types.Issue{issue(CodeSlowResponse, types.SeverityWarning,
		"Response took %s (threshold %s)", p.Outcome.ResponseTime.Round(time.Millisecond), SlowResponseThreshold)}
}

// TitleRule checks presence and length of <title>
func TitleRule(p *Page) []types.Issue {
	doc := p.Doc
	if !doc.HasTitle {
		return []types.Issue{issue(CodeMissingTitle, types.SeverityError, "Page has no <title>")}
	}

	n := utf8.RuneCountInString(doc.Title)
	switch {
	case n == 0:
		return []types.Issue{issue(CodeEmptyTitle, types.SeverityError, "Title is empty")}
	case n < MinTitleLength:
		return []types.Issue{issue(CodeTitleTooShort, types.SeverityWarning,
			"Title is %d characters (minimum %d)", n, MinTitleLength)}
	case n > MaxTitleLength:
		return []types.Issue{issue(CodeTitleTooLong, types.SeverityWarning,
			"Title is %d characters (maximum %d)", n, MaxTitleLength)}
	}
	return nil
}

// MetaDescriptionRule checks presence and length of the meta description
func MetaDescriptionRule(p *Page) []types.Issue {
	doc := p.Doc
	if !doc.HasMetaDescription {
		return []types.Issue{issue(CodeMissingMetaDesc, types.SeverityWarning, "Page has no meta description")}
	}

	n := utf8.RuneCountInString(doc.MetaDescription)
	switch {
	case n == 0:
		return []types.Issue{issue(CodeEmptyMetaDesc, types.SeverityWarning, "Meta description is empty")}
	case n < MinMetaDescLength:
		return []types.Issue{issue(CodeMetaDescTooShort, types.SeverityWarning,
			"Meta description is %d characters (minimum %d)", n, MinMetaDescLength)}
	case n > MaxMetaDescLength:
		return []types.Issue{issue(CodeMetaDescTooLong, types.SeverityWarning,
			"Meta description is %d characters (maximum %d)", n, MaxMetaDescLength)}
	}
	return nil
}

// H1Rule flags a missing or repeated H1
func H1Rule(p *Page) []types.Issue {
	h1 := p.Result.H1
	switch {
	case len(h1) == 0:
		return []types.Issue{issue(CodeMissingH1, types.SeverityError, "Page has no H1")}
	case len(h1) > 1:
		return []types.Issue{issue(CodeMultipleH1, types.SeverityWarning, "Page has %d H1 elements", len(h1))}
	}
	return nil
}

// CanonicalRule checks the canonical link. Reachability of the target is a
// cross-page check done by the site graph.
func CanonicalRule(p *Page) []types.Issue {
	doc := p.Doc
	switch {
	case !doc.HasCanonical:
		return []types.Issue{issue(CodeMissingCanonical, types.SeverityWarning, "Page has no canonical link")}
	case doc.CanonicalRaw == "":
		return []types.Issue{issue(CodeEmptyCanonical, types.SeverityWarning, "Canonical link has an empty href")}
	case doc.Canonical == "":
		return []types.Issue{issue(CodeInvalidCanonical, types.SeverityWarning,
			"Canonical href %q is not a crawlable URL", doc.CanonicalRaw)}
	case doc.Canonical != p.Result.FinalURL:
		return []types.Issue{issue(CodeCanonicalElsewhere, types.SeverityInfo,
			"Canonical points to %s", doc.Canonical)}
	}
	return nil
}

// RobotsMetaRule records noindex and nofollow directives
func RobotsMetaRule(p *Page) []types.Issue {
	var issues []types.Issue
	if p.Doc.Robots.NoIndex {
		issues = append(issues, issue(CodeNoIndex, types.SeverityInfo, "Meta robots contains noindex"))
	}
	if p.Doc.Robots.NoFollow {
		issues = append(issues, issue(CodeNoFollow, types.SeverityInfo, "Meta robots contains nofollow"))
	}
	return issues
}

// ImageAltRule flags images without an alt attribute
func ImageAltRule(p *Page) []types.Issue {
	if !p.AnalyzeImages {
		return nil
	}
	if missing := p.Doc.ImagesMissingAlt(); missing > 0 {
		return []types.Issue{issue(CodeImagesMissingAlt, types.SeverityWarning,
			"%d of %d images have no alt attribute", missing, len(p.Doc.Images))}
	}
	return nil
}

// WordCountRule flags thin content
func WordCountRule(p *Page) []types.Issue {
	if p.Doc.WordCount < MinWordCount {
		return []types.Issue{issue(CodeLowWordCount, types.SeverityWarning,
			"Only %d words of visible text (minimum %d)", p.Doc.WordCount, MinWordCount)}
	}
	return nil
}

// PageWeightRule flags oversized HTML
func PageWeightRule(p *Page) []types.Issue {
	if size := p.Result.HTMLSize; size > LargeHTMLThreshold {
		return []types.Issue{issue(CodeLargeHTML, types.SeverityWarning,
			"HTML is %d KB (threshold %d KB)", size>>10, LargeHTMLThreshold>>10)}
	}
	return nil
}

// CompressionRule flags HTML served without content encoding
func CompressionRule(p *Page) []types.Issue {
	if p.Outcome.Compressed || p.Result.HTMLSize < minCompressibleBytes {
		return nil
	}
	return []types.Issue{issue(CodeNotCompressed, types.SeverityWarning, "HTML is served without compression")}
}
