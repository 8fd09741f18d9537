// Package analyzer turns a fetch outcome into a PageResult by running a
// fixed, ordered list of independent rules. It performs no I/O.
package analyzer

import (
	"mime"
	"net/http"
	"strings"

	"github.com/BenjaminSRussell/seo_audit/internal/canonical"
	"github.com/BenjaminSRussell/seo_audit/internal/fetcher"
	"github.com/BenjaminSRussell/seo_audit/internal/parser"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// Page is the analysis in progress. Rules read it and return issues.
type Page struct {
	Outcome *fetcher.Outcome
	// Doc is nil unless the response was a 2xx HTML document
	Doc    *parser.Document
	Result *types.PageResult

	AnalyzeImages bool
}

// Rule inspects a page and reports zero or more issues
type Rule func(*Page) []types.Issue

// ResponseRules run for every outcome, HTML or not
var ResponseRules = []Rule{
	FetchFailureRule,
	HTTPStatusRule,
	RedirectRule,
	SlowResponseRule,
}

// HTMLRules run only for successfully fetched HTML documents
var HTMLRules = []Rule{
	TitleRule,
	MetaDescriptionRule,
	H1Rule,
	CanonicalRule,
	RobotsMetaRule,
	ImageAltRule,
	WordCountRule,
	HeadingHierarchyRule,
	HreflangRule,
	StructuredDataRule,
	PageWeightRule,
	CompressionRule,
}

// Analyzer runs a rule list over fetch outcomes
type Analyzer struct {
	responseRules []Rule
	htmlRules     []Rule
	analyzeImages bool
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithImages toggles the missing-alt rule
func WithImages(enabled bool) Option {
	return func(a *Analyzer) { a.analyzeImages = enabled }
}

// WithHTMLRules replaces the HTML rule list
func WithHTMLRules(rules ...Rule) Option {
	return func(a *Analyzer) { a.htmlRules = rules }
}

// New creates an analyzer with the default rule lists
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		responseRules: ResponseRules,
		htmlRules:     HTMLRules,
		analyzeImages: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultAnalyzer = New()

// Analyze runs the default rules over out
func Analyze(out *fetcher.Outcome) *types.PageResult {
	return defaultAnalyzer.Analyze(out)
}

// Analyze builds the PageResult for out
func (a *Analyzer) Analyze(out *fetcher.Outcome) *types.PageResult {
	page := &Page{
		Outcome:       out,
		Result:        newResult(out),
		AnalyzeImages: a.analyzeImages,
	}

	page.Result.Issues = append(page.Result.Issues, runRules(page, a.responseRules)...)

	if out.Failed() || out.StatusCode < 200 || out.StatusCode > 299 {
		return page.Result
	}

	if !IsHTML(out.ContentType, out.Body) {
		page.Result.Issues = append(page.Result.Issues, types.Issue{
			Code:     CodeNonHTML,
			Message:  "Response is not HTML (" + contentTypeOrUnknown(out.ContentType) + "), HTML checks skipped",
			Severity: types.SeverityInfo,
		})
		return page.Result
	}

	doc, err := parser.Parse(out.Body, out.FinalURL)
	if err != nil {
		page.Result.Issues = append(page.Result.Issues, types.Issue{
			Code:     CodeNonHTML,
			Message:  "Document could not be parsed as HTML: " + err.Error(),
			Severity: types.SeverityWarning,
		})
		return page.Result
	}
	page.Doc = doc
	fillFromDocument(page.Result, doc)

	if out.BodyTruncated {
		page.Result.Issues = append(page.Result.Issues, types.Issue{
			Code:     CodeBodyTruncated,
			Message:  "Body exceeded the size limit and was truncated before analysis",
			Severity: types.SeverityWarning,
		})
	}

	page.Result.Issues = append(page.Result.Issues, runRules(page, a.htmlRules)...)
	return page.Result
}

func runRules(page *Page, rules []Rule) []types.Issue {
	var issues []types.Issue
	for _, rule := range rules {
		issues = append(issues, rule(page)...)
	}
	return issues
}

func newResult(out *fetcher.Outcome) *types.PageResult {
	r := &types.PageResult{
		URL:           out.URL,
		FinalURL:      out.FinalURL,
		StatusCode:    out.StatusCode,
		ResponseTime:  out.ResponseTime,
		HTMLSize:      int64(len(out.Body)),
		Compressed:    out.Compressed,
		ContentType:   out.ContentType,
		RedirectChain: out.Chain,
		CacheHeaders:  out.CacheHeaders,
		CrawledAt:     out.FetchedAt,
	}
	if err := out.Error(); err != nil {
		r.FetchError = err.Error()
	}
	return r
}

func fillFromDocument(r *types.PageResult, doc *parser.Document) {
	r.Title = doc.Title
	r.HasTitle = doc.HasTitle
	r.MetaDescription = doc.MetaDescription
	r.HasMetaDesc = doc.HasMetaDescription
	r.H1 = doc.H1()
	r.Canonical = doc.Canonical
	r.Robots = doc.Robots
	r.Headings = doc.Headings
	r.ImagesMissingAlt = doc.ImagesMissingAlt()
	r.WordCount = doc.WordCount

	for _, link := range doc.Links {
		if canonical.SameHost(link, r.FinalURL) {
			r.InternalLinks = append(r.InternalLinks, link)
		} else {
			r.ExternalLinks = append(r.ExternalLinks, link.String())
		}
	}

	for _, h := range doc.Hreflang {
		if h.URL == "" {
			continue
		}
		if r.Hreflang == nil {
			r.Hreflang = make(map[string]types.CanonicalURL)
		}
		key := strings.ToLower(h.Lang)
		if _, dup := r.Hreflang[key]; !dup {
			r.Hreflang[key] = h.URL
		}
	}

	for _, block := range doc.JSONLD {
		items, err := parser.ParseJSONLD(block)
		if err != nil {
			continue
		}
		for _, item := range items {
			r.JSONLDTypes = append(r.JSONLDTypes, item.Types...)
		}
	}
}

// IsHTML reports whether the response should get HTML checks. An absent
// Content-Type falls back to sniffing the body.
func IsHTML(contentType string, body []byte) bool {
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func contentTypeOrUnknown(ct string) string {
	if ct == "" {
		return "unknown type"
	}
	return ct
}
