package types

import (
	"net/url"
	"time"
)

// AuditConfig holds the settings for one audit run
type AuditConfig struct {
	SeedURL           string        `mapstructure:"seed_url" json:"seed_url" yaml:"seed_url" validate:"required,url"`
	MaxPages          int           `mapstructure:"max_pages" json:"max_pages" yaml:"max_pages" validate:"gt=0,lte=100000"`
	MaxDepth          int           `mapstructure:"max_depth" json:"max_depth" yaml:"max_depth" validate:"gte=0,lte=100"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	UserAgent         string        `mapstructure:"user_agent" json:"user_agent" yaml:"user_agent" validate:"required"`
	FollowRedirects   bool          `mapstructure:"follow_redirects" json:"follow_redirects" yaml:"follow_redirects"`
	AnalyzeImages     bool          `mapstructure:"analyze_images" json:"analyze_images" yaml:"analyze_images"`

	Workers      int           `mapstructure:"workers" json:"workers" yaml:"workers" validate:"gt=0,lte=64"`
	MaxRedirects int           `mapstructure:"max_redirects" json:"max_redirects" yaml:"max_redirects" validate:"gt=0,lte=50"`
	MaxDuration  time.Duration `mapstructure:"max_duration" json:"max_duration" yaml:"max_duration" validate:"gte=0"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes" validate:"gt=0"`
	TopIssues    int           `mapstructure:"top_issues" json:"top_issues" yaml:"top_issues" validate:"gt=0"`
}

// CanonicalURL is a normalized absolute URL used as the page identity key
type CanonicalURL string

func (u CanonicalURL) String() string { return string(u) }

// Host returns the host[:port] part, or "" if the URL does not parse
func (u CanonicalURL) Host() string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return ""
	}
	return parsed.Host
}

// Source records how a URL entered the frontier
type Source string

const (
	SourceSeed    Source = "seed"
	SourceSitemap Source = "sitemap"
	SourceLink    Source = "link"
)

// FrontierEntry represents a URL in the frontier
type FrontierEntry struct {
	URL    CanonicalURL `json:"url" yaml:"url"`
	Depth  int          `json:"depth" yaml:"depth"`
	Parent CanonicalURL `json:"parent,omitempty" yaml:"parent,omitempty"`
	Source Source       `json:"source" yaml:"source"`
	Seq    int          `json:"seq" yaml:"seq"`
}

// URLState is the lifecycle state of a frontier entry
type URLState int

const (
	StateDiscovered URLState = iota
	StateGated
	StateFetched
	StateAnalyzed
	StateSkippedByRobots
	StateSkippedByBudget
)

func (s URLState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateGated:
		return "gated"
	case StateFetched:
		return "fetched"
	case StateAnalyzed:
		return "analyzed"
	case StateSkippedByRobots:
		return "skipped_by_robots"
	case StateSkippedByBudget:
		return "skipped_by_budget"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible
func (s URLState) Terminal() bool {
	return s == StateAnalyzed || s == StateSkippedByRobots || s == StateSkippedByBudget
}

// RedirectHop is one 3xx response in a redirect chain
type RedirectHop struct {
	URL        CanonicalURL `json:"url" yaml:"url"`
	StatusCode int          `json:"status_code" yaml:"status_code"`
}

// RedirectChain holds the 3xx hops from the original request to the final response
type RedirectChain struct {
	Hops []RedirectHop `json:"hops,omitempty" yaml:"hops,omitempty"`
	// Loop is set when a hop pointed back to a URL already in the chain
	Loop bool `json:"loop,omitempty" yaml:"loop,omitempty"`
	// TooLong is set when the hop cap stopped the chase
	TooLong bool `json:"too_long,omitempty" yaml:"too_long,omitempty"`
	// StopReason explains why following stopped before a non-3xx response
	StopReason string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
}

// Len returns the number of recorded hops
func (c RedirectChain) Len() int { return len(c.Hops) }

// Truncated reports whether the chain was cut by the loop or length rule
func (c RedirectChain) Truncated() bool { return c.Loop || c.TooLong }

// Contains reports whether u already appears in the chain
func (c RedirectChain) Contains(u CanonicalURL) bool {
	for _, hop := range c.Hops {
		if hop.URL == u {
			return true
		}
	}
	return false
}

// HeadingItem is one h1-h6 element in document order
type HeadingItem struct {
	Level    int    `json:"level" yaml:"level"`
	Text     string `json:"text" yaml:"text"`
	Position int    `json:"position" yaml:"position"`
}

// RobotsMeta holds parsed meta robots directives
type RobotsMeta struct {
	Raw      string `json:"raw,omitempty" yaml:"raw,omitempty"`
	NoIndex  bool   `json:"noindex" yaml:"noindex"`
	NoFollow bool   `json:"nofollow" yaml:"nofollow"`
}

// PageResult contains the analysis of one fetched URL
type PageResult struct {
	URL              CanonicalURL            `json:"url" yaml:"url"`
	FinalURL         CanonicalURL            `json:"final_url" yaml:"final_url"`
	Depth            int                     `json:"depth" yaml:"depth"`
	Seq              int                     `json:"seq" yaml:"seq"`
	StatusCode       int                     `json:"status_code" yaml:"status_code"`
	ResponseTime     time.Duration           `json:"response_time" yaml:"response_time"`
	HTMLSize         int64                   `json:"html_size" yaml:"html_size"`
	Compressed       bool                    `json:"compressed" yaml:"compressed"`
	ContentType      string                  `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Title            string                  `json:"title,omitempty" yaml:"title,omitempty"`
	HasTitle         bool                    `json:"has_title" yaml:"has_title"`
	MetaDescription  string                  `json:"meta_description,omitempty" yaml:"meta_description,omitempty"`
	HasMetaDesc      bool                    `json:"has_meta_description" yaml:"has_meta_description"`
	H1               []string                `json:"h1,omitempty" yaml:"h1,omitempty"`
	Canonical        CanonicalURL            `json:"canonical,omitempty" yaml:"canonical,omitempty"`
	Robots           RobotsMeta              `json:"robots" yaml:"robots"`
	Headings         []HeadingItem           `json:"headings,omitempty" yaml:"headings,omitempty"`
	InternalLinks    []CanonicalURL          `json:"internal_links,omitempty" yaml:"internal_links,omitempty"`
	ExternalLinks    []string                `json:"external_links,omitempty" yaml:"external_links,omitempty"`
	ImagesMissingAlt int                     `json:"images_missing_alt" yaml:"images_missing_alt"`
	WordCount        int                     `json:"word_count" yaml:"word_count"`
	Hreflang         map[string]CanonicalURL `json:"hreflang,omitempty" yaml:"hreflang,omitempty"`
	JSONLDTypes      []string                `json:"jsonld_types,omitempty" yaml:"jsonld_types,omitempty"`
	RedirectChain    RedirectChain           `json:"redirect_chain" yaml:"redirect_chain"`
	FetchError       string                  `json:"fetch_error,omitempty" yaml:"fetch_error,omitempty"`
	CacheHeaders     map[string]string       `json:"cache_headers,omitempty" yaml:"cache_headers,omitempty"`
	CrawledAt        time.Time               `json:"crawled_at" yaml:"crawled_at"`
	Issues           []Issue                 `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Indexable reports whether search engines may index this page
func (p *PageResult) Indexable() bool {
	return p.StatusCode == 200 && p.FetchError == "" && !p.Robots.NoIndex && p.RedirectChain.Len() == 0
}

// Severity ranks an issue
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText writes the severity name so exporters stay readable
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		*s = SeverityInfo
	}
	return nil
}

// Issue is a single finding on a page or on the whole site
type Issue struct {
	Code     string       `json:"code" yaml:"code"`
	Message  string       `json:"message" yaml:"message"`
	Severity Severity     `json:"severity" yaml:"severity"`
	URL      CanonicalURL `json:"url,omitempty" yaml:"url,omitempty"`
}

// SiteGraphNode is the link-graph view of one URL
type SiteGraphNode struct {
	URL       CanonicalURL   `json:"url" yaml:"url"`
	Inbound   int            `json:"inbound" yaml:"inbound"`
	Outbound  []CanonicalURL `json:"outbound,omitempty" yaml:"outbound,omitempty"`
	InSitemap bool           `json:"in_sitemap" yaml:"in_sitemap"`
	ViaCrawl  bool           `json:"via_crawl" yaml:"via_crawl"`
	Fetched   bool           `json:"fetched" yaml:"fetched"`
	Blocked   bool           `json:"blocked" yaml:"blocked"`
	// LinkDepth is the click distance from the seed, -1 when unreachable
	LinkDepth int            `json:"link_depth" yaml:"link_depth"`
}

// PageAuthority ranks a page by the internal links pointing at it
type PageAuthority struct {
	URL     CanonicalURL `json:"url" yaml:"url"`
	Inbound int          `json:"inbound" yaml:"inbound"`
}

// LinkStats summarizes the internal link structure of the crawled pages
type LinkStats struct {
	AvgInbound    float64         `json:"avg_inbound" yaml:"avg_inbound"`
	AvgOutbound   float64         `json:"avg_outbound" yaml:"avg_outbound"`
	MaxLinkDepth  int             `json:"max_link_depth" yaml:"max_link_depth"`
	DeepPages     int             `json:"deep_pages" yaml:"deep_pages"`
	Unreachable   int             `json:"unreachable" yaml:"unreachable"`
	HighAuthority []PageAuthority `json:"high_authority,omitempty" yaml:"high_authority,omitempty"`
}

// AuditStatus tells a finished run from an early-terminated one
type AuditStatus string

const (
	StatusCompleted AuditStatus = "completed"
	StatusPartial   AuditStatus = "partial"
)

// Reasons a run ends partial
const (
	PartialTimeout   = "timeout"
	PartialBudget    = "budget"
	PartialCancelled = "cancelled"
)

// IssueCount pairs an issue code with its frequency
type IssueCount struct {
	Code  string `json:"code" yaml:"code"`
	Count int    `json:"count" yaml:"count"`
}

// AuditSummary is the terminal artifact of one audit run
type AuditSummary struct {
	RunID            string          `json:"run_id" yaml:"run_id"`
	SeedURL          CanonicalURL    `json:"seed_url" yaml:"seed_url"`
	StartedAt        time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time       `json:"finished_at" yaml:"finished_at"`
	Status           AuditStatus     `json:"status" yaml:"status"`
	PartialReason    string          `json:"partial_reason,omitempty" yaml:"partial_reason,omitempty"`
	PagesVisited     int             `json:"pages_visited" yaml:"pages_visited"`
	PagesWithIssues  int             `json:"pages_with_issues" yaml:"pages_with_issues"`
	AvgResponseTime  time.Duration   `json:"avg_response_time" yaml:"avg_response_time"`
	TopIssues        []IssueCount    `json:"top_issues" yaml:"top_issues"`
	StatusCodes      map[int]int     `json:"status_codes" yaml:"status_codes"`
	IssuesBySeverity map[string]int  `json:"issues_by_severity" yaml:"issues_by_severity"`
	Pages            []PageResult    `json:"pages" yaml:"pages"`
	SiteIssues       []Issue         `json:"site_issues" yaml:"site_issues"`
	Nodes            []SiteGraphNode `json:"nodes" yaml:"nodes"`
	Links            LinkStats       `json:"links" yaml:"links"`
	URLStates        map[string]int  `json:"url_states" yaml:"url_states"`
	Unfetched        int             `json:"unfetched" yaml:"unfetched"`
}

// Completed reports whether the run finished without early termination
func (s *AuditSummary) Completed() bool {
	return s.Status == StatusCompleted
}

// Progress is delivered to subscribers after each completed page
type Progress struct {
	PagesVisited     int          `json:"pages_visited" yaml:"pages_visited"`
	TotalBudget      int          `json:"total_budget" yaml:"total_budget"`
	CurrentURL       CanonicalURL `json:"current_url" yaml:"current_url"`
	RecentIssueCount int          `json:"recent_issue_count" yaml:"recent_issue_count"`
	Remaining        int          `json:"remaining" yaml:"remaining"`
}
