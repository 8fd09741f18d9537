// Package fetcher performs the single-attempt GET behind every audited
// page and follows redirects itself so each hop is recorded.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BenjaminSRussell/seo_audit/internal/canonical"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// ErrStopRedirect is returned by a HopFunc to end redirect following
var ErrStopRedirect = errors.New("redirect not followed")

// ReasonMissingLocation is the stop reason for a 3xx without Location
const ReasonMissingLocation = "missing Location header"

// HopFunc is consulted before following a redirect from one URL to the next.
// A non-nil error stops following and is recorded as the stop reason.
type HopFunc func(ctx context.Context, from, to types.CanonicalURL) error

// cacheHeaderNames are copied into the outcome when present
var cacheHeaderNames = []string{"Cache-Control", "ETag", "Last-Modified", "Expires", "Age", "Vary"}

// Outcome is everything the analyzer needs from one fetch
type Outcome struct {
	URL           types.CanonicalURL
	FinalURL      types.CanonicalURL
	StatusCode    int
	Header        http.Header
	ContentType   string
	Body          []byte
	BodyTruncated bool
	Compressed    bool
	CacheHeaders  map[string]string
	ResponseTime  time.Duration
	Chain         types.RedirectChain
	// Location is set for a 3xx that was not followed
	Location   string
	ErrorClass ErrorClass
	Err        error
	FetchedAt  time.Time
}

// Failed reports whether the fetch produced no HTTP response at all
func (o *Outcome) Failed() bool {
	return o.ErrorClass != ClassNone
}

// Fetcher issues GET requests with a fixed client configuration
type Fetcher struct {
	client          *http.Client
	userAgent       string
	followRedirects bool
	maxRedirects    int
	maxBodyBytes    int64
	logger          *zap.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithClient replaces the underlying client. Its CheckRedirect is overwritten.
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// New creates a fetcher from the audit configuration
func New(cfg types.AuditConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        cfg.Workers * 2,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: cfg.RequestTimeout,
			},
		},
		userAgent:       cfg.UserAgent,
		followRedirects: cfg.FollowRedirects,
		maxRedirects:    cfg.MaxRedirects,
		maxBodyBytes:    cfg.MaxBodyBytes,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return f
}

// Fetch requests u once. Redirects are followed hop by hop when enabled,
// asking hop (if non-nil) before each follow.
func (f *Fetcher) Fetch(ctx context.Context, u types.CanonicalURL, hop HopFunc) *Outcome {
	out := &Outcome{
		URL:       u,
		FinalURL:  u,
		FetchedAt: time.Now(),
	}

	current := u
	for {
		start := time.Now()
		resp, err := f.do(ctx, current)
		if err != nil {
			out.FinalURL = current
			out.ResponseTime = time.Since(start)
			out.ErrorClass = Classify(err)
			out.Err = err
			f.logger.Debug("fetch failed",
				zap.String("url", current.String()),
				zap.String("class", string(out.ErrorClass)),
				zap.Error(err))
			return out
		}

		if !isRedirect(resp.StatusCode) || !f.followRedirects {
			f.readResponse(out, current, resp, start)
			return out
		}

		location := resp.Header.Get("Location")
		drain(resp)

		out.FinalURL = current
		out.StatusCode = resp.StatusCode
		out.Header = resp.Header
		out.ResponseTime = time.Since(start)

		if out.Chain.Len() >= f.maxRedirects {
			out.Chain.TooLong = true
			out.Chain.StopReason = fmt.Sprintf("more than %d redirects", f.maxRedirects)
			return out
		}
		out.Chain.Hops = append(out.Chain.Hops, types.RedirectHop{URL: current, StatusCode: resp.StatusCode})

		if location == "" {
			out.Chain.StopReason = ReasonMissingLocation
			return out
		}

		next, err := canonical.Canonicalize(location, current.String())
		if err != nil {
			out.Chain.StopReason = fmt.Sprintf("unfollowable Location %q", location)
			return out
		}
		if out.Chain.Contains(next) {
			out.Chain.Loop = true
			out.Chain.StopReason = fmt.Sprintf("redirect loop back to %s", next)
			return out
		}

		if hop != nil {
			if err := hop(ctx, current, next); err != nil {
				out.Chain.StopReason = err.Error()
				out.FinalURL = next
				return out
			}
		}
		current = next
	}
}

func (f *Fetcher) do(ctx context.Context, u types.CanonicalURL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (f *Fetcher) readResponse(out *Outcome, current types.CanonicalURL, resp *http.Response, start time.Time) {
	defer resp.Body.Close()

	out.FinalURL = current
	out.StatusCode = resp.StatusCode
	out.Header = resp.Header
	out.ContentType = resp.Header.Get("Content-Type")
	out.Compressed = resp.Uncompressed || isCompressedEncoding(resp.Header.Get("Content-Encoding"))
	out.CacheHeaders = cacheHeaders(resp.Header)
	if isRedirect(resp.StatusCode) {
		out.Location = resp.Header.Get("Location")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	out.ResponseTime = time.Since(start)
	if err != nil {
		out.ErrorClass = Classify(err)
		out.Err = fmt.Errorf("body read failed: %w", err)
		return
	}
	if int64(len(body)) > f.maxBodyBytes {
		body = body[:f.maxBodyBytes]
		out.BodyTruncated = true
	}
	out.Body = body
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func isCompressedEncoding(encoding string) bool {
	encoding = strings.ToLower(encoding)
	return strings.Contains(encoding, "gzip") ||
		strings.Contains(encoding, "br") ||
		strings.Contains(encoding, "deflate") ||
		strings.Contains(encoding, "zstd")
}

func cacheHeaders(h http.Header) map[string]string {
	found := make(map[string]string)
	for _, name := range cacheHeaderNames {
		if v := h.Get(name); v != "" {
			found[name] = v
		}
	}
	if len(found) == 0 {
		return nil
	}
	return found
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
