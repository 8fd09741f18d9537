// Package canonical turns raw href values into the normalized absolute URLs
// used as page identity throughout an audit.
package canonical

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// ErrNotCrawlable is returned for references that can never be fetched:
// non-http(s) schemes, mailto/tel/javascript/data links and bare fragments.
var ErrNotCrawlable = errors.New("url is not crawlable")

// trackingParams are dropped from every query string
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
}

// Canonicalize resolves raw against base and normalizes the result.
// base may be empty when raw is already absolute.
func Canonicalize(raw, base string) (types.CanonicalURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", ErrNotCrawlable
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse %q: %w", raw, err)
	}
	if ref.Scheme != "" && !isHTTP(ref.Scheme) {
		return "", ErrNotCrawlable
	}

	resolved := ref
	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("failed to parse base %q: %w", base, err)
		}
		resolved = baseURL.ResolveReference(ref)
	}

	if !isHTTP(resolved.Scheme) {
		return "", ErrNotCrawlable
	}
	if resolved.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrNotCrawlable, raw)
	}

	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = normalizeHost(resolved.Scheme, resolved.Hostname(), resolved.Port())
	resolved.Fragment = ""
	resolved.RawFragment = ""
	resolved.Path = cleanPath(resolved.Path)
	resolved.RawPath = ""
	resolved.RawQuery = cleanQuery(resolved.Query())
	resolved.ForceQuery = false

	return types.CanonicalURL(resolved.String()), nil
}

// SameHost reports whether a and b share the same host and port
func SameHost(a, b types.CanonicalURL) bool {
	ha := a.Host()
	return ha != "" && strings.EqualFold(ha, b.Host())
}

// Origin returns scheme://host for u, or "" if u does not parse
func Origin(u types.CanonicalURL) string {
	parsed, err := url.Parse(string(u))
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Scheme returns the lower-case scheme of u
func Scheme(u types.CanonicalURL) string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Scheme)
}

func isHTTP(scheme string) bool {
	s := strings.ToLower(scheme)
	return s == "http" || s == "https"
}

func normalizeHost(scheme, hostname, port string) string {
	host := strings.ToLower(hostname)
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return host
}

// cleanPath collapses dot segments. An empty path becomes "/" and a
// trailing slash is kept.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// cleanQuery drops tracking parameters and sorts the rest by key
func cleanQuery(q url.Values) string {
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") || trackingParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}
	return q.Encode()
}
