package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		base string
		want types.CanonicalURL
	}{
		{"absolute", "https://example.com/page", "", "https://example.com/page"},
		{"empty path", "https://example.com", "", "https://example.com/"},
		{"lowercase scheme and host", "HTTPS://Example.COM/About", "", "https://example.com/About"},
		{"default http port", "http://example.com:80/a", "", "http://example.com/a"},
		{"default https port", "https://example.com:443/a", "", "https://example.com/a"},
		{"custom port kept", "http://example.com:8080/a", "", "http://example.com:8080/a"},
		{"fragment dropped", "https://example.com/a#section", "", "https://example.com/a"},
		{"relative", "about", "https://example.com/blog/", "https://example.com/blog/about"},
		{"root relative", "/contact", "https://example.com/blog/post", "https://example.com/contact"},
		{"dot segments", "../x/./y", "https://example.com/a/b/", "https://example.com/a/x/y"},
		{"trailing slash kept", "https://example.com/dir/", "", "https://example.com/dir/"},
		{"tracking params removed", "https://example.com/?utm_source=x&id=1&fbclid=abc", "", "https://example.com/?id=1"},
		{"query sorted", "https://example.com/?b=2&a=1", "", "https://example.com/?a=1&b=2"},
		{"only tracking params", "https://example.com/p?utm_medium=mail", "", "https://example.com/p"},
		{"protocol relative", "//cdn.example.com/x", "https://example.com/", "https://cdn.example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.raw, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	rejects := []string{
		"",
		"#top",
		"mailto:someone@example.com",
		"tel:+15551234",
		"javascript:void(0)",
		"data:text/html,hello",
		"ftp://example.com/file",
	}

	for _, raw := range rejects {
		t.Run(raw, func(t *testing.T) {
			_, err := Canonicalize(raw, "https://example.com/")
			assert.ErrorIs(t, err, ErrNotCrawlable)
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"HTTP://Example.com:80",
		"https://example.com/a/../b/?z=1&utm_term=q&a=2#frag",
		"https://example.com/dir/",
		"https://example.com/search?q=hello+world",
		"http://[::1]:8080/x",
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			once, err := Canonicalize(raw, "")
			require.NoError(t, err)
			twice, err := Canonicalize(string(once), "")
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("https://example.com/a", "https://EXAMPLE.com/b"))
	assert.False(t, SameHost("https://example.com/a", "https://blog.example.com/a"))
	assert.False(t, SameHost("https://example.com/a", "https://example.com:8443/a"))
	assert.False(t, SameHost("", ""))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://example.com", Origin("https://example.com/a/b?c=d"))
	assert.Equal(t, "", Origin("not a url"))
	assert.Equal(t, "https", Scheme("https://example.com/"))
}
