package seeding

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/seo_audit/internal/config"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

type fakeGate struct {
	sitemaps []string
	waits    atomic.Int32
}

func (g *fakeGate) WaitForSlot(ctx context.Context, u types.CanonicalURL) error {
	g.waits.Add(1)
	return ctx.Err()
}

func (g *fakeGate) Sitemaps(ctx context.Context, origin string) []string {
	return g.sitemaps
}

func urlset(locs ...string) string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&buf, "<url><loc>%s</loc></url>", loc)
	}
	buf.WriteString("</urlset>")
	return buf.String()
}

func sitemapIndex(locs ...string) string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&buf, "<sitemap><loc>%s</loc></sitemap>", loc)
	}
	buf.WriteString("</sitemapindex>")
	return buf.String()
}

func newDiscoverer(gate Gate) *Discoverer {
	return NewDiscoverer(config.Default(), gate)
}

func TestDiscoverFromSitemap(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlset(srv.URL+"/a", srv.URL+"/b#frag", srv.URL+"/a", "https://other.example.org/x"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	gate := &fakeGate{}
	result, err := newDiscoverer(gate).Discover(context.Background(), types.CanonicalURL(srv.URL+"/"))
	require.NoError(t, err)

	assert.Equal(t, []types.CanonicalURL{
		types.CanonicalURL(srv.URL + "/a"),
		types.CanonicalURL(srv.URL + "/b"),
	}, result.URLs)
	assert.Equal(t, 1, result.OffHost)
	assert.Equal(t, []string{srv.URL + "/sitemap.xml"}, result.Sitemaps)
	assert.GreaterOrEqual(t, gate.waits.Load(), int32(3), "every sitemap request takes a rate slot")
}

func TestDiscoverFollowsIndexOneLevel(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sitemapIndex(srv.URL+"/posts.xml", srv.URL+"/nested-index.xml"))
	})
	mux.HandleFunc("/posts.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlset(srv.URL+"/post-1", srv.URL+"/post-2"))
	})
	mux.HandleFunc("/nested-index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sitemapIndex(srv.URL+"/deep.xml"))
	})
	mux.HandleFunc("/deep.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, urlset(srv.URL+"/too-deep"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	result, err := newDiscoverer(&fakeGate{}).Discover(context.Background(), types.CanonicalURL(srv.URL+"/"))
	require.NoError(t, err)

	assert.Equal(t, []types.CanonicalURL{
		types.CanonicalURL(srv.URL + "/post-1"),
		types.CanonicalURL(srv.URL + "/post-2"),
	}, result.URLs)
}

func TestDiscoverRobotsSitemapDirective(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/custom-map.xml.gz", func(w http.ResponseWriter, r *http.Request) {
		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, urlset(srv.URL+"/from-robots"))
		gz.Close()
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	gate := &fakeGate{sitemaps: []string{srv.URL + "/custom-map.xml.gz"}}
	result, err := newDiscoverer(gate).Discover(context.Background(), types.CanonicalURL(srv.URL+"/"))
	require.NoError(t, err)

	assert.Equal(t, []types.CanonicalURL{types.CanonicalURL(srv.URL + "/from-robots")}, result.URLs)
}

func TestDiscoverMissingOrBrokenSitemap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<urlset><url><loc>broken")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result, err := newDiscoverer(&fakeGate{}).Discover(context.Background(), types.CanonicalURL(srv.URL+"/"))
	require.NoError(t, err)
	assert.Empty(t, result.URLs)
	assert.Empty(t, result.Sitemaps)
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newDiscoverer(&fakeGate{}).Discover(ctx, "https://example.com/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseSitemap(t *testing.T) {
	doc, err := ParseSitemap([]byte(urlset("https://example.com/a")))
	require.NoError(t, err)
	assert.Equal(t, "urlset", doc.XMLName.Local)
	require.Len(t, doc.URLs, 1)
	assert.Equal(t, "https://example.com/a", doc.URLs[0].Loc)

	_, err = ParseSitemap([]byte("not xml at all <"))
	assert.Error(t, err)
}
