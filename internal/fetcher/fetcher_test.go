package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/seo_audit/internal/config"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "max-age=60")
		fmt.Fprint(w, "<html><head><title>ok</title></head><body>hello</body></html>")
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, "<html><body>compressed</body></html>")
		gz.Close()
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/loop-a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop-b", http.StatusFound)
	})
	mux.HandleFunc("/loop-b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop-a", http.StatusFound)
	})
	mux.HandleFunc("/chain/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/chain/"))
		http.Redirect(w, r, fmt.Sprintf("/chain/%d", n+1), http.StatusMovedPermanently)
	})
	mux.HandleFunc("/no-location", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, strings.Repeat("x", 2048))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(modify func(*types.AuditConfig)) *Fetcher {
	cfg := config.Default()
	cfg.RequestTimeout = time.Second
	if modify != nil {
		modify(&cfg)
	}
	return New(cfg)
}

func TestFetchOK(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(nil)

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/ok"), nil)

	require.False(t, out.Failed())
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Contains(t, string(out.Body), "hello")
	assert.Equal(t, "text/html; charset=utf-8", out.ContentType)
	assert.Equal(t, "max-age=60", out.CacheHeaders["Cache-Control"])
	assert.Equal(t, 0, out.Chain.Len())
	assert.False(t, out.Compressed)
}

func TestFetchDetectsCompression(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(nil)

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/gzip"), nil)

	require.False(t, out.Failed())
	assert.True(t, out.Compressed)
	assert.Contains(t, string(out.Body), "compressed")
}

func TestFetchSingleRedirect(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(nil)

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/moved"), nil)

	require.False(t, out.Failed())
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, types.CanonicalURL(srv.URL+"/ok"), out.FinalURL)
	require.Equal(t, 1, out.Chain.Len())
	assert.Equal(t, types.RedirectHop{URL: types.CanonicalURL(srv.URL + "/moved"), StatusCode: 301}, out.Chain.Hops[0])
	assert.False(t, out.Chain.Truncated())
}

func TestFetchRedirectLoop(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(nil)

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/loop-a"), nil)

	assert.True(t, out.Chain.Loop)
	assert.Equal(t, 2, out.Chain.Len())
	assert.Equal(t, http.StatusFound, out.StatusCode)
	assert.Empty(t, out.Body)
}

func TestFetchLongChainCapped(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(func(c *types.AuditConfig) { c.MaxRedirects = 3 })

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/chain/0"), nil)

	assert.True(t, out.Chain.TooLong)
	assert.False(t, out.Chain.Loop)
	assert.Equal(t, 3, out.Chain.Len())
}

func TestFetchMissingLocation(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(nil)

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/no-location"), nil)

	assert.Equal(t, http.StatusFound, out.StatusCode)
	assert.Equal(t, 1, out.Chain.Len())
	assert.Equal(t, ReasonMissingLocation, out.Chain.StopReason)
}

func TestFetchRedirectsDisabled(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(func(c *types.AuditConfig) { c.FollowRedirects = false })

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/moved"), nil)

	assert.Equal(t, http.StatusMovedPermanently, out.StatusCode)
	assert.Equal(t, 0, out.Chain.Len())
	assert.Equal(t, "/ok", out.Location)
}

func TestFetchHopFuncStops(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(nil)

	var seen []types.CanonicalURL
	hop := func(ctx context.Context, from, to types.CanonicalURL) error {
		seen = append(seen, to)
		return fmt.Errorf("%w: already visited", ErrStopRedirect)
	}

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/moved"), hop)

	assert.Equal(t, []types.CanonicalURL{types.CanonicalURL(srv.URL + "/ok")}, seen)
	assert.Equal(t, 1, out.Chain.Len())
	assert.Equal(t, http.StatusMovedPermanently, out.StatusCode)
	assert.Contains(t, out.Chain.StopReason, "already visited")
	assert.Equal(t, types.CanonicalURL(srv.URL+"/ok"), out.FinalURL)
}

func TestFetchNotFound(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(nil)

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/missing"), nil)

	assert.False(t, out.Failed())
	assert.Equal(t, http.StatusNotFound, out.StatusCode)
}

func TestFetchBodyCap(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(func(c *types.AuditConfig) { c.MaxBodyBytes = 1024 })

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/big"), nil)

	assert.True(t, out.BodyTruncated)
	assert.Len(t, out.Body, 1024)
}

func TestFetchTimeout(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(func(c *types.AuditConfig) { c.RequestTimeout = 50 * time.Millisecond })

	out := f.Fetch(context.Background(), types.CanonicalURL(srv.URL+"/slow"), nil)

	require.True(t, out.Failed())
	assert.Equal(t, ClassTimeout, out.ErrorClass)
	assert.Nil(t, out.Body)

	var fe *FetchError
	require.True(t, errors.As(out.Error(), &fe))
	assert.Equal(t, ClassTimeout, fe.Class)
}

func TestFetchCanceled(t *testing.T) {
	srv := newTestServer(t)
	f := newTestFetcher(nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	out := f.Fetch(ctx, types.CanonicalURL(srv.URL+"/slow"), nil)
	assert.Equal(t, ClassCanceled, out.ErrorClass)
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := newTestFetcher(nil)
	out := f.Fetch(context.Background(), types.CanonicalURL(addr+"/"), nil)

	assert.Equal(t, ClassConnectionRefused, out.ErrorClass)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassNone, Classify(nil))
	assert.Equal(t, ClassCanceled, Classify(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, ClassTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, ClassOther, Classify(errors.New("boom")))
}
