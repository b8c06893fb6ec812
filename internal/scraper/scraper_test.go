package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PRYePR/moreyudeals-sub000/internal/util"
)

func testClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	old := util.BaseBackoff
	util.BaseBackoff = time.Millisecond
	t.Cleanup(func() { util.BaseBackoff = old })

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return New(Config{MaxRetries: retries, AllowedDomains: []string{u.Hostname()}}, srv.Client())
}

func TestFetchDocument_SendsBrowserHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		assert.Contains(t, r.Header.Get("Accept-Language"), "de")
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		w.Write([]byte(`<html><body><h1>Hallo</h1></body></html>`))
	}))
	defer srv.Close()

	doc, err := testClient(t, srv, 0).FetchDocument(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hallo", doc.Find("h1").Text())
}

func TestFetchBody_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testClient(t, srv, 3).FetchBody(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchBody_BlockedIsNotRetried(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(code)
		}))

		_, err := testClient(t, srv, 3).FetchBody(context.Background(), srv.URL, "")
		assert.ErrorIs(t, err, ErrBlocked)
		assert.Equal(t, int32(1), calls.Load())
		srv.Close()
	}
}

func TestFetchBody_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(t, srv, 3).FetchBody(context.Background(), srv.URL, "")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchBody_RejectsHostOutsideAllowlist(t *testing.T) {
	c := New(Config{AllowedDomains: []string{"sparhamster.at"}}, &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request to %s", r.URL)
		return nil, context.Canceled
	})})

	_, err := c.FetchBody(context.Background(), "https://evil.example/", "")
	assert.ErrorContains(t, err, "not in allowlist")
	_, err = c.FetchBody(context.Background(), "ftp://www.sparhamster.at/", "")
	assert.ErrorContains(t, err, "invalid URL scheme")
}

func TestCheckAllowed_MatchesRegistrableDomain(t *testing.T) {
	allowed := map[string]bool{"preisjaeger.at": true}
	_, err := CheckAllowed(allowed, "https://www.preisjaeger.at/deals/1")
	assert.NoError(t, err)
	_, err = CheckAllowed(allowed, "https://preisjaeger.at.evil.example/")
	assert.Error(t, err)
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`[{"id": 7}]`))
	}))
	defer srv.Close()

	var out []struct {
		ID int `json:"id"`
	}
	require.NoError(t, testClient(t, srv, 0).FetchJSON(context.Background(), srv.URL, &out))
	require.Len(t, out, 1)
	assert.Equal(t, 7, out[0].ID)
}

func TestLoadSelectorsFromBytes_PartialOverride(t *testing.T) {
	sel, err := LoadSelectorsFromBytes([]byte(`{"sparhamster": {"card": "div.deal"}}`))
	require.NoError(t, err)
	assert.Equal(t, "div.deal", sel.Sparhamster.Card)
	assert.Equal(t, "article.thread", sel.Preisjaeger.ListItem)

	_, err = LoadSelectorsFromBytes([]byte(`{not json`))
	assert.Error(t, err)
	_, err = LoadSelectorsFromBytes([]byte(`{"sparhamster": {"card": ""}}`))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, DefaultSelectors(), LoadConfig(""))
	assert.Equal(t, DefaultSelectors(), LoadConfig(filepath.Join(t.TempDir(), "missing.json")))

	path := filepath.Join(t.TempDir(), "selectors.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"preisjaeger": {"list_item": "div.thread"}}`), 0o644))
	assert.Equal(t, "div.thread", LoadConfig(path).Preisjaeger.ListItem)
}

func TestPacer(t *testing.T) {
	p := Pacer{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond, Rand: func() float64 { return 0.5 }}
	assert.Equal(t, 15*time.Millisecond, p.Delay())
	assert.Equal(t, 5*time.Millisecond, Pacer{Min: 5 * time.Millisecond}.Delay())
	assert.NoError(t, Pacer{}.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Pacer{Min: time.Hour, Max: 2 * time.Hour}.Wait(ctx), context.Canceled)
}

func TestBrowserFetcher_RejectsHostOutsideAllowlist(t *testing.T) {
	b := NewBrowserFetcher(Config{AllowedDomains: []string{"preisjaeger.at"}}, "")
	_, err := b.FetchDocument(context.Background(), "https://evil.example/")
	assert.ErrorContains(t, err, "not in allowlist")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
