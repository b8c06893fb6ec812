package affiliate

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTag = "moreyu-21"

// failingTransport fails the test if any request is made.
type failingTransport struct{ t *testing.T }

func (f failingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.t.Errorf("unexpected request to %s", req.URL)
	return nil, errors.New("no network in this test")
}

func offlineResolver(t *testing.T) *Resolver {
	return New(Config{}, &http.Client{Transport: failingTransport{t}},
		Amazon{Tag: testTag}, NewStub("awin", "mediamarkt", "saturn"), NewStub("impact"))
}

func TestProcess_DirectAmazonLinkNeedsNoRequest(t *testing.T) {
	r := offlineResolver(t)
	res, err := r.Process(t.Context(), "Amazon", "Amazon", "https://www.amazon.de/Sony-Kopfhoerer/dp/B0C1234567/ref=sr_1_1?tag=someone-21&psc=1")
	require.NoError(t, err)
	assert.True(t, res.Enabled)
	assert.Equal(t, "amazon", res.Network)
	assert.Equal(t, "https://www.amazon.de/dp/B0C1234567?tag="+testTag, res.AffiliateLink)
}

func TestProcess_QueryParamDecodedWithoutFetch(t *testing.T) {
	r := offlineResolver(t)
	tests := []string{
		"https://click.linksynergy.com/deeplink?id=x&murl=" + url.QueryEscape("https://www.amazon.at/dp/B0C7654321"),
		"https://go.redirectingat.com/?id=1&url=" + url.QueryEscape("https://www.amazon.at/dp/B0C7654321"),
	}
	for _, link := range tests {
		res, err := r.Process(t.Context(), "", "", link)
		require.NoError(t, err, link)
		assert.Equal(t, "https://www.amazon.at/dp/B0C7654321?tag="+testTag, res.AffiliateLink)
	}
}

func TestProcess_UnsupportedMerchantKeepsLink(t *testing.T) {
	r := offlineResolver(t)

	res, err := r.Process(t.Context(), "Kleiner Shop", "Kleiner Shop", "https://kleiner-shop.at/p/1")
	require.NoError(t, err)
	assert.False(t, res.Enabled)
	assert.Empty(t, res.AffiliateLink)

	res, err = r.Process(t.Context(), "MediaMarkt", "MediaMarkt", "https://www.mediamarkt.at/p/1")
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.False(t, res.Enabled)

	res, err = r.Process(t.Context(), "", "", "")
	require.NoError(t, err)
	assert.False(t, res.Enabled)
}

func cloakServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.amazon.de/dp/B0C1234567?tag=foreign-21", http.StatusFound)
	})
	mux.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/redirect", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/pixel", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><img src="https://track.example/p.gif?url=`+url.QueryEscape("https://www.amazon.de/dp/B0C3333333")+`"></body></html>`)
	})
	mux.HandleFunc("/meta", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta http-equiv="Refresh" content="0; URL='https://www.amazon.de/gp/product/B0C4444444'"></head></html>`)
	})
	mux.HandleFunc("/script", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script>var target = "https:\/\/www.amazon.at\/dp\/B0C5555555\/ref=x";</script></html>`)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>Weiterleitung fehlgeschlagen</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProcess_ResolvesCloakedLinks(t *testing.T) {
	srv := cloakServer(t)
	host := mustHost(t, srv.URL)
	r := New(Config{CloakHosts: []string{host}, UserAgent: "test"}, srv.Client(), Amazon{Tag: testTag})

	tests := []struct {
		path string
		want string
	}{
		{"/redirect", "https://www.amazon.de/dp/B0C1234567?tag=" + testTag},
		{"/chain", "https://www.amazon.de/dp/B0C1234567?tag=" + testTag},
		{"/pixel", "https://www.amazon.de/dp/B0C3333333?tag=" + testTag},
		{"/meta", "https://www.amazon.de/dp/B0C4444444?tag=" + testTag},
		{"/script", "https://www.amazon.at/dp/B0C5555555?tag=" + testTag},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res, err := r.Process(t.Context(), "", "", srv.URL+tt.path)
			require.NoError(t, err)
			assert.True(t, res.Enabled)
			assert.Equal(t, tt.want, res.AffiliateLink)
		})
	}
}

func TestProcess_UnresolvableCloakDisables(t *testing.T) {
	srv := cloakServer(t)
	r := New(Config{CloakHosts: []string{mustHost(t, srv.URL)}}, srv.Client(), Amazon{Tag: testTag})

	res, err := r.Process(t.Context(), "", "", srv.URL+"/empty")
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.False(t, res.Enabled)
}

func TestProcess_CloakSkippedForMerchantWithoutProgram(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Redirect(w, r, "https://kleiner-shop.at/p/1", http.StatusFound)
	}))
	t.Cleanup(srv.Close)
	r := New(Config{CloakHosts: []string{mustHost(t, srv.URL)}}, srv.Client(),
		Amazon{Tag: testTag}, NewStub("awin", "mediamarkt"))

	res, err := r.Process(t.Context(), "Kleiner Shop", "Kleiner Shop", srv.URL+"/go/123")
	require.NoError(t, err)
	assert.False(t, res.Enabled)
	assert.Zero(t, requests)

	res, err = r.Process(t.Context(), "Amazon", "Amazon", srv.URL+"/go/124")
	require.NoError(t, err)
	assert.False(t, res.Enabled)
	assert.Equal(t, 1, requests)
}

func TestNetworkClaims(t *testing.T) {
	assert.True(t, Amazon{}.Claims(""))
	assert.True(t, Amazon{}.Claims("amazon-de"))
	assert.False(t, Amazon{}.Claims("kleiner-shop"))
	assert.True(t, NewStub("awin", "saturn").Claims("saturn"))
	assert.False(t, NewStub("awin", "saturn").Claims(""))
}

func TestAmazonBuild_SearchPageKeepsPath(t *testing.T) {
	u, _ := url.Parse("https://www.amazon.de/s?k=kopfhoerer&tag=old-21")
	got, err := Amazon{Tag: testTag}.Build(u)
	require.NoError(t, err)
	parsed, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/s", parsed.Path)
	assert.Equal(t, testTag, parsed.Query().Get("tag"))
	assert.Equal(t, "kopfhoerer", parsed.Query().Get("k"))

	_, err = Amazon{}.Build(u)
	assert.Error(t, err)
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Hostname()
}
