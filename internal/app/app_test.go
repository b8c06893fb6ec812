package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PRYePR/moreyudeals-sub000/internal/config"
	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:           config.BackendMemory,
		FetchInterval:          config.Interval{Min: time.Hour, Max: time.Hour},
		HTTPTimeout:            5 * time.Second,
		HealthFailureThreshold: 3,
		HealthDegradedDuration: time.Hour,
		DedupWindow:            24 * time.Hour,
		Translation:            config.TranslationConfig{SourceLang: "de", Interval: config.Interval{Min: time.Hour, Max: time.Hour}},
	}
}

// emptySite serves a post API with no posts.
func emptySite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/wp/v2/posts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EnabledSources(t *testing.T) {
	cfg := testConfig()
	cfg.Sparhamster.Enabled = true
	cfg.Preisjaeger.Enabled = true
	cfg.Preisjaeger.Renderer = config.RendererHTTP

	a, err := New(context.Background(), cfg, memory.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"preisjaeger", "sparhamster"}, a.SourceNames())

	h := a.Health()
	require.Len(t, h, 2)
	assert.Equal(t, models.ModeNormal, h["sparhamster"].Mode)
}

func TestFetch_RunsSourceAndRecordsMetrics(t *testing.T) {
	srv := emptySite(t)
	cfg := testConfig()
	cfg.Sparhamster.Enabled = true
	cfg.Sparhamster.BaseURL = srv.URL

	a, err := New(context.Background(), cfg, memory.New(), nil)
	require.NoError(t, err)

	res, err := a.Fetch(context.Background(), "sparhamster")
	require.NoError(t, err)
	assert.Equal(t, "sparhamster", res.Source)
	assert.Equal(t, models.ModeNormal, res.Mode)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().FetchRunsTotal.WithLabelValues("sparhamster", "normal")))
}

func TestFetch_UnknownAndBusy(t *testing.T) {
	cfg := testConfig()
	cfg.Sparhamster.Enabled = true
	a, err := New(context.Background(), cfg, memory.New(), nil)
	require.NoError(t, err)

	_, err = a.Fetch(context.Background(), "mydealz")
	assert.True(t, errors.Is(err, ErrUnknownSource))

	s := a.sources["sparhamster"]
	s.mu.Lock()
	_, err = a.Fetch(context.Background(), "sparhamster")
	s.mu.Unlock()
	assert.True(t, errors.Is(err, ErrBusy))
}

func TestTranslate_DisabledWithoutKey(t *testing.T) {
	cfg := testConfig()
	cfg.Translation.Enabled = true
	a, err := New(context.Background(), cfg, memory.New(), nil)
	require.NoError(t, err)

	_, err = a.Translate(context.Background())
	assert.True(t, errors.Is(err, ErrTranslationDisabled))
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := emptySite(t)
	cfg := testConfig()
	cfg.Sparhamster.Enabled = true
	cfg.Sparhamster.BaseURL = srv.URL
	a, err := New(context.Background(), cfg, memory.New(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// The first run fires immediately on Start.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(a.Metrics().FetchRunsTotal.WithLabelValues("sparhamster", "normal")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.NoError(t, a.Close())
}

func TestRun_RejectsInvalidInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Sparhamster.Enabled = true
	cfg.FetchInterval = config.Interval{Min: time.Minute, Max: time.Second}
	a, err := New(context.Background(), cfg, memory.New(), nil)
	require.NoError(t, err)

	assert.Error(t, a.Run(context.Background()))
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig()
	s, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.StoreBackend = config.BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "deals.db")
	s, err = OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.StoreBackend = "mongo"
	_, err = OpenStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestFetch_DegradationRaisesAlert(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer site.Close()
	var alerts int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&alerts, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := testConfig()
	cfg.HealthFailureThreshold = 1
	cfg.AlertWebhookURL = hook.URL
	cfg.Sparhamster.Enabled = true
	cfg.Sparhamster.BaseURL = site.URL

	a, err := New(context.Background(), cfg, memory.New(), nil)
	require.NoError(t, err)

	res, err := a.Fetch(context.Background(), "sparhamster")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Errors)
	assert.Equal(t, models.ModeDegraded, a.Health()["sparhamster"].Mode)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().HealthDegraded.WithLabelValues("sparhamster")))

	require.NoError(t, a.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&alerts))
}
