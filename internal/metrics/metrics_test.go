package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

func TestObserveFetch(t *testing.T) {
	m := New()
	m.ObserveFetch(models.FetchResult{
		Source:     "sparhamster",
		Mode:       models.ModeNormal,
		Fetched:    12,
		Inserted:   3,
		Updated:    1,
		Duplicates: 8,
		Errors:     []string{"a", "b"},
		StartedAt:  time.Unix(1700000000, 0),
		Duration:   2 * time.Second,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRunsTotal.WithLabelValues("sparhamster", "normal")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("sparhamster", "fetched")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("sparhamster", "inserted")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("sparhamster", "duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchErrors.WithLabelValues("sparhamster")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastFetchUnixTS.WithLabelValues("sparhamster")))
}

func TestHealthChanged(t *testing.T) {
	m := New()
	m.HealthChanged("preisjaeger", models.ModeNormal, models.ModeDegraded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthDegraded.WithLabelValues("preisjaeger")))

	m.HealthChanged("preisjaeger", models.ModeDegraded, models.ModeNormal)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HealthDegraded.WithLabelValues("preisjaeger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthTransitions.WithLabelValues("preisjaeger", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthTransitions.WithLabelValues("preisjaeger", "normal")))
}

func TestSchedulerRunAndTranslation(t *testing.T) {
	m := New()
	m.SchedulerRun("sparhamster", time.Second, nil)
	m.SchedulerRun("sparhamster", time.Second, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunErrors.WithLabelValues("sparhamster")))

	m.ObserveTranslation(4, 1)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Translations.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Translations.WithLabelValues("failed")))

	m.UnmatchedCategory("sparhamster", "Gartenmöbel")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnmatchedCategories.WithLabelValues("sparhamster")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.HealthChanged("sparhamster", models.ModeNormal, models.ModeDegraded)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `deals_health_degraded{source="sparhamster"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
