// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

const Namespace = "deals"

type Metrics struct {
	reg *prometheus.Registry

	// Fetch metrics
	FetchRunsTotal  *prometheus.CounterVec
	ItemsTotal      *prometheus.CounterVec
	FetchErrors     *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	LastFetchUnixTS *prometheus.GaugeVec

	// Health metrics
	HealthDegraded    *prometheus.GaugeVec
	HealthTransitions *prometheus.CounterVec

	// Scheduler metrics
	RunDuration *prometheus.HistogramVec
	RunErrors   *prometheus.CounterVec

	UnmatchedCategories *prometheus.CounterVec
	Translations        *prometheus.CounterVec
}

// New creates a private registry with Go and process collectors plus the
// pipeline metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	m := &Metrics{reg: reg}

	m.FetchRunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "fetch", Name: "runs_total",
		Help: "Fetch runs per source and health mode",
	}, []string{"source", "mode"})
	m.ItemsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "fetch", Name: "items_total",
		Help: "Items seen per source by outcome",
	}, []string{"source", "outcome"})
	m.FetchErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "fetch", Name: "errors_total",
		Help: "Errors reported in fetch results",
	}, []string{"source"})
	m.FetchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace, Subsystem: "fetch", Name: "duration_seconds",
		Help:    "Duration of fetch runs",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"source"})
	m.LastFetchUnixTS = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: "fetch", Name: "last_run_timestamp_seconds",
		Help: "Start time of the last fetch run",
	}, []string{"source"})

	m.HealthDegraded = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: "health", Name: "degraded",
		Help: "1 while the source is in degraded mode",
	}, []string{"source"})
	m.HealthTransitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "health", Name: "transitions_total",
		Help: "Health mode transitions",
	}, []string{"source", "to"})

	m.RunDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace, Subsystem: "scheduler", Name: "run_duration_seconds",
		Help:    "Duration of scheduled task runs",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"task"})
	m.RunErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "scheduler", Name: "run_errors_total",
		Help: "Scheduled runs that returned an error or panicked",
	}, []string{"task"})

	m.UnmatchedCategories = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "normalizer", Name: "unmatched_categories_total",
		Help: "Raw category names without an alias",
	}, []string{"source"})
	m.Translations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "translation", Name: "deals_total",
		Help: "Translated deals by final status",
	}, []string{"status"})

	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveFetch records one finished fetch run.
func (m *Metrics) ObserveFetch(r models.FetchResult) {
	m.FetchRunsTotal.WithLabelValues(r.Source, string(r.Mode)).Inc()
	m.ItemsTotal.WithLabelValues(r.Source, "fetched").Add(float64(r.Fetched))
	m.ItemsTotal.WithLabelValues(r.Source, models.OutcomeInserted.String()).Add(float64(r.Inserted))
	m.ItemsTotal.WithLabelValues(r.Source, models.OutcomeUpdated.String()).Add(float64(r.Updated))
	m.ItemsTotal.WithLabelValues(r.Source, models.OutcomeDuplicate.String()).Add(float64(r.Duplicates))
	m.FetchErrors.WithLabelValues(r.Source).Add(float64(len(r.Errors)))
	m.FetchDuration.WithLabelValues(r.Source).Observe(r.Duration.Seconds())
	if !r.StartedAt.IsZero() {
		m.LastFetchUnixTS.WithLabelValues(r.Source).Set(float64(r.StartedAt.Unix()))
	}
}

// HealthChanged matches health.Config.OnChange.
func (m *Metrics) HealthChanged(source string, _, to models.HealthMode) {
	v := 0.0
	if to == models.ModeDegraded {
		v = 1
	}
	m.HealthDegraded.WithLabelValues(source).Set(v)
	m.HealthTransitions.WithLabelValues(source, string(to)).Inc()
}

// SchedulerRun matches scheduler.WithRunHook.
func (m *Metrics) SchedulerRun(name string, d time.Duration, err error) {
	m.RunDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		m.RunErrors.WithLabelValues(name).Inc()
	}
}

// UnmatchedCategory matches normalizer.NewUnmatchedTracker's callback.
func (m *Metrics) UnmatchedCategory(source, _ string) {
	m.UnmatchedCategories.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveTranslation(completed, failed int) {
	m.Translations.WithLabelValues(string(models.TranslationCompleted)).Add(float64(completed))
	m.Translations.WithLabelValues(string(models.TranslationFailed)).Add(float64(failed))
}
