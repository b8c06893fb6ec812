// Package app wires the configured store, sources and workers together and
// runs them on their schedules.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/PRYePR/moreyudeals-sub000/internal/affiliate"
	"github.com/PRYePR/moreyudeals-sub000/internal/config"
	"github.com/PRYePR/moreyudeals-sub000/internal/dedup"
	"github.com/PRYePR/moreyudeals-sub000/internal/health"
	"github.com/PRYePR/moreyudeals-sub000/internal/metrics"
	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/normalizer"
	"github.com/PRYePR/moreyudeals-sub000/internal/notifier"
	"github.com/PRYePR/moreyudeals-sub000/internal/processor"
	"github.com/PRYePR/moreyudeals-sub000/internal/scheduler"
	"github.com/PRYePR/moreyudeals-sub000/internal/scraper"
	"github.com/PRYePR/moreyudeals-sub000/internal/sources"
	"github.com/PRYePR/moreyudeals-sub000/internal/sources/preisjaeger"
	"github.com/PRYePR/moreyudeals-sub000/internal/sources/sparhamster"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage/memory"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage/sqlite"
	"github.com/PRYePR/moreyudeals-sub000/internal/translation"
	"github.com/PRYePR/moreyudeals-sub000/internal/validator"
)

const translationTask = "translation"

var (
	ErrUnknownSource       = errors.New("unknown source")
	ErrBusy                = errors.New("run already in progress")
	ErrTranslationDisabled = errors.New("translation is disabled")
)

// source pairs a fetcher with its monitor. mu keeps scheduled and manual
// runs of the same source from overlapping.
type source struct {
	mu      sync.Mutex
	src     sources.Source
	monitor *health.Monitor
}

type App struct {
	cfg       *config.Config
	store     storage.Store
	metrics   *metrics.Metrics
	unmatched *normalizer.UnmatchedTracker
	alerts    *notifier.Client
	sources   map[string]*source
	worker    *translation.Worker
	// translating guards the worker the same way source.mu guards a fetch.
	translating sync.Mutex
}

// OpenStore opens the backend named by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		return storage.New(ctx, cfg.ProjectID)
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// New builds the pipeline on top of store. m may be nil.
func New(ctx context.Context, cfg *config.Config, store storage.Store, m *metrics.Metrics) (*App, error) {
	if m == nil {
		m = metrics.New()
	}
	a := &App{cfg: cfg, store: store, metrics: m, alerts: notifier.New(cfg.AlertWebhookURL), sources: make(map[string]*source)}

	merchants, err := normalizer.LoadAliasTable(cfg.MerchantsPath, "merchants.json")
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant aliases: %w", err)
	}
	categories, err := normalizer.LoadAliasTable(cfg.CategoriesPath, "categories.json")
	if err != nil {
		return nil, fmt.Errorf("failed to load category aliases: %w", err)
	}
	a.unmatched = normalizer.NewUnmatchedTracker(m.UnmatchedCategory)
	norm := normalizer.New(merchants, categories,
		normalizer.WithUnmatchedTracker(a.unmatched),
		normalizer.WithLanguage(cfg.Translation.SourceLang))

	proc := processor.New(store,
		dedup.New(store, dedup.WithWindow(cfg.DedupWindow)),
		newResolver(cfg),
		validator.New())

	selectors := scraper.LoadConfig(cfg.SelectorsPath)
	pacer := scraper.Pacer{Min: cfg.RequestDelay.Min, Max: cfg.RequestDelay.Max}
	newMonitor := func(name string) *health.Monitor {
		return health.New(name, health.Config{
			FailureThreshold: cfg.HealthFailureThreshold,
			DegradedDuration: cfg.HealthDegradedDuration,
			OnChange:         a.healthChanged,
		})
	}

	if cfg.Sparhamster.Enabled {
		client := scraper.New(scraperConfig(cfg, cfg.Sparhamster.BaseURL), nil)
		mon := newMonitor(sparhamster.Name)
		src := sparhamster.New(sparhamster.Config{
			BaseURL:     cfg.Sparhamster.BaseURL,
			APIPageSize: cfg.Sparhamster.APIPageSize,
			Precedence:  cfg.Sparhamster.Precedence,
		}, client, selectors.Sparhamster, norm, proc, store, mon, pacer)
		a.sources[src.Name()] = &source{src: src, monitor: mon}
	}

	if cfg.Preisjaeger.Enabled {
		scfg := scraperConfig(cfg, cfg.Preisjaeger.BaseURL)
		detail := scraper.New(scfg, nil)
		var list scraper.Fetcher = detail
		if cfg.Preisjaeger.Renderer == config.RendererBrowser {
			list = scraper.NewBrowserFetcher(scfg, selectors.Preisjaeger.WaitFor)
		}
		mon := newMonitor(preisjaeger.Name)
		src := preisjaeger.New(preisjaeger.Config{
			BaseURL:        cfg.Preisjaeger.BaseURL,
			MaxDetailPages: cfg.Preisjaeger.MaxDetailPages,
		}, list, detail, selectors.Preisjaeger, norm, proc, store, mon, pacer)
		a.sources[src.Name()] = &source{src: src, monitor: mon}
	}

	if cfg.Translation.Enabled {
		t, err := translation.NewGeminiTranslator(ctx, cfg.Translation.APIKey, cfg.Translation.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create translator: %w", err)
		}
		if t != nil {
			a.worker = translation.NewWorker(store, t, translation.Config{
				SourceLang: cfg.Translation.SourceLang,
				TargetLang: cfg.Translation.TargetLang,
				BatchSize:  cfg.Translation.BatchSize,
			})
		}
	}

	slog.Info("Pipeline configured", "sources", a.SourceNames(), "store", cfg.StoreBackend, "translation", a.worker != nil)
	return a, nil
}

// healthChanged fans a mode transition out to metrics and the alert webhook.
func (a *App) healthChanged(source string, from, to models.HealthMode) {
	a.metrics.HealthChanged(source, from, to)
	var state models.HealthState
	if s, ok := a.sources[source]; ok {
		state = s.monitor.State()
	}
	a.alerts.HealthChanged(source, from, to, state)
}

func newResolver(cfg *config.Config) *affiliate.Resolver {
	var networks []affiliate.Network
	if cfg.AmazonAffiliateTag != "" {
		networks = append(networks, affiliate.Amazon{Tag: cfg.AmazonAffiliateTag})
	}
	networks = append(networks,
		affiliate.NewStub("awin", "mediamarkt", "saturn"),
		affiliate.NewStub("impact", "zalando"))
	return affiliate.New(affiliate.Config{
		CloakHosts: cfg.CloakHosts,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.HTTPTimeout,
	}, nil, networks...)
}

// scraperConfig allows only the host of baseURL.
func scraperConfig(cfg *config.Config, baseURL string) scraper.Config {
	var allowed []string
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		allowed = append(allowed, u.Hostname())
	}
	return scraper.Config{
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.HTTPTimeout,
		MaxRetries:        cfg.MaxRetries,
		RequestsPerSecond: cfg.RequestsPerSecond,
		AllowedDomains:    allowed,
	}
}

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

func (a *App) MetricsHandler() http.Handler { return a.metrics.Handler() }

// UnmatchedCategories counts raw category names seen without an alias, keyed
// by "source|category".
func (a *App) UnmatchedCategories() map[string]int { return a.unmatched.Snapshot() }

// SourceNames lists the enabled sources in name order.
func (a *App) SourceNames() []string {
	names := make([]string, 0, len(a.sources))
	for name := range a.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health reports the circuit state of every enabled source.
func (a *App) Health() map[string]models.HealthState {
	out := make(map[string]models.HealthState, len(a.sources))
	for name, s := range a.sources {
		out[name] = s.monitor.State()
	}
	return out
}

// Fetch runs one fetch of the named source. It returns ErrBusy instead of
// waiting when a run of that source is already in flight.
func (a *App) Fetch(ctx context.Context, name string) (models.FetchResult, error) {
	s, ok := a.sources[name]
	if !ok {
		return models.FetchResult{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	if !s.mu.TryLock() {
		return models.FetchResult{}, fmt.Errorf("%s: %w", name, ErrBusy)
	}
	defer s.mu.Unlock()

	res := s.src.Fetch(ctx)
	a.metrics.ObserveFetch(res)
	return res, nil
}

// Translate runs one translation batch.
func (a *App) Translate(ctx context.Context) (translation.Stats, error) {
	if a.worker == nil {
		return translation.Stats{}, ErrTranslationDisabled
	}
	if !a.translating.TryLock() {
		return translation.Stats{}, fmt.Errorf("%s: %w", translationTask, ErrBusy)
	}
	defer a.translating.Unlock()

	stats, err := a.worker.RunOnce(ctx)
	a.metrics.ObserveTranslation(stats.Completed, stats.Failed)
	return stats, err
}

// Run starts one scheduler per source plus the translation worker and blocks
// until ctx is cancelled. In-flight runs finish before Run returns.
func (a *App) Run(ctx context.Context) error {
	hook := scheduler.WithRunHook(a.metrics.SchedulerRun)
	type job struct {
		s    *scheduler.Scheduler
		task scheduler.Task
	}
	var jobs []job

	for _, name := range a.SourceNames() {
		s, err := scheduler.New(a.cfg.FetchInterval.Min, a.cfg.FetchInterval.Max, scheduler.WithName(name), hook)
		if err != nil {
			return fmt.Errorf("scheduler for %s: %w", name, err)
		}
		jobs = append(jobs, job{s: s, task: func(ctx context.Context) error {
			_, err := a.Fetch(ctx, name)
			if errors.Is(err, ErrBusy) {
				slog.Warn("Skipping scheduled fetch, manual run in progress", "source", name)
				return nil
			}
			return err
		}})
	}
	if a.worker != nil {
		iv := a.cfg.Translation.Interval
		s, err := scheduler.New(iv.Min, iv.Max, scheduler.WithName(translationTask), hook)
		if err != nil {
			return fmt.Errorf("scheduler for %s: %w", translationTask, err)
		}
		jobs = append(jobs, job{s: s, task: func(ctx context.Context) error {
			_, err := a.Translate(ctx)
			if errors.Is(err, ErrBusy) {
				return nil
			}
			return err
		}})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j.s.Start(gctx, j.task)
		g.Go(func() error {
			<-gctx.Done()
			j.s.Stop()
			j.s.Wait()
			return nil
		})
	}
	slog.Info("Schedulers running", "count", len(jobs))
	return g.Wait()
}

// Close flushes pending alerts and releases the store. Call it only after
// Run has returned.
func (a *App) Close() error {
	a.alerts.Wait()
	return a.store.Close()
}
