// Package preisjaeger integrates preisjaeger.at, a community deal site whose
// listing embeds each thread as JSON and whose detail pages carry the full
// description in a state blob.
package preisjaeger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/normalizer"
	"github.com/PRYePR/moreyudeals-sub000/internal/scraper"
	"github.com/PRYePR/moreyudeals-sub000/internal/sources"
)

const Name = "preisjaeger"

const (
	DefaultBaseURL        = "https://www.preisjaeger.at"
	DefaultImageBaseURL   = "https://static.preisjaeger.at/threads/raw"
	DefaultMaxDetailPages = 5
	// maxConsecutiveDetailFailures aborts the detail phase of a run.
	maxConsecutiveDetailFailures = 3
)

type Config struct {
	BaseURL        string
	ImageBaseURL   string
	MaxDetailPages int
}

type Source struct {
	cfg        Config
	list       scraper.Fetcher
	detail     scraper.Fetcher
	selectors  scraper.EmbeddedSelectors
	normalizer *normalizer.Normalizer
	processor  sources.Processor
	known      sources.KnownIDs
	monitor    sources.Monitor
	pacer      scraper.Pacer
	now        func() time.Time
}

type Option func(*Source)

func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// New creates the source. list may render in a browser; detail pages are
// server-rendered and can use a plain HTTP fetcher.
func New(cfg Config, list, detail scraper.Fetcher, sel scraper.EmbeddedSelectors, n *normalizer.Normalizer,
	p sources.Processor, known sources.KnownIDs, m sources.Monitor, pacer scraper.Pacer, opts ...Option) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = DefaultImageBaseURL
	}
	if cfg.MaxDetailPages < 0 {
		cfg.MaxDetailPages = 0
	}
	s := &Source{cfg: cfg, list: list, detail: detail, selectors: sel, normalizer: n, processor: p,
		known: known, monitor: m, pacer: pacer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string { return Name }

func (s *Source) Fetch(ctx context.Context) models.FetchResult {
	start := s.now()
	mode := s.monitor.CheckHealth()
	res := sources.Begin(Name, mode, start)
	defer func() { res.Duration = s.now().Sub(start) }()

	items, err := s.fetchList(ctx, &res)
	if err != nil {
		s.monitor.RecordFailure(err)
		res.Errors = append(res.Errors, err.Error())
		slog.Warn("List fetch failed", "source", Name, "error", err)
		return res
	}
	s.monitor.RecordSuccess()
	res.Fetched = len(items)

	ids := make([]string, len(items))
	byID := make(map[string]models.ListItem, len(items))
	for i, it := range items {
		ids[i] = it.ThreadID
		byID[it.ThreadID] = it
	}
	known, err := s.known.ExistingExternalIDs(ctx, Name, ids)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("existence check: %v", err))
		known = map[string]bool{}
	}

	// Write every new item right away so nothing is lost if detail pages fail.
	fetchedAt := s.now()
	var written []models.ListItem
	for _, id := range sources.Unknown(ids, known) {
		item := byID[id]
		deal, err := s.normalizer.Normalize(item, fetchedAt)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		outcome, err := s.processor.Process(ctx, deal)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			slog.Warn("Failed to process deal", "source", Name, "id", id, "error", err)
			continue
		}
		res.Count(outcome)
		if outcome == models.OutcomeInserted {
			written = append(written, item)
		}
	}

	if mode == models.ModeDegraded {
		slog.Info("Source degraded, skipping detail pages", "source", Name, "written", len(written))
	} else {
		s.upgradeDetails(ctx, written, &res)
	}

	slog.Info("Fetch finished", "source", Name, "mode", res.Mode, "fetched", res.Fetched,
		"inserted", res.Inserted, "updated", res.Updated, "duplicates", res.Duplicates, "errors", len(res.Errors))
	return res
}

func (s *Source) fetchList(ctx context.Context, res *models.FetchResult) ([]models.ListItem, error) {
	u := strings.TrimRight(s.cfg.BaseURL, "/") + s.selectors.ListPath
	doc, err := s.list.FetchDocument(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("list page: %w", err)
	}
	items, errs := parseList(doc, s.selectors, s.cfg.ImageBaseURL)
	for _, e := range errs {
		res.Errors = append(res.Errors, e.Error())
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no '%s' elements with thread data found on %s. Potential block or page structure change", s.selectors.ListItem, u)
	}
	return items, nil
}

func (s *Source) upgradeDetails(ctx context.Context, written []models.ListItem, res *models.FetchResult) {
	if len(written) > s.cfg.MaxDetailPages {
		written = written[:s.cfg.MaxDetailPages]
	}
	failures := 0
	for _, item := range written {
		if err := s.pacer.Wait(ctx); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return
		}
		if err := s.upgradeOne(ctx, item); err != nil {
			failures++
			res.Errors = append(res.Errors, err.Error())
			slog.Warn("Detail upgrade failed", "source", Name, "id", item.ThreadID, "error", err)
			if failures >= maxConsecutiveDetailFailures {
				res.Errors = append(res.Errors, fmt.Sprintf("aborting detail pages after %d consecutive failures", failures))
				return
			}
			continue
		}
		failures = 0
	}
}

func (s *Source) upgradeOne(ctx context.Context, item models.ListItem) error {
	if item.ShareableLink == "" {
		return fmt.Errorf("thread %s has no detail link", item.ThreadID)
	}
	doc, err := s.detail.FetchDocument(ctx, item.ShareableLink)
	if err != nil {
		return fmt.Errorf("detail page %s: %w", item.ThreadID, err)
	}
	state, err := parseDetail(doc, s.selectors.StateMarker, item.ThreadID)
	if err != nil {
		return fmt.Errorf("detail page %s: %w", item.ThreadID, err)
	}
	patch, err := s.normalizer.DetailPatch(state, s.now())
	if err != nil {
		return fmt.Errorf("detail page %s: %w", item.ThreadID, err)
	}
	return s.processor.Upgrade(ctx, models.DealID(Name, item.ThreadID), patch)
}
