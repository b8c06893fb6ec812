// Package sparhamster integrates sparhamster.at, a WordPress deal blog. The
// post API supplies body and timestamps; the listing HTML adds price,
// merchant and image data the API lacks.
package sparhamster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/normalizer"
	"github.com/PRYePR/moreyudeals-sub000/internal/scraper"
	"github.com/PRYePR/moreyudeals-sub000/internal/sources"
)

const Name = "sparhamster"

const (
	DefaultBaseURL             = "https://www.sparhamster.at"
	DefaultAPIPageSize         = 40
	DefaultHTMLPages           = 3
	DefaultPaginationThreshold = 5
)

// Client is the transport this source needs.
type Client interface {
	FetchJSON(ctx context.Context, pageURL string, v any) error
	FetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error)
}

type Config struct {
	BaseURL     string
	APIPageSize int
	// HTMLPages caps listing pages read, both for enrichment and for the HTML-only path.
	HTMLPages int
	// PaginationThreshold is how many new cards page 1 must yield before page 2 is read.
	PaginationThreshold int
	Precedence          normalizer.Precedence
}

type Source struct {
	cfg        Config
	client     Client
	selectors  scraper.CardSelectors
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

func New(cfg Config, client Client, sel scraper.CardSelectors, n *normalizer.Normalizer,
	p sources.Processor, known sources.KnownIDs, m sources.Monitor, pacer scraper.Pacer, opts ...Option) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIPageSize <= 0 {
		cfg.APIPageSize = DefaultAPIPageSize
	}
	if cfg.HTMLPages <= 0 {
		cfg.HTMLPages = DefaultHTMLPages
	}
	if cfg.PaginationThreshold <= 0 {
		cfg.PaginationThreshold = DefaultPaginationThreshold
	}
	if cfg.Precedence == "" {
		cfg.Precedence = normalizer.PrecedenceHTML
	}
	s := &Source{cfg: cfg, client: client, selectors: sel, normalizer: n, processor: p,
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

	if mode == models.ModeDegraded {
		slog.Warn("Source degraded, using HTML only", "source", Name)
		s.fetchHTMLOnly(ctx, &res)
		return res
	}

	posts, err := s.fetchAPI(ctx, &res)
	if err != nil {
		s.monitor.RecordFailure(err)
		res.Errors = append(res.Errors, err.Error())
		slog.Warn("API fetch failed, falling back to HTML", "source", Name, "error", err)
		s.fetchHTMLOnly(ctx, &res)
		return res
	}
	s.monitor.RecordSuccess()
	res.Fetched = len(posts)

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ExternalID()
	}
	known := s.lookupKnown(ctx, ids, &res)
	fresh := sources.Unknown(ids, known)
	if len(fresh) == 0 {
		slog.Info("No new posts", "source", Name, "fetched", len(posts))
		return res
	}

	if err := s.pacer.Wait(ctx); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	cards, err := s.collectCards(ctx, fresh)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("html enrichment: %v", err))
		slog.Warn("HTML enrichment failed, continuing with API data", "source", Name, "error", err)
	}

	fetchedAt := s.now()
	isFresh := make(map[string]bool, len(fresh))
	for _, id := range fresh {
		isFresh[id] = true
	}
	inAPI := make(map[string]bool, len(posts))
	for _, post := range posts {
		id := post.ExternalID()
		inAPI[id] = true
		if !isFresh[id] {
			continue
		}
		isFresh[id] = false
		var deal *models.Deal
		if card, ok := cards[id]; ok {
			deal, err = s.normalizer.Merge(post, card, s.cfg.Precedence, fetchedAt)
		} else {
			deal, err = s.normalizer.Normalize(post, fetchedAt)
		}
		s.process(ctx, deal, err, &res)
	}

	// Cards the API page did not cover, e.g. posts older than its window.
	var extra []string
	for id := range cards {
		if !inAPI[id] {
			extra = append(extra, id)
		}
	}
	if len(extra) > 0 {
		known := s.lookupKnown(ctx, extra, &res)
		for _, id := range sources.Unknown(extra, known) {
			res.Fetched++
			deal, err := s.normalizer.Normalize(cards[id], fetchedAt)
			s.process(ctx, deal, err, &res)
		}
	}

	slog.Info("Fetch finished", "source", Name, "mode", res.Mode, "fetched", res.Fetched,
		"inserted", res.Inserted, "updated", res.Updated, "duplicates", res.Duplicates, "errors", len(res.Errors))
	return res
}

func (s *Source) fetchAPI(ctx context.Context, res *models.FetchResult) ([]models.APIPost, error) {
	var items []json.RawMessage
	if err := s.client.FetchJSON(ctx, apiURL(s.cfg.BaseURL, s.cfg.APIPageSize), &items); err != nil {
		return nil, fmt.Errorf("post API: %w", err)
	}
	posts, errs := decodePosts(items)
	for _, err := range errs {
		res.Errors = append(res.Errors, err.Error())
	}
	return posts, nil
}

// collectCards reads listing pages until every wanted id has a card or the
// page cap is reached. Cards found before an error are returned with it.
func (s *Source) collectCards(ctx context.Context, wanted []string) (map[string]models.HTMLCard, error) {
	missing := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		missing[id] = true
	}
	cards := make(map[string]models.HTMLCard)
	for page := 1; page <= s.cfg.HTMLPages && len(missing) > 0; page++ {
		if page > 1 {
			if err := s.pacer.Wait(ctx); err != nil {
				return cards, err
			}
		}
		pageCards, err := s.fetchCards(ctx, page)
		if err != nil {
			return cards, err
		}
		for _, c := range pageCards {
			if _, dup := cards[c.ID]; !dup {
				cards[c.ID] = c
			}
			delete(missing, c.ID)
		}
	}
	return cards, nil
}

func (s *Source) fetchCards(ctx context.Context, page int) ([]models.HTMLCard, error) {
	u := pageURL(s.cfg.BaseURL, s.selectors, page)
	doc, err := s.client.FetchDocument(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("listing page %d: %w", page, err)
	}
	cards := parseCards(doc, s.selectors, s.cfg.BaseURL)
	if len(cards) == 0 {
		return nil, fmt.Errorf("no '%s' elements found on %s. Potential block or page structure change", s.selectors.Card, u)
	}
	return cards, nil
}

// fetchHTMLOnly reads listing pages without the API. It never reports to the
// monitor: in degraded mode recovery is by cooldown, and on fallback the API
// failure is already recorded.
func (s *Source) fetchHTMLOnly(ctx context.Context, res *models.FetchResult) {
	for page := 1; page <= s.cfg.HTMLPages; page++ {
		if page > 1 {
			if err := s.pacer.Wait(ctx); err != nil {
				res.Errors = append(res.Errors, err.Error())
				return
			}
		}
		cards, err := s.fetchCards(ctx, page)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			return
		}
		res.Fetched += len(cards)

		byID := make(map[string]models.HTMLCard, len(cards))
		ids := make([]string, 0, len(cards))
		for _, c := range cards {
			byID[c.ID] = c
			ids = append(ids, c.ID)
		}
		fresh := sources.Unknown(ids, s.lookupKnown(ctx, ids, res))
		fetchedAt := s.now()
		for _, id := range fresh {
			deal, err := s.normalizer.Normalize(byID[id], fetchedAt)
			s.process(ctx, deal, err, res)
		}

		slog.Info("HTML page processed", "source", Name, "page", page, "cards", len(cards), "new", len(fresh))
		if len(fresh) == 0 {
			return
		}
		if page == 1 && len(fresh) <= s.cfg.PaginationThreshold {
			return
		}
	}
}

func (s *Source) lookupKnown(ctx context.Context, ids []string, res *models.FetchResult) map[string]bool {
	known, err := s.known.ExistingExternalIDs(ctx, Name, ids)
	if err != nil {
		// Without the check every id is treated as new; dedup still catches repeats.
		res.Errors = append(res.Errors, fmt.Sprintf("existence check: %v", err))
		return map[string]bool{}
	}
	return known
}

func (s *Source) process(ctx context.Context, deal *models.Deal, normErr error, res *models.FetchResult) {
	if normErr != nil {
		res.Errors = append(res.Errors, normErr.Error())
		return
	}
	outcome, err := s.processor.Process(ctx, deal)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		slog.Warn("Failed to process deal", "source", Name, "id", deal.ExternalID, "error", err)
		return
	}
	res.Count(outcome)
}
