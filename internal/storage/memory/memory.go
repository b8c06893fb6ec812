// Package memory is an in-process deal store for dry runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage"
)

type Store struct {
	mu    sync.RWMutex
	deals map[string]*models.Deal
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{deals: make(map[string]*models.Deal)}
}

func (s *Store) Close() error { return nil }

// clone copies the fields a caller could mutate through pointers.
func clone(d *models.Deal) *models.Deal {
	c := *d
	c.Categories = append([]string(nil), d.Categories...)
	c.ContentBlocks = append([]models.ContentBlock(nil), d.ContentBlocks...)
	if d.Price != nil {
		v := *d.Price
		c.Price = &v
	}
	if d.OriginalPrice != nil {
		v := *d.OriginalPrice
		c.OriginalPrice = &v
	}
	if d.DiscountPercent != nil {
		v := *d.DiscountPercent
		c.DiscountPercent = &v
	}
	if d.ExpiresAt != nil {
		v := *d.ExpiresAt
		c.ExpiresAt = &v
	}
	return &c
}

func (s *Store) GetByID(_ context.Context, id string) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.deals[id]; ok {
		return clone(d), nil
	}
	return nil, nil
}

func (s *Store) GetByExternalID(_ context.Context, source, guid string) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.deals {
		if d.SourceSite == source && d.GUID == guid {
			return clone(d), nil
		}
	}
	return nil, nil
}

func (s *Store) GetByContentHash(_ context.Context, hash string, since time.Time) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Deal
	for _, d := range s.deals {
		if d.ContentHash != hash || d.CreatedAt.Before(since) {
			continue
		}
		if best == nil || d.CreatedAt.After(best.CreatedAt) {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}
	return clone(best), nil
}

func (s *Store) ExistingExternalIDs(_ context.Context, source string, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	known := make(map[string]bool)
	for _, id := range ids {
		if _, ok := s.deals[models.DealID(source, id)]; ok {
			known[id] = true
		}
	}
	return known, nil
}

func (s *Store) Create(_ context.Context, deal *models.Deal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deal.ID == "" {
		deal.ID = models.DealID(deal.SourceSite, deal.ExternalID)
	}
	if _, ok := s.deals[deal.ID]; ok {
		return "", models.ErrDealExists
	}
	s.deals[deal.ID] = clone(deal)
	return deal.ID, nil
}

func (s *Store) Update(_ context.Context, id string, patch models.DealPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return storage.ErrNotFound
	}
	patch.Apply(d)
	return nil
}

func (s *Store) IncrementDuplicateCount(_ context.Context, id string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return storage.ErrNotFound
	}
	d.DuplicateCount++
	d.LastSeenAt = seenAt
	d.UpdatedAt = seenAt
	return nil
}

func (s *Store) GetUntranslated(_ context.Context, limit int) ([]*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Deal
	for _, d := range s.deals {
		if d.TranslationStatus == models.TranslationPending {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateTranslation(_ context.Context, id string, fields models.TranslationFields, meta models.TranslationMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return storage.ErrNotFound
	}
	models.ApplyTranslation(d, fields, meta)
	return nil
}

func (s *Store) CountDeals(_ context.Context, source string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, d := range s.deals {
		if source == "" || d.SourceSite == source {
			n++
		}
	}
	return n, nil
}

// All returns a copy of every stored deal, ordered by creation time.
func (s *Store) All() []*models.Deal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Deal, 0, len(s.deals))
	for _, d := range s.deals {
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
