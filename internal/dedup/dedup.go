// Package dedup decides whether a normalized deal was already stored and
// records repeat sightings.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// DefaultWindow is how far back a content-hash match is accepted.
const DefaultWindow = 7 * 24 * time.Hour

// Store is the subset of the deal store the service needs.
type Store interface {
	GetByExternalID(ctx context.Context, source, guid string) (*models.Deal, error)
	GetByContentHash(ctx context.Context, hash string, since time.Time) (*models.Deal, error)
	IncrementDuplicateCount(ctx context.Context, id string, seenAt time.Time) error
	Update(ctx context.Context, id string, patch models.DealPatch) error
}

type Service struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

type Option func(*Service)

// WithWindow sets the content-hash window. Non-positive values keep the default.
func WithWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, window: DefaultWindow, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckDuplicate looks for an exact (source, guid) match first. Only when there
// is none does it fall back to a content-hash match inside the window, so a
// guid hit is reported as such even when the content has changed.
func (s *Service) CheckDuplicate(ctx context.Context, deal *models.Deal) (models.DuplicateResult, error) {
	if deal.GUID != "" {
		existing, err := s.store.GetByExternalID(ctx, deal.SourceSite, deal.GUID)
		if err != nil {
			return models.DuplicateResult{}, fmt.Errorf("guid lookup: %w", err)
		}
		if existing != nil {
			return models.DuplicateResult{IsDuplicate: true, Match: existing, Kind: models.MatchGUID}, nil
		}
	}

	if deal.ContentHash != "" {
		existing, err := s.store.GetByContentHash(ctx, deal.ContentHash, s.now().Add(-s.window))
		if err != nil {
			return models.DuplicateResult{}, fmt.Errorf("content hash lookup: %w", err)
		}
		if existing != nil {
			return models.DuplicateResult{IsDuplicate: true, Match: existing, Kind: models.MatchContentHash}, nil
		}
	}

	return models.DuplicateResult{}, nil
}

// HandleDuplicate counts a repeat sighting of existing and backfills merchant
// information that incoming has and existing lacks.
func (s *Service) HandleDuplicate(ctx context.Context, existing, incoming *models.Deal) error {
	now := s.now()
	if err := s.store.IncrementDuplicateCount(ctx, existing.ID, now); err != nil {
		return err
	}

	patch := MerchantBackfill(existing, incoming)
	if patch.IsEmpty() {
		return nil
	}
	patch.UpdatedAt = &now
	if err := s.store.Update(ctx, existing.ID, patch); err != nil {
		return fmt.Errorf("merchant backfill: %w", err)
	}
	slog.Info("Backfilled merchant on duplicate", "id", existing.ID, "merchant", incoming.Merchant)
	return nil
}

// MerchantBackfill returns the merchant fields of incoming that existing is missing.
func MerchantBackfill(existing, incoming *models.Deal) models.DealPatch {
	var p models.DealPatch
	if existing.Merchant == "" && incoming.Merchant != "" {
		p.Merchant = &incoming.Merchant
		if existing.CanonicalMerchantID == "" && incoming.CanonicalMerchantID != "" {
			p.CanonicalMerchantID = &incoming.CanonicalMerchantID
			p.CanonicalMerchantName = &incoming.CanonicalMerchantName
		}
	}
	if existing.MerchantLogo == "" && incoming.MerchantLogo != "" {
		p.MerchantLogo = &incoming.MerchantLogo
	}
	if existing.MerchantLink == "" && incoming.MerchantLink != "" {
		p.MerchantLink = &incoming.MerchantLink
	}
	return p
}
