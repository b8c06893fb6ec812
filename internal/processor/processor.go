// Package processor takes one normalized deal at a time through validation,
// deduplication, affiliate resolution and persistence.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/extract"
	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage"
)

type DealProcessor struct {
	store     DealStore
	dedup     Deduplicator
	affiliate LinkResolver
	validator StructValidator
	now       func() time.Time
}

type Option func(*DealProcessor)

func WithClock(now func() time.Time) Option {
	return func(p *DealProcessor) { p.now = now }
}

// New creates a processor. resolver may be nil, which disables affiliate links.
func New(store DealStore, d Deduplicator, resolver LinkResolver, v StructValidator, opts ...Option) *DealProcessor {
	p := &DealProcessor{store: store, dedup: d, affiliate: resolver, validator: v, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process stores deal or records it as a repeat of an existing record. A
// returned error concerns this deal only.
func (p *DealProcessor) Process(ctx context.Context, deal *models.Deal) (models.Outcome, error) {
	if err := p.validator.ValidateStruct(deal); err != nil {
		return models.OutcomeSkipped, fmt.Errorf("deal %s/%s: %w", deal.SourceSite, deal.ExternalID, err)
	}

	dup, err := p.dedup.CheckDuplicate(ctx, deal)
	if err != nil {
		return models.OutcomeSkipped, fmt.Errorf("deal %s/%s: dedup: %w", deal.SourceSite, deal.ExternalID, err)
	}
	if dup.IsDuplicate {
		return p.processDuplicate(ctx, dup, deal)
	}

	now := p.now()
	p.applyAffiliate(ctx, deal)
	deal.ID = models.DealID(deal.SourceSite, deal.ExternalID)
	deal.CreatedAt = now
	deal.UpdatedAt = now
	deal.FirstSeenAt = now
	deal.LastSeenAt = now
	deal.DuplicateCount = 0
	if deal.TranslationStatus == "" {
		deal.TranslationStatus = models.TranslationPending
	}

	_, createErr := p.store.Create(ctx, deal)
	if createErr == nil {
		slog.Info("New deal added", "source", deal.SourceSite, "id", deal.ExternalID, "title", deal.Title)
		return models.OutcomeInserted, nil
	}

	// Race condition: another run created it first
	if !errors.Is(createErr, models.ErrDealExists) {
		return models.OutcomeSkipped, fmt.Errorf("failed to create deal %s: %w", deal.ID, createErr)
	}
	existing, err := p.store.GetByID(ctx, deal.ID)
	if err != nil {
		return models.OutcomeSkipped, fmt.Errorf("error recovering from race for deal %s: %w", deal.ID, err)
	}
	if existing == nil {
		slog.Warn("Race condition anomaly: deal claimed to exist but returned nil", "id", deal.ID)
		return models.OutcomeSkipped, nil
	}
	if err := p.dedup.HandleDuplicate(ctx, existing, deal); err != nil {
		return models.OutcomeSkipped, fmt.Errorf("deal %s: %w", deal.ID, err)
	}
	return models.OutcomeDuplicate, nil
}

func (p *DealProcessor) processDuplicate(ctx context.Context, dup models.DuplicateResult, deal *models.Deal) (models.Outcome, error) {
	existing := dup.Match
	if err := p.dedup.HandleDuplicate(ctx, existing, deal); err != nil {
		return models.OutcomeSkipped, fmt.Errorf("deal %s: %w", existing.ID, err)
	}
	// A content match may be a different listing; only a guid match is the same record.
	if dup.Kind != models.MatchGUID {
		slog.Debug("Duplicate content", "source", deal.SourceSite, "id", deal.ExternalID, "existing", existing.ID)
		return models.OutcomeDuplicate, nil
	}

	patch := DynamicChanges(existing, deal)
	if patch.IsEmpty() {
		return models.OutcomeDuplicate, nil
	}
	if patch.MerchantLink != nil {
		p.patchAffiliate(ctx, &patch, firstNonEmpty(deal.Merchant, existing.Merchant),
			firstNonEmpty(deal.CanonicalMerchantName, existing.CanonicalMerchantName), *patch.MerchantLink)
	}
	now := p.now()
	patch.UpdatedAt = &now
	if err := p.store.Update(ctx, existing.ID, patch); err != nil {
		return models.OutcomeSkipped, fmt.Errorf("failed to update deal %s: %w", existing.ID, err)
	}
	slog.Info("Updated deal", "source", deal.SourceSite, "id", deal.ExternalID, "title", deal.Title)
	return models.OutcomeUpdated, nil
}

// Upgrade applies detail-page data to a stored deal and resolves its
// affiliate link when the patch brings a merchant link.
func (p *DealProcessor) Upgrade(ctx context.Context, id string, patch models.DealPatch) error {
	existing, err := p.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("upgrade %s: %w", id, err)
	}
	if existing == nil {
		return fmt.Errorf("upgrade %s: %w", id, storage.ErrNotFound)
	}
	if patch.MerchantLink != nil && *patch.MerchantLink != existing.MerchantLink {
		merchant := existing.Merchant
		if patch.Merchant != nil {
			merchant = *patch.Merchant
		}
		canonical := existing.CanonicalMerchantName
		if patch.CanonicalMerchantName != nil {
			canonical = *patch.CanonicalMerchantName
		}
		p.patchAffiliate(ctx, &patch, merchant, canonical, *patch.MerchantLink)
	}
	now := p.now()
	patch.UpdatedAt = &now
	if err := p.store.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("failed to upgrade deal %s: %w", id, err)
	}
	slog.Info("Upgraded deal from detail page", "id", id)
	return nil
}

func (p *DealProcessor) applyAffiliate(ctx context.Context, deal *models.Deal) {
	if p.affiliate == nil || deal.MerchantLink == "" {
		return
	}
	res, err := p.affiliate.Process(ctx, deal.Merchant, deal.CanonicalMerchantName, deal.MerchantLink)
	if err != nil {
		slog.Warn("Affiliate resolution failed, keeping merchant link", "id", deal.ExternalID, "link", deal.MerchantLink, "error", err)
	}
	deal.AffiliateEnabled = res.Enabled
	deal.AffiliateLink = res.AffiliateLink
	deal.AffiliateNetwork = res.Network
}

func (p *DealProcessor) patchAffiliate(ctx context.Context, patch *models.DealPatch, merchant, canonical, link string) {
	if p.affiliate == nil {
		return
	}
	res, err := p.affiliate.Process(ctx, merchant, canonical, link)
	if err != nil {
		slog.Warn("Affiliate resolution failed, keeping merchant link", "link", link, "error", err)
	}
	patch.AffiliateEnabled = &res.Enabled
	patch.AffiliateLink = &res.AffiliateLink
	patch.AffiliateNetwork = &res.Network
}

// DynamicChanges returns the fields of a repeat sighting that differ from the
// stored record. Empty incoming values never clear stored ones, except that
// price, original price and discount are replaced together whenever the
// incoming deal carries a price.
func DynamicChanges(existing, incoming *models.Deal) models.DealPatch {
	var p models.DealPatch
	if incoming.Title != "" && incoming.Title != existing.Title {
		p.Title = &incoming.Title
		p.OriginalTitle = &incoming.OriginalTitle
	}
	if incoming.Price != nil && pricingChanged(existing, incoming) {
		p.ReplacePricing = true
		p.Price = incoming.Price
		p.OriginalPrice = incoming.OriginalPrice
		p.DiscountPercent = incoming.DiscountPercent
	}
	priceMoved := p.ReplacePricing && !sameFloat(existing.Price, p.Price)
	if p.Title != nil || priceMoved {
		title, price := existing.Title, existing.Price
		if p.Title != nil {
			title = *p.Title
		}
		if priceMoved {
			price = p.Price
		}
		hash := extract.ContentHash(title, existing.Description, price)
		if hash != existing.ContentHash {
			p.ContentHash = &hash
		}
	}
	if incoming.Merchant != "" && incoming.Merchant != existing.Merchant {
		p.Merchant = &incoming.Merchant
		p.CanonicalMerchantID = &incoming.CanonicalMerchantID
		p.CanonicalMerchantName = &incoming.CanonicalMerchantName
	}
	if incoming.MerchantLink != "" && incoming.MerchantLink != existing.MerchantLink {
		p.MerchantLink = &incoming.MerchantLink
	}
	if incoming.ImageURL != "" && incoming.ImageURL != existing.ImageURL {
		p.ImageURL = &incoming.ImageURL
	}
	if incoming.ExpiresAt != nil && (existing.ExpiresAt == nil || !existing.ExpiresAt.Equal(*incoming.ExpiresAt)) {
		p.ExpiresAt = incoming.ExpiresAt
	}
	return p
}

func pricingChanged(existing, incoming *models.Deal) bool {
	return !sameFloat(existing.Price, incoming.Price) ||
		!sameFloat(existing.OriginalPrice, incoming.OriginalPrice) ||
		!sameInt(existing.DiscountPercent, incoming.DiscountPercent)
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
