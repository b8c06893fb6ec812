package processor

import (
	"context"

	"github.com/PRYePR/moreyudeals-sub000/internal/affiliate"
	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// DealStore abstracts the storage layer for deal data.
type DealStore interface {
	GetByID(ctx context.Context, id string) (*models.Deal, error)
	Create(ctx context.Context, deal *models.Deal) (string, error)
	Update(ctx context.Context, id string, patch models.DealPatch) error
}

// Deduplicator decides whether a deal is already stored and records repeat sightings.
type Deduplicator interface {
	CheckDuplicate(ctx context.Context, deal *models.Deal) (models.DuplicateResult, error)
	HandleDuplicate(ctx context.Context, existing, incoming *models.Deal) error
}

// LinkResolver turns merchant links into affiliate links.
type LinkResolver interface {
	Process(ctx context.Context, merchant, canonicalMerchantName, link string) (affiliate.Result, error)
}

// StructValidator checks a deal before it is stored.
type StructValidator interface {
	ValidateStruct(s interface{}) error
}
