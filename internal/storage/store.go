// Package storage holds the deal store contract and its Firestore implementation.
// SQLite and in-memory implementations live in sub-packages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// ErrNotFound is returned by writes addressed to a deal that does not exist.
var ErrNotFound = errors.New("deal not found")

// Store is the full persistence contract of the pipeline. Consumers depend on
// narrower interfaces of their own.
type Store interface {
	GetByID(ctx context.Context, id string) (*models.Deal, error)
	// GetByExternalID looks a deal up by its exact (source, guid) pair.
	GetByExternalID(ctx context.Context, source, guid string) (*models.Deal, error)
	// GetByContentHash returns a deal with the given hash created at or after since.
	GetByContentHash(ctx context.Context, hash string, since time.Time) (*models.Deal, error)
	// ExistingExternalIDs reports which of ids are already stored for source.
	ExistingExternalIDs(ctx context.Context, source string, ids []string) (map[string]bool, error)
	// Create stores a new deal under deal.ID. It returns models.ErrDealExists
	// when the document is already there.
	Create(ctx context.Context, deal *models.Deal) (string, error)
	Update(ctx context.Context, id string, patch models.DealPatch) error
	IncrementDuplicateCount(ctx context.Context, id string, seenAt time.Time) error
	GetUntranslated(ctx context.Context, limit int) ([]*models.Deal, error)
	UpdateTranslation(ctx context.Context, id string, fields models.TranslationFields, meta models.TranslationMeta) error
	CountDeals(ctx context.Context, source string) (int64, error)
	Close() error
}
