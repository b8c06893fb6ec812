// Package storetest holds contract tests shared by every storage.Store implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage"
)

// NewDeal returns a minimal valid deal created at createdAt.
func NewDeal(source, externalID string, createdAt time.Time) *models.Deal {
	price := 19.99
	return &models.Deal{
		ID:                models.DealID(source, externalID),
		SourceSite:        source,
		ExternalID:        externalID,
		GUID:              "https://" + source + ".example/deal/" + externalID,
		Title:             "Deal " + externalID,
		OriginalTitle:     "Deal " + externalID,
		Price:             &price,
		Currency:          models.DefaultCurrency,
		Categories:        []string{models.FallbackCategory},
		ContentHash:       "hash-" + externalID,
		PublishedAt:       createdAt,
		FirstSeenAt:       createdAt,
		LastSeenAt:        createdAt,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
		TranslationStatus: models.TranslationPending,
	}
}

// Run exercises the full Store contract against a fresh store from open.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("CreateAndLookup", func(t *testing.T) {
		s := open(t)
		d := NewDeal("sparhamster", "1", base)
		id, err := s.Create(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, d.ID, id)

		got, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Deal 1", got.Title)
		assert.InDelta(t, 19.99, *got.Price, 0.0001)

		got, err = s.GetByExternalID(ctx, "sparhamster", d.GUID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.ID)

		got, err = s.GetByExternalID(ctx, "preisjaeger", d.GUID)
		require.NoError(t, err)
		assert.Nil(t, got, "guid lookups are scoped to the source")

		missing, err := s.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("CreateTwiceReportsExists", func(t *testing.T) {
		s := open(t)
		_, err := s.Create(ctx, NewDeal("sparhamster", "1", base))
		require.NoError(t, err)
		_, err = s.Create(ctx, NewDeal("sparhamster", "1", base))
		assert.True(t, errors.Is(err, models.ErrDealExists))
	})

	t.Run("ContentHashWindow", func(t *testing.T) {
		s := open(t)
		d := NewDeal("sparhamster", "1", base)
		d.ContentHash = "abc"
		_, err := s.Create(ctx, d)
		require.NoError(t, err)

		got, err := s.GetByContentHash(ctx, "abc", base.Add(-time.Hour))
		require.NoError(t, err)
		require.NotNil(t, got)

		got, err = s.GetByContentHash(ctx, "abc", base.Add(time.Hour))
		require.NoError(t, err)
		assert.Nil(t, got, "records created before the window are ignored")
	})

	t.Run("ExistingExternalIDs", func(t *testing.T) {
		s := open(t)
		for _, id := range []string{"1", "2"} {
			_, err := s.Create(ctx, NewDeal("preisjaeger", id, base))
			require.NoError(t, err)
		}
		known, err := s.ExistingExternalIDs(ctx, "preisjaeger", []string{"1", "2", "3"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"1": true, "2": true}, known)

		known, err = s.ExistingExternalIDs(ctx, "sparhamster", []string{"1"})
		require.NoError(t, err)
		assert.Empty(t, known)

		known, err = s.ExistingExternalIDs(ctx, "preisjaeger", nil)
		require.NoError(t, err)
		assert.Empty(t, known)
	})

	t.Run("UpdateAndIncrement", func(t *testing.T) {
		s := open(t)
		d := NewDeal("sparhamster", "1", base)
		_, err := s.Create(ctx, d)
		require.NoError(t, err)

		price := 9.99
		merchant := "Amazon"
		require.NoError(t, s.Update(ctx, d.ID, models.DealPatch{Price: &price, Merchant: &merchant}))
		seen := base.Add(time.Hour)
		require.NoError(t, s.IncrementDuplicateCount(ctx, d.ID, seen))
		require.NoError(t, s.IncrementDuplicateCount(ctx, d.ID, seen))

		got, err := s.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.InDelta(t, 9.99, *got.Price, 0.0001)
		assert.Equal(t, "Amazon", got.Merchant)
		assert.Equal(t, 2, got.DuplicateCount)
		assert.True(t, got.LastSeenAt.Equal(seen))

		err = s.Update(ctx, "missing", models.DealPatch{Price: &price})
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("Translation", func(t *testing.T) {
		s := open(t)
		for i, id := range []string{"1", "2", "3"} {
			_, err := s.Create(ctx, NewDeal("sparhamster", id, base.Add(time.Duration(i)*time.Minute)))
			require.NoError(t, err)
		}
		pending, err := s.GetUntranslated(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "1", pending[0].ExternalID)

		title := "Deal one"
		require.NoError(t, s.UpdateTranslation(ctx, pending[0].ID,
			models.TranslationFields{Title: &title},
			models.TranslationMeta{Status: models.TranslationCompleted, Provider: "gemini", Language: "en", TranslatedAt: base}))

		got, err := s.GetByID(ctx, pending[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "Deal one", got.Title)
		assert.Equal(t, "Deal 1", got.OriginalTitle)
		assert.Equal(t, models.TranslationCompleted, got.TranslationStatus)

		pending, err = s.GetUntranslated(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		n, err := s.CountDeals(ctx, "sparhamster")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		n, err = s.CountDeals(ctx, "preisjaeger")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}
