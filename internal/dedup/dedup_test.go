package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage/memory"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage/storetest"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, now time.Time) (*Service, *memory.Store, *models.Deal) {
	t.Helper()
	store := memory.New()
	existing := storetest.NewDeal("sparhamster", "1", base)
	existing.ContentHash = "same-hash"
	_, err := store.Create(t.Context(), existing)
	require.NoError(t, err)
	return New(store, WithClock(func() time.Time { return now })), store, existing
}

func TestCheckDuplicate_GUIDWinsOverContent(t *testing.T) {
	svc, _, existing := setup(t, base)

	incoming := storetest.NewDeal("sparhamster", "1", base)
	incoming.GUID = existing.GUID
	incoming.Title = "Completely different"
	incoming.ContentHash = "other-hash"

	res, err := svc.CheckDuplicate(t.Context(), incoming)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, models.MatchGUID, res.Kind)
	assert.Equal(t, existing.ID, res.Match.ID)
}

func TestCheckDuplicate_ContentHashWindow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"inside window", base.Add(6 * 24 * time.Hour), true},
		{"outside window", base.Add(8 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := setup(t, tt.now)
			incoming := storetest.NewDeal("sparhamster", "2", tt.now)
			incoming.ContentHash = "same-hash"

			res, err := svc.CheckDuplicate(t.Context(), incoming)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.IsDuplicate)
			if tt.want {
				assert.Equal(t, models.MatchContentHash, res.Kind)
			} else {
				assert.Equal(t, models.MatchNone, res.Kind)
			}
		})
	}
}

func TestCheckDuplicate_NewDeal(t *testing.T) {
	svc, _, _ := setup(t, base)
	res, err := svc.CheckDuplicate(t.Context(), storetest.NewDeal("sparhamster", "9", base))
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.Nil(t, res.Match)
}

func TestHandleDuplicate_CountsAndBackfills(t *testing.T) {
	now := base.Add(time.Hour)
	svc, store, existing := setup(t, now)

	incoming := storetest.NewDeal("sparhamster", "1", now)
	incoming.Merchant = "MediaMarkt"
	incoming.CanonicalMerchantID = "mediamarkt"
	incoming.CanonicalMerchantName = "MediaMarkt"
	incoming.MerchantLink = "https://www.mediamarkt.at/p/1"

	require.NoError(t, svc.HandleDuplicate(t.Context(), existing, incoming))

	got, err := store.GetByID(t.Context(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DuplicateCount)
	assert.True(t, got.LastSeenAt.Equal(now))
	assert.Equal(t, "MediaMarkt", got.Merchant)
	assert.Equal(t, "mediamarkt", got.CanonicalMerchantID)
	assert.Equal(t, "https://www.mediamarkt.at/p/1", got.MerchantLink)
}

func TestMerchantBackfill_KeepsExisting(t *testing.T) {
	existing := &models.Deal{Merchant: "Saturn", MerchantLink: "https://saturn.at/x"}
	incoming := &models.Deal{Merchant: "MediaMarkt", MerchantLink: "https://mediamarkt.at/y", MerchantLogo: "https://logo"}
	p := MerchantBackfill(existing, incoming)
	assert.Nil(t, p.Merchant)
	assert.Nil(t, p.MerchantLink)
	require.NotNil(t, p.MerchantLogo)
	assert.Equal(t, "https://logo", *p.MerchantLogo)
}
