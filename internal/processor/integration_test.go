//go:build integration

package processor

import (
	"context"
	"testing"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/affiliate"
	"github.com/PRYePR/moreyudeals-sub000/internal/dedup"
	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/normalizer"
	"github.com/PRYePR/moreyudeals-sub000/internal/storage/sqlite"
	"github.com/PRYePR/moreyudeals-sub000/internal/validator"
)

// Integration test that wires the real normalizer, dedup service, affiliate
// resolver and a SQLite store to run a listing through the whole pipeline.

func TestIntegration_FullPipeline(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, t.TempDir()+"/deals.db")
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	defer store.Close()

	merchants, err := normalizer.LoadAliasTable("", "merchants.json")
	if err != nil {
		t.Fatal(err)
	}
	categories, err := normalizer.LoadAliasTable("", "categories.json")
	if err != nil {
		t.Fatal(err)
	}
	norm := normalizer.New(merchants, categories)
	p := New(store, dedup.New(store), affiliate.New(affiliate.Config{}, nil, affiliate.Amazon{Tag: "integration-21"}), validator.New())

	price, next := 84.99, 123.59
	item := models.ListItem{
		SourceSite:    "preisjaeger",
		ThreadID:      "998877",
		Title:         "Sony WH-1000XM5 um 84,99 € statt 123,59 €",
		Blurb:         "<p>Gute Kopfhörer zum Bestpreis.</p>",
		Price:         &price,
		NextBestPrice: &next,
		MerchantName:  "Amazon",
		Group:         "Elektronik",
		Link:          "https://www.amazon.de/dp/B0C1234567?tag=someone-21",
		ShareableLink: "https://www.preisjaeger.at/deals/sony-998877",
	}

	deal, err := norm.Normalize(item, time.Now())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	outcome, err := p.Process(ctx, deal)
	if err != nil || outcome != models.OutcomeInserted {
		t.Fatalf("Expected inserted, got %s, %v", outcome, err)
	}

	id := models.DealID("preisjaeger", "998877")
	stored, err := store.GetByID(ctx, id)
	if err != nil || stored == nil {
		t.Fatalf("GetByID() = %v, %v", stored, err)
	}
	if stored.AffiliateLink != "https://www.amazon.de/dp/B0C1234567?tag=integration-21" {
		t.Errorf("Unexpected affiliate link %q", stored.AffiliateLink)
	}
	if stored.CanonicalMerchantID != "amazon" {
		t.Errorf("Expected canonical merchant amazon, got %q", stored.CanonicalMerchantID)
	}
	if stored.DiscountPercent == nil || *stored.DiscountPercent != 31 {
		t.Errorf("Expected discount 31, got %v", stored.DiscountPercent)
	}

	again, err := norm.Normalize(item, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	outcome, err = p.Process(ctx, again)
	if err != nil || outcome != models.OutcomeDuplicate {
		t.Fatalf("Expected duplicate on second sighting, got %s, %v", outcome, err)
	}

	desc := "<p>Ausführliche Beschreibung</p>"
	patch, err := norm.DetailPatch(models.DetailState{SourceSite: "preisjaeger", ThreadID: "998877", HTMLDescription: desc}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Upgrade(ctx, id, patch); err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	stored, _ = store.GetByID(ctx, id)
	if stored.Description != "Ausführliche Beschreibung" {
		t.Errorf("Expected upgraded description, got %q", stored.Description)
	}
	if stored.DuplicateCount != 1 {
		t.Errorf("Expected duplicate count 1, got %d", stored.DuplicateCount)
	}
}
