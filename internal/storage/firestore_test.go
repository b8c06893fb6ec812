package storage

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore/apiv1/firestorepb"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

func TestCountValue(t *testing.T) {
	// The count aggregation may surface either a raw int64 or a *firestorepb.Value.
	tests := []struct {
		name     string
		value    interface{}
		wantInt  int64
		wantFail bool
	}{
		{
			name:    "int64 direct",
			value:   int64(42),
			wantInt: 42,
		},
		{
			name: "firestorepb.Value integer",
			value: &firestorepb.Value{
				ValueType: &firestorepb.Value_IntegerValue{IntegerValue: 100},
			},
			wantInt: 100,
		},
		{
			name:     "unexpected type",
			value:    "not a number",
			wantFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := countValue(tt.value)
			if (err != nil) != tt.wantFail {
				t.Errorf("err = %v, wantFail = %v", err, tt.wantFail)
			}
			if !tt.wantFail && result != tt.wantInt {
				t.Errorf("result = %d, want %d", result, tt.wantInt)
			}
		})
	}
}

func TestPatchUpdates(t *testing.T) {
	title := "Neu"
	price := 9.99
	enabled := false
	now := time.Now()

	updates := patchUpdates(models.DealPatch{
		Title:            &title,
		Price:            &price,
		AffiliateEnabled: &enabled,
		LastSeenAt:       &now,
	})

	paths := make(map[string]interface{})
	for _, u := range updates {
		paths[u.Path] = u.Value
	}
	if len(paths) != 4 {
		t.Fatalf("got %d updates, want 4: %v", len(paths), paths)
	}
	if paths["title"] != "Neu" {
		t.Errorf("title = %v", paths["title"])
	}
	if paths["affiliateEnabled"] != false {
		t.Errorf("affiliateEnabled = %v", paths["affiliateEnabled"])
	}
	if _, ok := paths["merchant"]; ok {
		t.Error("unset fields must not be written")
	}
	if len(patchUpdates(models.DealPatch{})) != 0 {
		t.Error("empty patch should produce no updates")
	}
}

func TestPatchUpdates_ReplacePricingWritesNulls(t *testing.T) {
	price := 120.0
	updates := patchUpdates(models.DealPatch{Price: &price, ReplacePricing: true})

	paths := make(map[string]interface{})
	for _, u := range updates {
		paths[u.Path] = u.Value
	}
	if len(paths) != 3 {
		t.Fatalf("got %d updates, want 3: %v", len(paths), paths)
	}
	if v, ok := paths["originalPrice"].(*float64); !ok || v != nil {
		t.Errorf("originalPrice = %v, want nil", paths["originalPrice"])
	}
	if v, ok := paths["discountPercent"].(*int); !ok || v != nil {
		t.Errorf("discountPercent = %v, want nil", paths["discountPercent"])
	}
}

func TestTranslationUpdates(t *testing.T) {
	desc := "Translated"
	updates := translationUpdates(
		models.TranslationFields{Description: &desc},
		models.TranslationMeta{Status: models.TranslationCompleted, Provider: "gemini"},
	)
	got := make(map[string]interface{})
	for _, u := range updates {
		got[u.Path] = u.Value
	}
	if got["translationStatus"] != "completed" {
		t.Errorf("translationStatus = %v", got["translationStatus"])
	}
	if _, ok := got["title"]; ok {
		t.Error("title was not translated and must be left alone")
	}
	if got["description"] != "Translated" {
		t.Errorf("description = %v", got["description"])
	}
}

func TestErrDealExists(t *testing.T) {
	if models.ErrDealExists == nil {
		t.Fatal("ErrDealExists should not be nil")
	}
	if models.ErrDealExists.Error() != "deal already exists" {
		t.Errorf("ErrDealExists message = %q, want %q", models.ErrDealExists.Error(), "deal already exists")
	}
}
