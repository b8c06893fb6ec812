package models

import "time"

// DealPatch is a partial update. Nil fields are left untouched.
type DealPatch struct {
	Title                 *string
	OriginalTitle         *string
	Description           *string
	OriginalDescription   *string
	ContentBlocks         []ContentBlock
	ContentHash           *string
	Price                 *float64
	OriginalPrice         *float64
	DiscountPercent       *int
	// ReplacePricing writes Price, OriginalPrice and DiscountPercent as one
	// unit, nil clearing the stored value.
	ReplacePricing        bool
	CouponCode            *string
	ImageURL              *string
	Merchant              *string
	MerchantLogo          *string
	CanonicalMerchantID   *string
	CanonicalMerchantName *string
	MerchantLink          *string
	AffiliateLink         *string
	AffiliateEnabled      *bool
	AffiliateNetwork      *string
	PublishedAt           *time.Time
	ExpiresAt             *time.Time
	LastSeenAt            *time.Time
	UpdatedAt             *time.Time
}

// IsEmpty reports whether the patch changes nothing besides bookkeeping timestamps.
func (p DealPatch) IsEmpty() bool {
	return p.Title == nil && p.OriginalTitle == nil && p.Description == nil &&
		p.OriginalDescription == nil && p.ContentBlocks == nil && p.ContentHash == nil &&
		!p.ReplacePricing && p.Price == nil && p.OriginalPrice == nil && p.DiscountPercent == nil &&
		p.CouponCode == nil && p.ImageURL == nil && p.Merchant == nil &&
		p.MerchantLogo == nil && p.CanonicalMerchantID == nil && p.CanonicalMerchantName == nil &&
		p.MerchantLink == nil && p.AffiliateLink == nil && p.AffiliateEnabled == nil &&
		p.AffiliateNetwork == nil && p.PublishedAt == nil && p.ExpiresAt == nil
}

// Apply writes the non-nil fields of the patch onto d.
func (p DealPatch) Apply(d *Deal) {
	setString(&d.Title, p.Title)
	setString(&d.OriginalTitle, p.OriginalTitle)
	setString(&d.Description, p.Description)
	setString(&d.OriginalDescription, p.OriginalDescription)
	if p.ContentBlocks != nil {
		d.ContentBlocks = p.ContentBlocks
	}
	setString(&d.ContentHash, p.ContentHash)
	if p.ReplacePricing {
		d.Price = copyFloat(p.Price)
		d.OriginalPrice = copyFloat(p.OriginalPrice)
		d.DiscountPercent = nil
		if p.DiscountPercent != nil {
			v := *p.DiscountPercent
			d.DiscountPercent = &v
		}
	} else {
		if p.Price != nil {
			d.Price = copyFloat(p.Price)
		}
		if p.OriginalPrice != nil {
			d.OriginalPrice = copyFloat(p.OriginalPrice)
		}
		if p.DiscountPercent != nil {
			v := *p.DiscountPercent
			d.DiscountPercent = &v
		}
	}
	setString(&d.CouponCode, p.CouponCode)
	setString(&d.ImageURL, p.ImageURL)
	setString(&d.Merchant, p.Merchant)
	setString(&d.MerchantLogo, p.MerchantLogo)
	setString(&d.CanonicalMerchantID, p.CanonicalMerchantID)
	setString(&d.CanonicalMerchantName, p.CanonicalMerchantName)
	setString(&d.MerchantLink, p.MerchantLink)
	setString(&d.AffiliateLink, p.AffiliateLink)
	if p.AffiliateEnabled != nil {
		d.AffiliateEnabled = *p.AffiliateEnabled
	}
	setString(&d.AffiliateNetwork, p.AffiliateNetwork)
	if p.PublishedAt != nil {
		d.PublishedAt = *p.PublishedAt
	}
	if p.ExpiresAt != nil {
		v := *p.ExpiresAt
		d.ExpiresAt = &v
	}
	if p.LastSeenAt != nil {
		d.LastSeenAt = *p.LastSeenAt
	}
	if p.UpdatedAt != nil {
		d.UpdatedAt = *p.UpdatedAt
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// TranslationFields carries the translated text of a deal. Nil fields were not translated.
type TranslationFields struct {
	Title         *string
	Description   *string
	ContentBlocks []ContentBlock
}

// TranslationMeta records how a translation attempt ended.
type TranslationMeta struct {
	Status       TranslationStatus
	Provider     string
	Language     string
	TranslatedAt time.Time
	Error        string
}

// ApplyTranslation writes translated fields and status onto d.
func ApplyTranslation(d *Deal, fields TranslationFields, meta TranslationMeta) {
	setString(&d.Title, fields.Title)
	setString(&d.Description, fields.Description)
	if fields.ContentBlocks != nil {
		d.ContentBlocks = fields.ContentBlocks
	}
	d.TranslationStatus = meta.Status
	if meta.Provider != "" {
		d.TranslationProvider = meta.Provider
	}
	if meta.Language != "" {
		d.Language = meta.Language
	}
	if !meta.TranslatedAt.IsZero() {
		d.TranslatedAt = meta.TranslatedAt
	}
}
