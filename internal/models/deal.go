package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDealExists is returned when attempting to create a deal that already exists.
var ErrDealExists = errors.New("deal already exists")

// FallbackCategory is assigned when no raw category resolves to a canonical one.
const FallbackCategory = "other"

// DefaultCurrency is used when a source does not state a currency.
const DefaultCurrency = "EUR"

type TranslationStatus string

const (
	TranslationPending    TranslationStatus = "pending"
	TranslationProcessing TranslationStatus = "processing"
	TranslationCompleted  TranslationStatus = "completed"
	TranslationFailed     TranslationStatus = "failed"
)

type BlockType string

const (
	BlockHeading BlockType = "heading"
	BlockText    BlockType = "text"
	BlockImage   BlockType = "image"
	BlockList    BlockType = "list"
	BlockQuote   BlockType = "quote"
	BlockCode    BlockType = "code"
)

// ContentBlock is one ordered, typed segment of a deal's body.
type ContentBlock struct {
	Type  BlockType `firestore:"type" json:"type"`
	Text  string    `firestore:"text,omitempty" json:"text,omitempty"`
	Level int       `firestore:"level,omitempty" json:"level,omitempty"`
	URL   string    `firestore:"url,omitempty" json:"url,omitempty"`
	Alt   string    `firestore:"alt,omitempty" json:"alt,omitempty"`
	Items []string  `firestore:"items,omitempty" json:"items,omitempty"`
}

// Deal is the canonical record produced for every listing, whatever its source.
type Deal struct {
	ID          string `firestore:"-" json:"id"` // Store document ID, not stored as a field
	SourceSite  string `firestore:"sourceSite" json:"sourceSite" validate:"required"`
	ExternalID  string `firestore:"externalId" json:"externalId" validate:"required"`
	GUID        string `firestore:"guid" json:"guid" validate:"required"`
	Slug        string `firestore:"slug,omitempty" json:"slug,omitempty"`
	ContentHash string `firestore:"contentHash,omitempty" json:"contentHash,omitempty"`

	OriginalTitle       string         `firestore:"originalTitle" json:"originalTitle"`
	Title               string         `firestore:"title" json:"title" validate:"required"`
	OriginalDescription string         `firestore:"originalDescription,omitempty" json:"originalDescription,omitempty"`
	Description         string         `firestore:"description,omitempty" json:"description,omitempty"`
	ContentBlocks       []ContentBlock `firestore:"contentBlocks,omitempty" json:"contentBlocks,omitempty"`
	Language            string         `firestore:"language,omitempty" json:"language,omitempty"`

	Price           *float64 `firestore:"price" json:"price,omitempty" validate:"omitempty,gte=0"`
	OriginalPrice   *float64 `firestore:"originalPrice" json:"originalPrice,omitempty" validate:"omitempty,gt=0"`
	DiscountPercent *int     `firestore:"discountPercent" json:"discountPercent,omitempty" validate:"omitempty,gt=0,lte=100"`
	Currency        string   `firestore:"currency" json:"currency" validate:"omitempty,len=3"`
	CouponCode      string   `firestore:"couponCode,omitempty" json:"couponCode,omitempty"`
	ImageURL        string   `firestore:"imageURL,omitempty" json:"imageURL,omitempty" validate:"omitempty,url"`

	Merchant              string `firestore:"merchant,omitempty" json:"merchant,omitempty"`
	MerchantLogo          string `firestore:"merchantLogo,omitempty" json:"merchantLogo,omitempty"`
	CanonicalMerchantID   string `firestore:"canonicalMerchantId,omitempty" json:"canonicalMerchantId,omitempty"`
	CanonicalMerchantName string `firestore:"canonicalMerchantName,omitempty" json:"canonicalMerchantName,omitempty"`
	MerchantLink          string `firestore:"merchantLink,omitempty" json:"merchantLink,omitempty" validate:"omitempty,url"`
	AffiliateLink         string `firestore:"affiliateLink,omitempty" json:"affiliateLink,omitempty"`
	AffiliateEnabled      bool   `firestore:"affiliateEnabled" json:"affiliateEnabled"`
	AffiliateNetwork      string `firestore:"affiliateNetwork,omitempty" json:"affiliateNetwork,omitempty"`

	Categories []string `firestore:"categories" json:"categories" validate:"min=1,dive,required"`

	PublishedAt       time.Time         `firestore:"publishedAt" json:"publishedAt"`
	ExpiresAt         *time.Time        `firestore:"expiresAt" json:"expiresAt,omitempty"`
	DuplicateCount    int               `firestore:"duplicateCount" json:"duplicateCount" validate:"gte=0"`
	FirstSeenAt       time.Time         `firestore:"firstSeenAt" json:"firstSeenAt"`
	LastSeenAt        time.Time         `firestore:"lastSeenAt" json:"lastSeenAt"`
	CreatedAt         time.Time         `firestore:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time         `firestore:"updatedAt" json:"updatedAt"`
	TranslationStatus TranslationStatus `firestore:"translationStatus" json:"translationStatus" validate:"omitempty,oneof=pending processing completed failed"`

	TranslationProvider string    `firestore:"translationProvider,omitempty" json:"translationProvider,omitempty"`
	TranslatedAt        time.Time `firestore:"translatedAt,omitempty" json:"translatedAt,omitempty"`

	// RawPayload is a snapshot of the source record, kept for debugging and replay.
	RawPayload map[string]any `firestore:"rawPayload,omitempty" json:"rawPayload,omitempty"`
}

var dealNamespace = uuid.MustParse("6f1c9a52-3d0e-5b7a-9c41-2e8f0d7b4a13")

// DealID derives the stable store document ID for a (source, external id) pair,
// so that concurrent creators of the same listing collide on one document.
func DealID(source, externalID string) string {
	return uuid.NewSHA1(dealNamespace, []byte(source+":"+externalID)).String()
}

// MerchantMissing reports whether the record has no merchant information at all.
func (d *Deal) MerchantMissing() bool {
	return d.Merchant == "" && d.CanonicalMerchantID == "" && d.MerchantLink == ""
}
