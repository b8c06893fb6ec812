package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

const firestoreCollection = "deals"

// Firestore "in" queries and GetAll batches are capped; stay well below.
const existenceBatchSize = 100

type Client struct {
	client *firestore.Client
}

var _ Store = (*Client)(nil)

func New(ctx context.Context, projectID string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) deals() *firestore.CollectionRef {
	return c.client.Collection(firestoreCollection)
}

// GetByID retrieves a deal by its Firestore Document ID.
func (c *Client) GetByID(ctx context.Context, id string) (*models.Deal, error) {
	doc, err := c.deals().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	if !doc.Exists() {
		return nil, nil
	}
	return decode(doc)
}

func decode(doc *firestore.DocumentSnapshot) (*models.Deal, error) {
	var deal models.Deal
	if err := doc.DataTo(&deal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deal data: %w", err)
	}
	deal.ID = doc.Ref.ID
	return &deal, nil
}

func (c *Client) first(ctx context.Context, q firestore.Query) (*models.Deal, error) {
	iter := q.Limit(1).Documents(ctx)
	defer iter.Stop()
	doc, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

func (c *Client) GetByExternalID(ctx context.Context, source, guid string) (*models.Deal, error) {
	deal, err := c.first(ctx, c.deals().Where("sourceSite", "==", source).Where("guid", "==", guid))
	if err != nil {
		return nil, fmt.Errorf("failed to query deal by guid %s: %w", guid, err)
	}
	return deal, nil
}

func (c *Client) GetByContentHash(ctx context.Context, hash string, since time.Time) (*models.Deal, error) {
	q := c.deals().Where("contentHash", "==", hash).Where("createdAt", ">=", since).OrderBy("createdAt", firestore.Desc)
	deal, err := c.first(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query deal by content hash %s: %w", hash, err)
	}
	return deal, nil
}

// ExistingExternalIDs resolves the deterministic document IDs of ids and reads
// them in batches, which costs one round trip per batch instead of one per id.
func (c *Client) ExistingExternalIDs(ctx context.Context, source string, ids []string) (map[string]bool, error) {
	known := make(map[string]bool)
	for start := 0; start < len(ids); start += existenceBatchSize {
		end := min(start+existenceBatchSize, len(ids))
		refs := make([]*firestore.DocumentRef, 0, end-start)
		byDoc := make(map[string]string, end-start)
		for _, id := range ids[start:end] {
			docID := models.DealID(source, id)
			byDoc[docID] = id
			refs = append(refs, c.deals().Doc(docID))
		}
		docs, err := c.client.GetAll(ctx, refs)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing deals: %w", err)
		}
		for _, doc := range docs {
			if doc.Exists() {
				known[byDoc[doc.Ref.ID]] = true
			}
		}
	}
	return known, nil
}

// Create attempts to create a new deal. Returns models.ErrDealExists if it already exists.
func (c *Client) Create(ctx context.Context, deal *models.Deal) (string, error) {
	// Create fails if the document already exists.
	_, err := c.deals().Doc(deal.ID).Create(ctx, deal)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return "", models.ErrDealExists
		}
		return "", fmt.Errorf("failed to create deal %s: %w", deal.ID, err)
	}
	return deal.ID, nil
}

// Update writes only the fields set in patch to avoid clobbering concurrent writers.
func (c *Client) Update(ctx context.Context, id string, patch models.DealPatch) error {
	updates := patchUpdates(patch)
	if len(updates) == 0 {
		return nil
	}
	if _, err := c.deals().Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update deal %s: %w", id, err)
	}
	return nil
}

func (c *Client) IncrementDuplicateCount(ctx context.Context, id string, seenAt time.Time) error {
	_, err := c.deals().Doc(id).Update(ctx, []firestore.Update{
		{Path: "duplicateCount", Value: firestore.Increment(1)},
		{Path: "lastSeenAt", Value: seenAt},
		{Path: "updatedAt", Value: seenAt},
	})
	if err != nil {
		return fmt.Errorf("failed to increment duplicate count of %s: %w", id, err)
	}
	return nil
}

func (c *Client) GetUntranslated(ctx context.Context, limit int) ([]*models.Deal, error) {
	iter := c.deals().
		Where("translationStatus", "==", string(models.TranslationPending)).
		OrderBy("createdAt", firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []*models.Deal
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate untranslated deals: %w", err)
		}
		deal, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, deal)
	}
	return out, nil
}

func (c *Client) UpdateTranslation(ctx context.Context, id string, fields models.TranslationFields, meta models.TranslationMeta) error {
	updates := translationUpdates(fields, meta)
	if _, err := c.deals().Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update translation of %s: %w", id, err)
	}
	return nil
}

// CountDeals counts stored deals, optionally restricted to one source.
func (c *Client) CountDeals(ctx context.Context, source string) (int64, error) {
	q := c.deals().Query
	if source != "" {
		q = q.Where("sourceSite", "==", source)
	}
	snapshot, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count deals: %w", err)
	}
	value, ok := snapshot["all"]
	if !ok {
		return 0, fmt.Errorf("count aggregation result was invalid: 'all' key missing")
	}
	return countValue(value)
}

func countValue(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case *firestorepb.Value:
		return val.GetIntegerValue(), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}

func patchUpdates(p models.DealPatch) []firestore.Update {
	var u []firestore.Update
	add := func(path string, set bool, value interface{}) {
		if set {
			u = append(u, firestore.Update{Path: path, Value: value})
		}
	}
	add("title", p.Title != nil, deref(p.Title))
	add("originalTitle", p.OriginalTitle != nil, deref(p.OriginalTitle))
	add("description", p.Description != nil, deref(p.Description))
	add("originalDescription", p.OriginalDescription != nil, deref(p.OriginalDescription))
	add("contentBlocks", p.ContentBlocks != nil, p.ContentBlocks)
	add("contentHash", p.ContentHash != nil, deref(p.ContentHash))
	add("price", p.ReplacePricing || p.Price != nil, p.Price)
	add("originalPrice", p.ReplacePricing || p.OriginalPrice != nil, p.OriginalPrice)
	add("discountPercent", p.ReplacePricing || p.DiscountPercent != nil, p.DiscountPercent)
	add("couponCode", p.CouponCode != nil, deref(p.CouponCode))
	add("imageURL", p.ImageURL != nil, deref(p.ImageURL))
	add("merchant", p.Merchant != nil, deref(p.Merchant))
	add("merchantLogo", p.MerchantLogo != nil, deref(p.MerchantLogo))
	add("canonicalMerchantId", p.CanonicalMerchantID != nil, deref(p.CanonicalMerchantID))
	add("canonicalMerchantName", p.CanonicalMerchantName != nil, deref(p.CanonicalMerchantName))
	add("merchantLink", p.MerchantLink != nil, deref(p.MerchantLink))
	add("affiliateLink", p.AffiliateLink != nil, deref(p.AffiliateLink))
	if p.AffiliateEnabled != nil {
		u = append(u, firestore.Update{Path: "affiliateEnabled", Value: *p.AffiliateEnabled})
	}
	add("affiliateNetwork", p.AffiliateNetwork != nil, deref(p.AffiliateNetwork))
	if p.PublishedAt != nil {
		u = append(u, firestore.Update{Path: "publishedAt", Value: *p.PublishedAt})
	}
	add("expiresAt", p.ExpiresAt != nil, p.ExpiresAt)
	if p.LastSeenAt != nil {
		u = append(u, firestore.Update{Path: "lastSeenAt", Value: *p.LastSeenAt})
	}
	if p.UpdatedAt != nil {
		u = append(u, firestore.Update{Path: "updatedAt", Value: *p.UpdatedAt})
	}
	return u
}

func translationUpdates(fields models.TranslationFields, meta models.TranslationMeta) []firestore.Update {
	u := []firestore.Update{{Path: "translationStatus", Value: string(meta.Status)}}
	if fields.Title != nil {
		u = append(u, firestore.Update{Path: "title", Value: *fields.Title})
	}
	if fields.Description != nil {
		u = append(u, firestore.Update{Path: "description", Value: *fields.Description})
	}
	if fields.ContentBlocks != nil {
		u = append(u, firestore.Update{Path: "contentBlocks", Value: fields.ContentBlocks})
	}
	if meta.Provider != "" {
		u = append(u, firestore.Update{Path: "translationProvider", Value: meta.Provider})
	}
	if meta.Language != "" {
		u = append(u, firestore.Update{Path: "language", Value: meta.Language})
	}
	if !meta.TranslatedAt.IsZero() {
		u = append(u, firestore.Update{Path: "translatedAt", Value: meta.TranslatedAt})
	}
	return u
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
