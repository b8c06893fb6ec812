// Package normalizer maps raw source records onto the canonical Deal.
package normalizer

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/extract"
	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// Precedence decides which side of a hybrid fetch owns the presentation fields
// (title, price, merchant, image) when both carry them.
type Precedence string

const (
	PrecedenceHTML Precedence = "html"
	PrecedenceAPI  Precedence = "api"
)

// ParsePrecedence accepts "html" or "api".
func ParsePrecedence(s string) (Precedence, error) {
	switch Precedence(strings.ToLower(strings.TrimSpace(s))) {
	case PrecedenceHTML, "":
		return PrecedenceHTML, nil
	case PrecedenceAPI:
		return PrecedenceAPI, nil
	}
	return "", fmt.Errorf("unknown field precedence %q", s)
}

// Normalizer converts raw records into canonical deals.
type Normalizer struct {
	merchants  *AliasTable
	categories *AliasTable
	unmatched  *UnmatchedTracker
	language   string
}

type Option func(*Normalizer)

// WithUnmatchedTracker records category names that resolve to nothing.
func WithUnmatchedTracker(u *UnmatchedTracker) Option {
	return func(n *Normalizer) { n.unmatched = u }
}

// WithLanguage sets the language tag of the source text. Defaults to "de".
func WithLanguage(lang string) Option {
	return func(n *Normalizer) {
		if lang != "" {
			n.language = lang
		}
	}
}

func New(merchants, categories *AliasTable, opts ...Option) *Normalizer {
	n := &Normalizer{merchants: merchants, categories: categories, language: "de"}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Unmatched returns the tracker of unresolved category names, if any.
func (n *Normalizer) Unmatched() *UnmatchedTracker { return n.unmatched }

// Normalize maps any raw record variant to a Deal. fetchedAt anchors relative
// expiry text and is used as the publish time when the source gives none.
func (n *Normalizer) Normalize(rec models.RawRecord, fetchedAt time.Time) (*models.Deal, error) {
	switch r := rec.(type) {
	case models.APIPost:
		return n.fromAPIPost(r, fetchedAt)
	case models.HTMLCard:
		return n.fromHTMLCard(r, fetchedAt)
	case models.ListItem:
		return n.fromListItem(r, fetchedAt)
	case models.DetailState:
		return n.fromDetailState(r, fetchedAt)
	default:
		return nil, fmt.Errorf("unsupported raw record %T", rec)
	}
}

func (n *Normalizer) base(rec models.RawRecord, rawTitle string) (*models.Deal, error) {
	if rec.ExternalID() == "" {
		return nil, fmt.Errorf("%s record from %s has no id", rec.Kind(), rec.Source())
	}
	original := extract.PlainText(rawTitle)
	title := extract.CleanTitle(original)
	if title == "" {
		return nil, fmt.Errorf("%s record %s has no title", rec.Kind(), rec.ExternalID())
	}
	return &models.Deal{
		SourceSite:        rec.Source(),
		ExternalID:        rec.ExternalID(),
		OriginalTitle:     original,
		Title:             title,
		Currency:          models.DefaultCurrency,
		Language:          n.language,
		TranslationStatus: models.TranslationPending,
		RawPayload:        models.Payload(rec),
	}, nil
}

func (n *Normalizer) fromAPIPost(p models.APIPost, fetchedAt time.Time) (*models.Deal, error) {
	d, err := n.base(p, p.HTMLTitle)
	if err != nil {
		return nil, err
	}
	d.GUID = p.CanonicalLink
	d.ImageURL = p.FeaturedImage
	d.PublishedAt = firstTime(p.PublishDate, fetchedAt)

	blocks, err := extract.ContentBlocks(p.HTMLBody)
	if err != nil {
		return nil, err
	}
	setDescription(d, blocks, p.HTMLExcerpt)

	// The API has no merchant field; a post is often filed under the shop's name.
	var rest []string
	for _, c := range p.Categories {
		if d.CanonicalMerchantID == "" && !n.merchants.IsBlacklisted(c) {
			if e, ok := n.merchants.Lookup(p.SourceSite, c); ok {
				applyMerchant(d, MerchantMatch{Raw: c, CanonicalID: e.CanonicalID, CanonicalName: e.CanonicalName, Logo: e.Logo})
				continue
			}
		}
		rest = append(rest, c)
	}
	d.Categories = n.categories.ResolveCategories(p.SourceSite, rest, n.unmatched, models.FallbackCategory)

	applyPrice(d, extract.ExtractPrice(d.OriginalTitle, d.Description))
	finish(d)
	return d, nil
}

func (n *Normalizer) fromHTMLCard(c models.HTMLCard, fetchedAt time.Time) (*models.Deal, error) {
	d, err := n.base(c, c.Title)
	if err != nil {
		return nil, err
	}
	d.GUID = c.URL
	d.ImageURL = c.ImageURL
	d.MerchantLink = c.OutboundLink
	d.PublishedAt = fetchedAt
	if c.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, c.PublishedAt); err == nil {
			d.PublishedAt = t
		}
	}
	if excerpt := extract.PlainText(c.Excerpt); excerpt != "" {
		d.OriginalDescription = excerpt
		d.Description = excerpt
		d.ContentBlocks = []models.ContentBlock{{Type: models.BlockText, Text: excerpt}}
	}
	if m, ok := n.merchants.ResolveMerchant(c.SourceSite, c.MerchantText, c.MerchantAlt); ok {
		applyMerchant(d, m)
	}
	if c.MerchantLogo != "" {
		d.MerchantLogo = c.MerchantLogo
	}
	d.Categories = n.categories.ResolveCategories(c.SourceSite, c.Categories, n.unmatched, models.FallbackCategory)

	info := extract.ExtractPrice(c.PriceText)
	if !info.Found() {
		info = extract.ExtractPrice(d.OriginalTitle, d.Description)
	}
	applyPrice(d, info)
	if t, ok := extract.ParseExpiry(c.ExpiryText, fetchedAt); ok {
		d.ExpiresAt = &t
	}
	finish(d)
	return d, nil
}

func (n *Normalizer) fromListItem(l models.ListItem, fetchedAt time.Time) (*models.Deal, error) {
	d, err := n.base(l, l.Title)
	if err != nil {
		return nil, err
	}
	d.GUID = l.ShareableLink
	d.ImageURL = l.ImageURL
	d.MerchantLink = l.Link
	d.CouponCode = strings.TrimSpace(l.VoucherCode)
	d.PublishedAt = fetchedAt
	if l.PublishedAt > 0 {
		d.PublishedAt = time.Unix(l.PublishedAt, 0).UTC()
	}
	if blurb := extract.PlainText(l.Blurb); blurb != "" {
		d.OriginalDescription = blurb
		d.Description = blurb
		d.ContentBlocks = []models.ContentBlock{{Type: models.BlockText, Text: blurb}}
	}
	if m, ok := n.merchants.ResolveMerchant(l.SourceSite, l.MerchantName); ok {
		applyMerchant(d, m)
	}
	raw := l.Groups
	if l.Group != "" {
		raw = append([]string{l.Group}, raw...)
	}
	d.Categories = n.categories.ResolveCategories(l.SourceSite, raw, n.unmatched, models.FallbackCategory)

	info := extract.PriceFromValues(l.Price, l.NextBestPrice)
	if !info.Found() {
		info = extract.ExtractPrice(d.OriginalTitle, d.Description)
	}
	applyPrice(d, info)
	d.ExpiresAt = expiry(l.ExpiryTimestamp, l.ExpiryText, l.IsExpired, fetchedAt)
	finish(d)
	return d, nil
}

func (n *Normalizer) fromDetailState(s models.DetailState, fetchedAt time.Time) (*models.Deal, error) {
	d, err := n.base(s, s.Title)
	if err != nil {
		return nil, err
	}
	d.PublishedAt = fetchedAt
	if s.PublishedAt > 0 {
		d.PublishedAt = time.Unix(s.PublishedAt, 0).UTC()
	}
	d.MerchantLink = s.MerchantLink
	blocks, err := extract.ContentBlocks(s.HTMLDescription)
	if err != nil {
		return nil, err
	}
	setDescription(d, blocks, "")
	if m, ok := n.merchants.ResolveMerchant(s.SourceSite, s.MerchantName); ok {
		applyMerchant(d, m)
	}
	if s.MerchantLogo != "" {
		d.MerchantLogo = s.MerchantLogo
	}
	d.Categories = []string{models.FallbackCategory}
	applyPrice(d, extract.ExtractPrice(d.OriginalTitle, d.Description))
	d.ExpiresAt = expiry(s.ExpiryTimestamp, "", false, fetchedAt)
	finish(d)
	return d, nil
}

// DetailPatch turns a detail-page state blob into an upgrade for a record that
// was first written from its listing card. The content hash is left as is so
// that a re-post, which is first seen as a card again, still matches it.
func (n *Normalizer) DetailPatch(s models.DetailState, fetchedAt time.Time) (models.DealPatch, error) {
	var p models.DealPatch
	blocks, err := extract.ContentBlocks(s.HTMLDescription)
	if err != nil {
		return p, err
	}
	if len(blocks) > 0 {
		desc := extract.BlocksText(blocks)
		p.ContentBlocks = blocks
		p.Description = &desc
		p.OriginalDescription = &desc
	}
	if s.PublishedAt > 0 {
		t := time.Unix(s.PublishedAt, 0).UTC()
		p.PublishedAt = &t
	}
	if exp := expiry(s.ExpiryTimestamp, "", false, fetchedAt); exp != nil {
		p.ExpiresAt = exp
	}
	if s.MerchantLink != "" {
		link := s.MerchantLink
		p.MerchantLink = &link
	}
	if m, ok := n.merchants.ResolveMerchant(s.SourceSite, s.MerchantName); ok {
		p.Merchant = &m.Raw
		p.CanonicalMerchantID = &m.CanonicalID
		p.CanonicalMerchantName = &m.CanonicalName
		if m.Logo != "" {
			p.MerchantLogo = &m.Logo
		}
	}
	if s.MerchantLogo != "" {
		logo := s.MerchantLogo
		p.MerchantLogo = &logo
	}
	return p, nil
}

// Merge combines an API post with the HTML card of the same item. Body,
// timestamps and identity always come from the API; the presentation fields
// follow prec, with the other side filling whatever is missing.
func (n *Normalizer) Merge(api models.APIPost, card models.HTMLCard, prec Precedence, fetchedAt time.Time) (*models.Deal, error) {
	d, err := n.fromAPIPost(api, fetchedAt)
	if err != nil {
		return nil, err
	}
	c, err := n.fromHTMLCard(card, fetchedAt)
	if err != nil {
		slog.Warn("HTML card failed to normalize, using API post alone", "source", card.SourceSite, "id", card.ID, "error", err)
		return d, nil
	}

	htmlWins := prec != PrecedenceAPI
	pick := func(dst *string, htmlVal string) {
		if htmlVal != "" && (htmlWins || *dst == "") {
			*dst = htmlVal
		}
	}
	if htmlWins {
		d.OriginalTitle, d.Title = c.OriginalTitle, c.Title
	}
	pick(&d.ImageURL, c.ImageURL)
	pick(&d.MerchantLink, c.MerchantLink)
	if c.Merchant != "" && (htmlWins || d.Merchant == "") {
		d.Merchant = c.Merchant
		d.CanonicalMerchantID = c.CanonicalMerchantID
		d.CanonicalMerchantName = c.CanonicalMerchantName
		d.MerchantLogo = c.MerchantLogo
	}
	if c.Price != nil && (htmlWins || d.Price == nil) {
		d.Price, d.OriginalPrice, d.DiscountPercent = c.Price, c.OriginalPrice, c.DiscountPercent
	}
	if d.ExpiresAt == nil {
		d.ExpiresAt = c.ExpiresAt
	}
	if len(d.Categories) == 1 && d.Categories[0] == models.FallbackCategory {
		d.Categories = c.Categories
	}
	d.RawPayload = map[string]any{"api": d.RawPayload, "html": c.RawPayload, "_kind": "merged"}
	finish(d)
	return d, nil
}

func setDescription(d *models.Deal, blocks []models.ContentBlock, excerpt string) {
	d.ContentBlocks = blocks
	desc := extract.BlocksText(blocks)
	if desc == "" {
		desc = extract.PlainText(excerpt)
	}
	d.OriginalDescription = desc
	d.Description = desc
}

func applyMerchant(d *models.Deal, m MerchantMatch) {
	d.Merchant = m.Raw
	d.CanonicalMerchantID = m.CanonicalID
	d.CanonicalMerchantName = m.CanonicalName
	if m.Logo != "" {
		d.MerchantLogo = m.Logo
	}
}

func applyPrice(d *models.Deal, info extract.PriceInfo) {
	d.Price = info.Price
	d.OriginalPrice = info.OriginalPrice
	d.DiscountPercent = info.DiscountPercent
}

func expiry(ts int64, text string, expired bool, fetchedAt time.Time) *time.Time {
	switch {
	case ts > 0:
		t := time.Unix(ts, 0).UTC()
		return &t
	case expired:
		t := fetchedAt
		return &t
	}
	if t, ok := extract.ParseExpiry(text, fetchedAt); ok {
		return &t
	}
	return nil
}

func firstTime(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func finish(d *models.Deal) {
	d.Slug = extract.DealSlug(d.Title, d.ExternalID)
	d.ContentHash = extract.ContentHash(d.Title, d.Description, d.Price)
}
