package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// RawKind discriminates the variants of RawRecord.
type RawKind string

const (
	KindAPIPost     RawKind = "api_post"
	KindListItem    RawKind = "list_item"
	KindDetailState RawKind = "detail_state"
	KindHTMLCard    RawKind = "html_card"
)

// RawRecord is a record as a source delivered it, before normalization.
// The set of implementations is closed; the normalizer switches on the concrete type.
type RawRecord interface {
	Kind() RawKind
	Source() string
	ExternalID() string
	isRawRecord()
}

// APIPost is one item of a structured post API page.
type APIPost struct {
	SourceSite    string          `json:"-"`
	ID            int64           `json:"id"`
	HTMLTitle     string          `json:"htmlTitle"`
	HTMLBody      string          `json:"htmlBody"`
	HTMLExcerpt   string          `json:"htmlExcerpt,omitempty"`
	PublishDate   time.Time       `json:"publishDate"`
	ModifyDate    time.Time       `json:"modifyDate"`
	CanonicalLink string          `json:"canonicalLink"`
	Categories    []string        `json:"categories,omitempty"`
	FeaturedImage string          `json:"featuredImage,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// ListItem is the structured data embedded in one card of a client-rendered listing.
type ListItem struct {
	SourceSite      string          `json:"-"`
	ThreadID        string          `json:"threadId"`
	Title           string          `json:"title"`
	Blurb           string          `json:"blurb,omitempty"`
	Price           *float64        `json:"price,omitempty"`
	NextBestPrice   *float64        `json:"nextBestPrice,omitempty"`
	MerchantName    string          `json:"merchantName,omitempty"`
	Group           string          `json:"group,omitempty"`
	Groups          []string        `json:"groups,omitempty"`
	VoucherCode     string          `json:"voucherCode,omitempty"`
	Link            string          `json:"link,omitempty"`
	ShareableLink   string          `json:"shareableLink"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	PublishedAt     int64           `json:"publishedAt,omitempty"`
	ExpiryTimestamp int64           `json:"expiryTimestamp,omitempty"`
	ExpiryText      string          `json:"expiryText,omitempty"`
	IsExpired       bool            `json:"isExpired,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// DetailState is the state blob embedded in a detail page.
type DetailState struct {
	SourceSite      string          `json:"-"`
	ThreadID        string          `json:"threadId"`
	Title           string          `json:"title,omitempty"`
	HTMLDescription string          `json:"description"`
	PublishedAt     int64           `json:"publishedAt,omitempty"`
	UpdatedAt       int64           `json:"updatedAt,omitempty"`
	ExpiryTimestamp int64           `json:"expiryTimestamp,omitempty"`
	MerchantLink    string          `json:"link,omitempty"`
	MerchantName    string          `json:"merchantName,omitempty"`
	MerchantLogo    string          `json:"merchantLogo,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// HTMLCard is a deal card scraped from plain server-rendered HTML.
type HTMLCard struct {
	SourceSite   string   `json:"-"`
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	Excerpt      string   `json:"excerpt,omitempty"`
	PriceText    string   `json:"priceText,omitempty"`
	MerchantText string   `json:"merchantText,omitempty"`
	MerchantAlt  string   `json:"merchantAlt,omitempty"`
	MerchantLogo string   `json:"merchantLogo,omitempty"`
	OutboundLink string   `json:"outboundLink,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	ExpiryText   string   `json:"expiryText,omitempty"`
	PublishedAt  string   `json:"publishedAt,omitempty"`
}

func (p APIPost) Kind() RawKind      { return KindAPIPost }
func (p APIPost) Source() string     { return p.SourceSite }
func (p APIPost) ExternalID() string { return strconv.FormatInt(p.ID, 10) }
func (APIPost) isRawRecord()         {}

func (l ListItem) Kind() RawKind      { return KindListItem }
func (l ListItem) Source() string     { return l.SourceSite }
func (l ListItem) ExternalID() string { return l.ThreadID }
func (ListItem) isRawRecord()         {}

func (d DetailState) Kind() RawKind      { return KindDetailState }
func (d DetailState) Source() string     { return d.SourceSite }
func (d DetailState) ExternalID() string { return d.ThreadID }
func (DetailState) isRawRecord()         {}

func (c HTMLCard) Kind() RawKind      { return KindHTMLCard }
func (c HTMLCard) Source() string     { return c.SourceSite }
func (c HTMLCard) ExternalID() string { return c.ID }
func (HTMLCard) isRawRecord()         {}

// Payload captures a raw record as a generic JSON value for Deal.RawPayload.
// The original bytes are preferred when the source kept them.
func Payload(rec RawRecord) map[string]any {
	var data []byte
	switch r := rec.(type) {
	case APIPost:
		data = r.Raw
	case ListItem:
		data = r.Raw
	case DetailState:
		data = r.Raw
	}
	if len(data) == 0 {
		var err error
		data, err = json.Marshal(rec)
		if err != nil {
			return nil
		}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	out["_kind"] = string(rec.Kind())
	return out
}
