package preisjaeger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/scraper"
	"github.com/PRYePR/moreyudeals-sub000/internal/util"
)

// flexID accepts ids encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type group struct {
	ThreadGroupName string `json:"threadGroupName"`
}

type image struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Ext  string `json:"ext"`
}

type timestamp struct {
	Timestamp int64 `json:"timestamp"`
}

type merchant struct {
	MerchantName string `json:"merchantName"`
	LogoURL      string `json:"logoUrl"`
}

// thread is the listing card payload.
type thread struct {
	ThreadID      flexID     `json:"threadId"`
	Title         string     `json:"title"`
	Price         *float64   `json:"price"`
	NextBestPrice *float64   `json:"nextBestPrice"`
	Merchant      *merchant  `json:"merchant"`
	MainGroup     *group     `json:"mainGroup"`
	Groups        []group    `json:"groups"`
	VoucherCode   string     `json:"voucherCode"`
	Link          string     `json:"link"`
	ShareableLink string     `json:"shareableLink"`
	MainImage     *image     `json:"mainImage"`
	PublishedAt   int64      `json:"publishedAt"`
	EndDate       *timestamp `json:"endDate"`
	IsExpired     bool       `json:"isExpired"`
}

type vueWidget struct {
	Props struct {
		Thread json.RawMessage `json:"thread"`
	} `json:"props"`
}

func (t thread) record(raw json.RawMessage, blurb, imageBase string) models.ListItem {
	item := models.ListItem{
		SourceSite:    Name,
		ThreadID:      string(t.ThreadID),
		Title:         t.Title,
		Blurb:         blurb,
		Price:         positive(t.Price),
		NextBestPrice: positive(t.NextBestPrice),
		VoucherCode:   t.VoucherCode,
		Link:          t.Link,
		ShareableLink: normalized(t.ShareableLink),
		PublishedAt:   t.PublishedAt,
		IsExpired:     t.IsExpired,
		Raw:           raw,
	}
	if t.Merchant != nil {
		item.MerchantName = t.Merchant.MerchantName
	}
	if t.MainGroup != nil {
		item.Group = t.MainGroup.ThreadGroupName
	}
	for _, g := range t.Groups {
		if g.ThreadGroupName != "" && g.ThreadGroupName != item.Group {
			item.Groups = append(item.Groups, g.ThreadGroupName)
		}
	}
	if t.EndDate != nil {
		item.ExpiryTimestamp = t.EndDate.Timestamp
	}
	if t.MainImage != nil && t.MainImage.Path != "" && t.MainImage.Name != "" {
		ext := t.MainImage.Ext
		if ext == "" {
			ext = "jpg"
		}
		item.ImageURL = strings.TrimRight(imageBase, "/") + "/" + t.MainImage.Path + "/" + t.MainImage.Name + "." + ext
	}
	return item
}

// positive drops the zero prices the site uses for "no price".
func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func normalized(link string) string {
	if n, err := util.NormalizeURL(link); err == nil {
		return n
	}
	return link
}

// parseList reads the embedded thread JSON of every listing card.
func parseList(doc *goquery.Document, sel scraper.EmbeddedSelectors, imageBase string) ([]models.ListItem, []error) {
	var items []models.ListItem
	var errs []error
	doc.Find(sel.ListItem).Each(func(_ int, s *goquery.Selection) {
		var found bool
		s.Find("[" + sel.ListDataAttr + "]").EachWithBreak(func(_ int, w *goquery.Selection) bool {
			data := w.AttrOr(sel.ListDataAttr, "")
			var widget vueWidget
			if err := json.Unmarshal([]byte(data), &widget); err != nil {
				return true
			}
			var t thread
			if len(widget.Props.Thread) == 0 || json.Unmarshal(widget.Props.Thread, &t) != nil || t.ThreadID == "" {
				return true
			}
			blurb := ""
			if sel.ListBlurb != "" {
				blurb, _ = s.Find(sel.ListBlurb).First().Html()
			}
			items = append(items, t.record(widget.Props.Thread, blurb, imageBase))
			found = true
			return false
		})
		if !found {
			errs = append(errs, fmt.Errorf("list card %q has no thread data", s.AttrOr("id", "")))
		}
	})
	return items, errs
}

// detail is the thread part of the detail page state.
type detail struct {
	ThreadID    flexID     `json:"threadId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	PublishedAt int64      `json:"publishedAt"`
	UpdatedAt   int64      `json:"updatedAt"`
	EndDate     *timestamp `json:"endDate"`
	Link        string     `json:"link"`
	Merchant    *merchant  `json:"merchant"`
}

type detailState struct {
	ThreadDetail json.RawMessage `json:"threadDetail"`
}

var errNoState = errors.New("detail state not found")

// parseDetail extracts the state blob assigned after marker in one of the
// page's scripts.
func parseDetail(doc *goquery.Document, marker, threadID string) (models.DetailState, error) {
	var blob []byte
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		b, err := AssignedJSON(s.Text(), marker)
		if err != nil {
			return true
		}
		blob = b
		return false
	})
	if blob == nil {
		return models.DetailState{}, errNoState
	}
	var st detailState
	if err := json.Unmarshal(blob, &st); err != nil {
		return models.DetailState{}, fmt.Errorf("decode detail state: %w", err)
	}
	var d detail
	if len(st.ThreadDetail) == 0 || string(st.ThreadDetail) == "null" {
		return models.DetailState{}, fmt.Errorf("%w: no threadDetail", errNoState)
	}
	if err := json.Unmarshal(st.ThreadDetail, &d); err != nil {
		return models.DetailState{}, fmt.Errorf("decode thread detail: %w", err)
	}
	out := models.DetailState{
		SourceSite:      Name,
		ThreadID:        string(d.ThreadID),
		Title:           d.Title,
		HTMLDescription: d.Description,
		PublishedAt:     d.PublishedAt,
		UpdatedAt:       d.UpdatedAt,
		MerchantLink:    d.Link,
		Raw:             st.ThreadDetail,
	}
	if out.ThreadID == "" {
		out.ThreadID = threadID
	}
	if out.ThreadID != threadID {
		return models.DetailState{}, fmt.Errorf("detail page belongs to thread %s, expected %s", out.ThreadID, threadID)
	}
	if d.EndDate != nil {
		out.ExpiryTimestamp = d.EndDate.Timestamp
	}
	if d.Merchant != nil {
		out.MerchantName = d.Merchant.MerchantName
		out.MerchantLogo = d.Merchant.LogoURL
	}
	return out, nil
}

// AssignedJSON returns the JSON object literal assigned right after marker in
// script, e.g. `window.__STATE__ = {...};`.
func AssignedJSON(script, marker string) ([]byte, error) {
	i := strings.Index(script, marker)
	if i < 0 {
		return nil, errNoState
	}
	rest := script[i+len(marker):]
	start := strings.IndexByte(rest, '{')
	if start < 0 || strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(rest[:start]), "=")) != "" {
		return nil, fmt.Errorf("%w: no object after %s", errNoState, marker)
	}
	depth, inString, escaped := 0, false, false
	for j := start; j < len(rest); j++ {
		c := rest[j]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return []byte(rest[start : j+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: unterminated object after %s", errNoState, marker)
}
