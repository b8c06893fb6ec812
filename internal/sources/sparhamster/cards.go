package sparhamster

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/scraper"
	"github.com/PRYePR/moreyudeals-sub000/internal/util"
)

func pageURL(base string, sel scraper.CardSelectors, page int) string {
	base = strings.TrimRight(base, "/")
	if page <= 1 {
		return base + "/"
	}
	return base + fmt.Sprintf(sel.PagePath, page)
}

// parseCards reads every deal card on a listing page. Cards without an id or
// title are skipped.
func parseCards(doc *goquery.Document, sel scraper.CardSelectors, base string) []models.HTMLCard {
	var cards []models.HTMLCard
	doc.Find(sel.Card).Each(func(_ int, s *goquery.Selection) {
		id := strings.TrimPrefix(strings.TrimSpace(s.AttrOr(sel.IDAttr, "")), sel.IDPrefix)
		titleLink := s.Find(sel.TitleLink).First()
		title := strings.TrimSpace(titleLink.Text())
		if id == "" || title == "" {
			return
		}

		card := models.HTMLCard{
			SourceSite:   Name,
			ID:           id,
			Title:        title,
			URL:          normalized(util.ResolveURL(base, titleLink.AttrOr("href", ""))),
			Excerpt:      text(s, sel.Excerpt),
			PriceText:    text(s, sel.Price),
			MerchantText: text(s, sel.Merchant),
			ExpiryText:   text(s, sel.Expiry),
		}
		if logo := s.Find(sel.MerchantLogo).First(); logo.Length() > 0 {
			card.MerchantAlt = strings.TrimSpace(logo.AttrOr("alt", ""))
			card.MerchantLogo = util.ResolveURL(base, logo.AttrOr("src", ""))
		}
		if out := s.Find(sel.Outbound).First(); out.Length() > 0 {
			card.OutboundLink = util.ResolveURL(base, out.AttrOr("href", ""))
		}
		if img := s.Find(sel.Image).First(); img.Length() > 0 {
			src := img.AttrOr("data-src", "")
			if src == "" {
				src = img.AttrOr("src", "")
			}
			card.ImageURL = util.ResolveURL(base, src)
		}
		s.Find(sel.Categories).Each(func(_ int, c *goquery.Selection) {
			if name := strings.TrimSpace(c.Text()); name != "" {
				card.Categories = append(card.Categories, name)
			}
		})
		if ts := s.Find(sel.Published).First(); ts.Length() > 0 {
			card.PublishedAt = strings.TrimSpace(ts.AttrOr("datetime", ""))
		}
		cards = append(cards, card)
	})
	return cards
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func normalized(link string) string {
	if n, err := util.NormalizeURL(link); err == nil {
		return n
	}
	return link
}
