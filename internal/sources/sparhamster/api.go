package sparhamster

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
	"github.com/PRYePR/moreyudeals-sub000/internal/util"
)

// wpPost is the subset of a WordPress REST post this source reads.
type wpPost struct {
	ID          int64    `json:"id"`
	DateGMT     string   `json:"date_gmt"`
	ModifiedGMT string   `json:"modified_gmt"`
	Link        string   `json:"link"`
	Title       rendered `json:"title"`
	Content     rendered `json:"content"`
	Excerpt     rendered `json:"excerpt"`
	Embedded    struct {
		FeaturedMedia []struct {
			SourceURL string `json:"source_url"`
		} `json:"wp:featuredmedia"`
		Terms [][]struct {
			Name     string `json:"name"`
			Taxonomy string `json:"taxonomy"`
		} `json:"wp:term"`
	} `json:"_embedded"`
}

type rendered struct {
	Rendered string `json:"rendered"`
}

const wpTimeLayout = "2006-01-02T15:04:05"

func apiURL(base string, pageSize int) string {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("_embed", "1")
	return strings.TrimRight(base, "/") + "/wp-json/wp/v2/posts?" + q.Encode()
}

// decodePosts turns the raw API items into records, keeping each item's bytes.
func decodePosts(items []json.RawMessage) ([]models.APIPost, []error) {
	var posts []models.APIPost
	var errs []error
	for _, raw := range items {
		var p wpPost
		if err := json.Unmarshal(raw, &p); err != nil {
			errs = append(errs, fmt.Errorf("decode post: %w", err))
			continue
		}
		if p.ID == 0 {
			errs = append(errs, fmt.Errorf("post without id"))
			continue
		}
		posts = append(posts, p.record(raw))
	}
	return posts, errs
}

func (p wpPost) record(raw json.RawMessage) models.APIPost {
	link := p.Link
	if n, err := util.NormalizeURL(link); err == nil {
		link = n
	}
	post := models.APIPost{
		SourceSite:    Name,
		ID:            p.ID,
		HTMLTitle:     html.UnescapeString(p.Title.Rendered),
		HTMLBody:      p.Content.Rendered,
		HTMLExcerpt:   p.Excerpt.Rendered,
		PublishDate:   parseGMT(p.DateGMT),
		ModifyDate:    parseGMT(p.ModifiedGMT),
		CanonicalLink: link,
		Raw:           raw,
	}
	if len(p.Embedded.FeaturedMedia) > 0 {
		post.FeaturedImage = p.Embedded.FeaturedMedia[0].SourceURL
	}
	for _, group := range p.Embedded.Terms {
		for _, term := range group {
			if term.Taxonomy == "category" && term.Name != "" {
				post.Categories = append(post.Categories, html.UnescapeString(term.Name))
			}
		}
	}
	return post
}

func parseGMT(s string) time.Time {
	t, err := time.ParseInLocation(wpTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
