package scraper

import (
	"encoding/json"
	"fmt"
	"os"
)

type SelectorConfig struct {
	Sparhamster CardSelectors     `json:"sparhamster"`
	Preisjaeger EmbeddedSelectors `json:"preisjaeger"`
}

// CardSelectors locate the fields of a server-rendered deal card.
type CardSelectors struct {
	Card         string `json:"card"`
	IDAttr       string `json:"id_attr"`
	IDPrefix     string `json:"id_prefix"`
	TitleLink    string `json:"title_link"`
	Excerpt      string `json:"excerpt"`
	Price        string `json:"price"`
	Merchant     string `json:"merchant"`
	MerchantLogo string `json:"merchant_logo"`
	Outbound     string `json:"outbound"`
	Image        string `json:"image"`
	Categories   string `json:"categories"`
	Expiry       string `json:"expiry"`
	Published    string `json:"published"`
	// PagePath is appended to the base URL for page n > 1; %d is the page number.
	PagePath string `json:"page_path"`
}

// EmbeddedSelectors locate JSON embedded in a client-rendered page.
type EmbeddedSelectors struct {
	ListItem     string `json:"list_item"`
	ListDataAttr string `json:"list_data_attr"`
	ListBlurb    string `json:"list_blurb"`
	// StateMarker is the script assignment that precedes the detail state blob.
	StateMarker string `json:"state_marker"`
	ListPath    string `json:"list_path"`
	WaitFor     string `json:"wait_for"`
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
// Fields missing from data keep their default values.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	config := DefaultSelectors()
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if config.Sparhamster.Card == "" || config.Preisjaeger.ListItem == "" {
		return SelectorConfig{}, fmt.Errorf("selector config is missing card or list item selectors")
	}
	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
// The embedded selectors.json should be preferred.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Sparhamster: CardSelectors{
			Card:         "article.post",
			IDAttr:       "id",
			IDPrefix:     "post-",
			TitleLink:    ".entry-title a",
			Excerpt:      ".entry-summary",
			Price:        ".deal-price",
			Merchant:     ".deal-shop",
			MerchantLogo: ".deal-shop img",
			Outbound:     "a.deal-button",
			Image:        ".post-thumbnail img",
			Categories:   ".cat-links a",
			Expiry:       ".deal-expiry",
			Published:    "time.entry-date",
			PagePath:     "/page/%d/",
		},
		Preisjaeger: EmbeddedSelectors{
			ListItem:     "article.thread",
			ListDataAttr: "data-vue3",
			ListBlurb:    ".userHtml-content",
			StateMarker:  "window.__INITIAL_STATE__",
			ListPath:     "/neu",
			WaitFor:      "article.thread",
		},
	}
}
