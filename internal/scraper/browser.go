package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome for listings that only
// exist after client-side rendering.
type BrowserFetcher struct {
	userAgent    string
	timeout      time.Duration
	waitSelector string
	allowed      map[string]bool
}

// NewBrowserFetcher creates a fetcher that waits for waitSelector before
// reading the DOM. An empty selector waits for body.
func NewBrowserFetcher(cfg Config, waitSelector string) *BrowserFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if waitSelector == "" {
		waitSelector = "body"
	}
	b := &BrowserFetcher{userAgent: cfg.UserAgent, timeout: cfg.Timeout, waitSelector: waitSelector, allowed: make(map[string]bool)}
	for _, d := range cfg.AllowedDomains {
		b.allowed[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return b
}

func (b *BrowserFetcher) FetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if _, err := CheckAllowed(b.allowed, pageURL); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(b.userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	runCtx, cancelRun := context.WithTimeout(browserCtx, b.timeout)
	defer cancelRun()

	slog.Debug("Rendering page in browser", "url", pageURL)
	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(b.waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp failed for %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered HTML of %s: %w", pageURL, err)
	}
	return doc, nil
}
