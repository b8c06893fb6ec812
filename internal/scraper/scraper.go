// Package scraper fetches pages from the deal sites. It owns transport
// concerns only: headers, host allowlist, rate limiting, retries and pacing.
// Parsing belongs to the individual sources.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/PRYePR/moreyudeals-sub000/internal/util"
)

// ErrBlocked is returned when a site answers 403 or 429. It is never retried.
var ErrBlocked = errors.New("request blocked by remote site")

// DefaultUserAgent mimics a current desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"

const maxBodyBytes = 8 << 20

// Fetcher loads a page as a parsed document. Client and BrowserFetcher both implement it.
type Fetcher interface {
	FetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error)
}

type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RequestsPerSecond limits outbound requests; zero disables the limit.
	RequestsPerSecond float64
	// AllowedDomains are registrable domains or exact hosts the client may request.
	AllowedDomains []string
}

type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	allowed    map[string]bool
}

// New creates a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{httpClient: httpClient, cfg: cfg, allowed: make(map[string]bool)}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, d := range cfg.AllowedDomains {
		c.allowed[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return c
}

// CheckAllowed rejects non-http URLs and hosts outside the allowlist.
func CheckAllowed(allowed map[string]bool, rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %s: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme %s: only http and https allowed", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if !allowed[host] && !allowed[util.GetDomain(host)] {
		return nil, fmt.Errorf("security violation: URL hostname %s is not in allowlist", host)
	}
	return u, nil
}

// FetchBody GETs pageURL with retries and returns the response body.
func (c *Client) FetchBody(ctx context.Context, pageURL string, accept string) ([]byte, error) {
	if _, err := CheckAllowed(c.allowed, pageURL); err != nil {
		return nil, err
	}

	var body []byte
	err := util.RetryWithBackoff(ctx, c.cfg.MaxRetries, func(attempt int) error {
		if attempt > 0 {
			slog.Warn("Retrying fetch", "url", pageURL, "attempt", attempt+1)
		}
		b, err := c.fetchOnce(ctx, pageURL, accept)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageURL, accept string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, util.Permanent(err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, util.Permanent(fmt.Errorf("failed to create request for URL %s: %w", pageURL, err))
	}
	c.setHeaders(req, accept)

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, util.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("failed to fetch URL %s: %w", pageURL, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusTooManyRequests:
		return nil, util.Permanent(fmt.Errorf("%w: %s returned %d", ErrBlocked, pageURL, res.StatusCode))
	case res.StatusCode >= 500:
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", pageURL, res.StatusCode)
	case res.StatusCode != http.StatusOK:
		return nil, util.Permanent(fmt.Errorf("failed to fetch URL %s: status code %d", pageURL, res.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", pageURL, err)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	if accept == "" {
		accept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "de-AT,de;q=0.9,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
}

// FetchDocument fetches an HTML page and parses it.
func (c *Client) FetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := c.FetchBody(ctx, pageURL, "")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML of %s: %w", pageURL, err)
	}
	return doc, nil
}

// FetchJSON fetches pageURL and decodes the JSON body into v.
func (c *Client) FetchJSON(ctx context.Context, pageURL string, v any) error {
	body, err := c.FetchBody(ctx, pageURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode JSON from %s: %w", pageURL, err)
	}
	return nil
}
