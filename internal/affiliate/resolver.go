// Package affiliate rewrites outbound merchant links into affiliate links,
// following cloaked redirect links to their real destination first.
package affiliate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/PRYePR/moreyudeals-sub000/internal/extract"
)

// DefaultCloakHosts are redirect hosts that hide the merchant destination.
var DefaultCloakHosts = []string{
	"forward.sparhamster.at",
	"amzn.to",
	"go.redirectingat.com",
	"click.linksynergy.com",
}

const (
	maxBodyBytes   = 1 << 20
	maxResolveHops = 2
)

// Result is the outcome for one link. When Enabled is false the caller keeps
// the original link.
type Result struct {
	Enabled       bool
	AffiliateLink string
	Network       string
}

type Config struct {
	CloakHosts []string
	UserAgent  string
	Timeout    time.Duration
}

type Resolver struct {
	client     *http.Client
	networks   []Network
	cloakHosts map[string]bool
	userAgent  string
}

// New creates a resolver. client may be nil; networks are tried in order.
func New(cfg Config, client *http.Client, networks ...Network) *Resolver {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	hosts := cfg.CloakHosts
	if len(hosts) == 0 {
		hosts = DefaultCloakHosts
	}
	r := &Resolver{networks: networks, cloakHosts: make(map[string]bool), userAgent: cfg.UserAgent}
	for _, h := range hosts {
		r.cloakHosts[strings.ToLower(strings.TrimSpace(h))] = true
	}

	// Redirects are followed only while they stay on cloak hosts; the merchant
	// page itself is never requested.
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after %d redirects", len(via))
		}
		if !r.isCloaked(req.URL) {
			return http.ErrUseLastResponse
		}
		return nil
	}
	r.client = &c
	return r
}

func (r *Resolver) isCloaked(u *url.URL) bool {
	return r.cloakHosts[strings.ToLower(u.Hostname())]
}

// Process resolves link and hands the destination to the first matching
// network. Any failure leaves the result disabled; the error says why.
func (r *Resolver) Process(ctx context.Context, merchant, canonicalMerchantName, link string) (Result, error) {
	if strings.TrimSpace(link) == "" {
		return Result{}, nil
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return Result{}, fmt.Errorf("invalid merchant link %q", link)
	}

	merchantID := extract.Slugify(canonicalMerchantName)
	if merchantID == "" {
		merchantID = extract.Slugify(merchant)
	}

	dest := u
	if r.isCloaked(u) {
		// A cloak is only followed for merchants some network could tag.
		if !r.claimed(merchantID) {
			return Result{}, nil
		}
		dest, err = r.resolve(ctx, u, 0)
		if err != nil {
			return Result{}, err
		}
	}
	for _, n := range r.networks {
		if !n.Matches(merchantID, dest) {
			continue
		}
		affLink, err := n.Build(dest)
		if err != nil {
			return Result{}, err
		}
		slog.Debug("Affiliate link built", "network", n.Name(), "merchant", merchantID)
		return Result{Enabled: true, AffiliateLink: affLink, Network: n.Name()}, nil
	}
	return Result{}, nil
}

func (r *Resolver) claimed(merchantID string) bool {
	for _, n := range r.networks {
		if n.Claims(merchantID) {
			return true
		}
	}
	return false
}

// strategy extracts a destination from a fetched cloak page.
type strategy struct {
	name string
	find func(base *url.URL, body []byte, doc *goquery.Document) (string, bool)
}

var bodyStrategies = []strategy{
	{name: "tracking-pixel", find: findTrackingPixel},
	{name: "meta-refresh", find: findMetaRefresh},
	{name: "script-scan", find: findScriptURL},
	{name: "anchor-scan", find: findAnchor},
}

var destinationParams = []string{"murl", "url", "u", "dest", "destination", "target"}

func (r *Resolver) resolve(ctx context.Context, u *url.URL, hop int) (*url.URL, error) {
	// Many redirectors carry the destination in the query string.
	if dest, ok := destinationFromQuery(u); ok {
		return r.next(ctx, dest, hop)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	if loc := resp.Header.Get("Location"); loc != "" && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		ref, err := url.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("%w: bad redirect %q: %v", ErrUnresolved, loc, err)
		}
		return r.next(ctx, final.ResolveReference(ref), hop)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrUnresolved, final, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrUnresolved, final, err)
	}
	for _, s := range bodyStrategies {
		if raw, ok := s.find(final, body, doc); ok {
			dest, err := url.Parse(raw)
			if err != nil || dest.Host == "" {
				continue
			}
			slog.Debug("Resolved cloaked link", "strategy", s.name, "from", u.String())
			return r.next(ctx, dest, hop)
		}
	}
	return nil, fmt.Errorf("%w: no destination found on %s", ErrUnresolved, final)
}

func (r *Resolver) next(ctx context.Context, dest *url.URL, hop int) (*url.URL, error) {
	if r.isCloaked(dest) {
		if hop+1 >= maxResolveHops {
			return nil, fmt.Errorf("%w: too many cloaked hops", ErrUnresolved)
		}
		return r.resolve(ctx, dest, hop+1)
	}
	return dest, nil
}

func destinationFromQuery(u *url.URL) (*url.URL, bool) {
	q := u.Query()
	for _, key := range destinationParams {
		if dest, ok := absoluteURL(q.Get(key)); ok {
			return dest, true
		}
	}
	return nil, false
}

func absoluteURL(raw string) (*url.URL, bool) {
	if raw == "" {
		return nil, false
	}
	// Values are sometimes encoded twice.
	if !strings.HasPrefix(raw, "http") {
		if dec, err := url.QueryUnescape(raw); err == nil {
			raw = dec
		}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

func findTrackingPixel(_ *url.URL, _ []byte, doc *goquery.Document) (string, bool) {
	var found string
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, err := url.Parse(img.AttrOr("src", ""))
		if err != nil {
			return true
		}
		if dest, ok := destinationFromQuery(src); ok {
			found = dest.String()
			return false
		}
		return true
	})
	return found, found != ""
}

var refreshURLRegex = regexp.MustCompile(`(?i)url\s*=\s*['"]?([^'"\s>]+)`)

func findMetaRefresh(base *url.URL, _ []byte, doc *goquery.Document) (string, bool) {
	var content string
	doc.Find("meta[http-equiv][content]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if strings.EqualFold(m.AttrOr("http-equiv", ""), "refresh") {
			content = m.AttrOr("content", "")
			return false
		}
		return true
	})
	if content == "" {
		return "", false
	}
	m := refreshURLRegex.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	ref, err := url.Parse(m[1])
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

var amazonURLRegex = regexp.MustCompile(`https?:(?:\\?/){2}(?:www\.)?amazon\.[a-z.]{2,6}(?:\\?/[^\s"'<>\\]*)+`)

func findScriptURL(_ *url.URL, body []byte, _ *goquery.Document) (string, bool) {
	m := amazonURLRegex.Find(body)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(string(m), `\/`, "/"), true
}

func findAnchor(base *url.URL, _ []byte, doc *goquery.Document) (string, bool) {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		ref, err := url.Parse(a.AttrOr("href", ""))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if isAmazonHost(abs.Hostname()) {
			found = abs.String()
			return false
		}
		return true
	})
	return found, found != ""
}
