package util

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// sourceDomains lists the registrable domains whose URLs NormalizeURL rewrites
// into one canonical form, so that the same post reached through the API and
// through HTML compares equal.
var sourceDomains = map[string]bool{
	"sparhamster.at": true,
	"preisjaeger.at": true,
}

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "ref", "fbclid", "gclid"}

func NormalizeURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}

	// Only apply normalization to known source domains
	if !sourceDomains[GetDomain(rawURL)] {
		return rawURL, nil
	}

	parsedURL.Scheme = "https"
	parsedURL.Host = strings.TrimPrefix(strings.ToLower(parsedURL.Host), "www.")
	parsedURL.Fragment = ""
	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = parsedURL.Path[:len(parsedURL.Path)-1]
		// Clear RawPath to ensure String() regenerates the URL path without the trailing slash
		parsedURL.RawPath = ""
	}
	queryParams := parsedURL.Query()
	for _, param := range trackingParams {
		queryParams.Del(param)
	}
	parsedURL.RawQuery = queryParams.Encode()
	return parsedURL.String(), nil
}

// ResolveURL makes href absolute against base. Unparseable input is returned as is.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// GetDomain returns the registrable domain (eTLD+1) of a URL or host name.
func GetDomain(rawURL string) string {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
