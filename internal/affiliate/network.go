package affiliate

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PRYePR/moreyudeals-sub000/internal/util"
)

var (
	// ErrNotImplemented is returned by networks that are registered but not wired yet.
	ErrNotImplemented = errors.New("affiliate network not implemented")
	// ErrUnresolved is returned when a cloaked link could not be followed to its destination.
	ErrUnresolved = errors.New("affiliate link could not be resolved")
)

// Network rewrites a merchant destination into a tracked affiliate link.
type Network interface {
	Name() string
	// Claims reports whether the network runs a program for merchantID. An
	// empty merchantID is an unknown merchant; networks that recognize
	// merchants by destination host claim it.
	Claims(merchantID string) bool
	// Matches reports whether the network handles this merchant or destination.
	Matches(merchantID string, dest *url.URL) bool
	Build(dest *url.URL) (string, error)
}

// Amazon tags product links with an associate tag.
type Amazon struct {
	Tag string
}

func (a Amazon) Name() string { return "amazon" }

func (a Amazon) Claims(merchantID string) bool {
	return merchantID == "" || strings.HasPrefix(merchantID, "amazon")
}

func (a Amazon) Matches(_ string, dest *url.URL) bool {
	return isAmazonHost(dest.Hostname())
}

func isAmazonHost(host string) bool {
	return strings.HasPrefix(util.GetDomain(host), "amazon.")
}

var asinRegex = regexp.MustCompile(`/(?:dp|gp/product|gp/aw/d|exec/obidos/ASIN|o/ASIN)/([A-Z0-9]{10})(?:[/?]|$)`)

// Build canonicalizes product links to /dp/<ASIN> on the same marketplace and
// sets the tag, replacing whatever tag the link carried.
func (a Amazon) Build(dest *url.URL) (string, error) {
	if a.Tag == "" {
		return "", fmt.Errorf("amazon: no associate tag configured")
	}
	domain := util.GetDomain(dest.Hostname())
	if m := asinRegex.FindStringSubmatch(dest.EscapedPath()); m != nil {
		return "https://www." + domain + "/dp/" + m[1] + "?tag=" + url.QueryEscape(a.Tag), nil
	}

	// Search and landing pages keep their path; only the tag changes.
	out := *dest
	out.Scheme = "https"
	q := out.Query()
	q.Set("tag", a.Tag)
	out.RawQuery = q.Encode()
	out.Fragment = ""
	return out.String(), nil
}

// Stub is a registered network whose link format is not implemented. It claims
// its merchants so they are reported instead of silently passing through.
type Stub struct {
	NetworkName string
	Merchants   map[string]bool
}

func NewStub(name string, merchantIDs ...string) Stub {
	s := Stub{NetworkName: name, Merchants: make(map[string]bool)}
	for _, id := range merchantIDs {
		s.Merchants[id] = true
	}
	return s
}

func (s Stub) Name() string { return s.NetworkName }

func (s Stub) Claims(merchantID string) bool {
	return s.Merchants[merchantID]
}

func (s Stub) Matches(merchantID string, _ *url.URL) bool {
	return s.Merchants[merchantID]
}

func (s Stub) Build(*url.URL) (string, error) {
	return "", fmt.Errorf("%s: %w", s.NetworkName, ErrNotImplemented)
}
