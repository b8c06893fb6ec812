package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	hashDescriptionPrefix = 200
	maxSlugLength         = 80
)

// ContentHash fingerprints a deal by its substance: title, the first 200 runes of
// the description and the price. Source ids and dates are deliberately not part
// of it, so a re-post of the same offer hashes identically.
func ContentHash(title, description string, price *float64) string {
	desc := []rune(collapse(description))
	if len(desc) > hashDescriptionPrefix {
		desc = desc[:hashDescriptionPrefix]
	}
	priceStr := ""
	if price != nil {
		priceStr = fmt.Sprintf("%.2f", *price)
	}
	sum := sha256.Sum256([]byte(collapse(title) + "|" + string(desc) + "|" + priceStr))
	return hex.EncodeToString(sum[:])[:16]
}

func collapse(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var titlePriceClauseRegex = regexp.MustCompile(`(?i)\s*[-–—|:,]?\s*(?:(?:um|für|ab|nur|jetzt|bereits|zum\s+preis\s+von)\s+)?(?:€\s*)?(?:` + amountExpr + `)\s*` + currencyExpr +
	`(?:\s*\(?\s*(?:statt|uvp|original|vorher)\s*:?\s*(?:€\s*)?(?:` + amountExpr + `)\s*` + currencyExpr + `?\s*\)?)?\s*$`)

// CleanTitle removes a trailing price clause such as "um 25 € statt 50 €".
// Only titles are cleaned; description text keeps its prices.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	cleaned := strings.TrimSpace(titlePriceClauseRegex.ReplaceAllString(title, ""))
	if cleaned == "" {
		return title
	}
	return cleaned
}

var (
	germanReplacer = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "Ä", "Ae", "Ö", "Oe", "Ü", "Ue", "ß", "ss")
	nonSlugRegex   = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify lowercases and transliterates s into a hyphenated ASCII identifier.
func Slugify(s string) string {
	s = germanReplacer.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = nonSlugRegex.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
		if i := strings.LastIndex(s, "-"); i > maxSlugLength/2 {
			s = s[:i]
		}
		s = strings.Trim(s, "-")
	}
	return s
}

// DealSlug builds the public slug of a deal from its title and external id.
func DealSlug(title, externalID string) string {
	base := Slugify(title)
	id := Slugify(externalID)
	switch {
	case base == "":
		return id
	case id == "":
		return base
	default:
		return base + "-" + id
	}
}
