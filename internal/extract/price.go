package extract

import (
	"math"
	"regexp"
	"strings"
)

// PriceInfo is the outcome of price extraction. Nil fields were not found.
type PriceInfo struct {
	Price           *float64
	OriginalPrice   *float64
	DiscountPercent *int
	// Rule names the pair rule that matched, or "single"/"largest" for the fallback.
	Rule string
}

// Found reports whether any current price was extracted.
func (p PriceInfo) Found() bool { return p.Price != nil }

// priceRule recognizes an explicit "current vs. original" price pair.
type priceRule struct {
	name    string
	pattern *regexp.Regexp
	// extract returns the current and original amount strings of one match.
	extract func(m []string) (current, original string)
}

func forward(m []string) (string, string)  { return m[1], m[2] }
func backward(m []string) (string, string) { return m[2], m[1] }

func rule(name, expr string, extract func([]string) (string, string)) priceRule {
	expr = strings.ReplaceAll(expr, "AMT", "("+amountExpr+")")
	expr = strings.ReplaceAll(expr, "CUR", currencyExpr)
	return priceRule{name: name, pattern: regexp.MustCompile("(?i)" + expr), extract: extract}
}

// pairRules are evaluated in order; the first match with current < original wins.
var pairRules = []priceRule{
	rule("statt", `AMT\s*CUR\s*statt\s*(?:€\s*)?AMT`, forward),
	rule("euro-prefix-statt", `€\s*AMT\s*statt\s*(?:€\s*)?AMT`, forward),
	rule("von-auf", `von\s*(?:€\s*)?AMT\s*(?:CUR)?\s*auf\s*(?:€\s*)?AMT\s*(?:CUR)?`, backward),
	rule("parenthetical", `AMT\s*CUR\s*\(\s*(?:original|uvp|statt|vorher|regulär)\s*:?\s*(?:€\s*)?AMT\s*(?:CUR)?\s*\)`, forward),
	rule("uvp", `AMT\s*CUR\s*[,;/-]?\s*(?:uvp|listenpreis)\s*:?\s*(?:€\s*)?AMT`, forward),
}

// apply runs the rule over text and returns the first valid pair.
func (r priceRule) apply(text string) (current, original float64, ok bool) {
	for _, m := range r.pattern.FindAllStringSubmatch(text, -1) {
		curStr, origStr := r.extract(m)
		cur, okCur := ParseAmount(curStr)
		orig, okOrig := ParseAmount(origStr)
		if okCur && okOrig && cur < orig {
			return cur, orig, true
		}
	}
	return 0, 0, false
}

// exclusionRegexes match amounts that are shipping, handling or comparison
// prices and must not be taken as the product price.
var exclusionRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:zzgl\.?\s*|plus\s*|\+\s*)?(?:bis\s+zu\s+|ab\s+|je\s+|nur\s+)?(?:€\s*)?(?:` + amountExpr + `)\s*` + currencyExpr + `?\s*(?:versand(?:kosten|gebühr(?:en)?|pauschale)?|speditions(?:kosten|versand|gebühr(?:en)?)|liefer(?:kosten|gebühr(?:en)?)|porto|shipping|bearbeitungsgebühr(?:en)?)`),
	regexp.MustCompile(`(?i)(?:versand(?:kosten)?|speditionskosten|lieferkosten|shipping|vergleichspreis|preisvergleich|idealo|geizhals|nächstbester\s+preis)\s*(?:beträgt|liegt\s+bei|von|ab|:)?\s*(?:nur\s+|ca\.\s*|bei\s+|ab\s+)?(?:€\s*)?(?:` + amountExpr + `)\s*` + currencyExpr + `?`),
}

var standaloneAmountRegex = regexp.MustCompile(`(?i)€\s*(` + amountExpr + `)|(` + amountExpr + `)\s*` + currencyExpr)

// ExtractPrice derives current price, original price and discount from free text
// (typically title and body). Explicit pairs are preferred. Otherwise shipping and
// comparison amounts are removed, a single remaining amount is the price, and
// among several the largest is taken. The largest-amount choice is a heuristic
// and is a known source of wrong prices for multi-item posts.
func ExtractPrice(texts ...string) PriceInfo {
	text := strings.Join(texts, "\n")
	if strings.TrimSpace(text) == "" {
		return PriceInfo{}
	}

	for _, r := range pairRules {
		if cur, orig, ok := r.apply(text); ok {
			return pairInfo(cur, orig, r.name)
		}
	}

	amounts := StandaloneAmounts(StripExcluded(text))
	switch len(amounts) {
	case 0:
		return PriceInfo{}
	case 1:
		v := amounts[0]
		return PriceInfo{Price: &v, Rule: "single"}
	default:
		largest := amounts[0]
		for _, a := range amounts[1:] {
			if a > largest {
				largest = a
			}
		}
		return PriceInfo{Price: &largest, Rule: "largest"}
	}
}

// StripExcluded blanks out shipping, handling and comparison price spans.
func StripExcluded(text string) string {
	for _, re := range exclusionRegexes {
		text = re.ReplaceAllString(text, " ")
	}
	return text
}

// StandaloneAmounts returns every amount written with a currency marker.
func StandaloneAmounts(text string) []float64 {
	var out []float64
	for _, m := range standaloneAmountRegex.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if v, ok := ParseAmount(raw); ok && v > 0 {
			out = append(out, v)
		}
	}
	return out
}

// Discount returns round((original-current)/original*100), or nil when the
// result falls outside (0, 100].
func Discount(current, original float64) *int {
	if original <= 0 || current < 0 || current >= original {
		return nil
	}
	pct := int(math.Round((original - current) / original * 100))
	if pct <= 0 || pct > 100 {
		return nil
	}
	return &pct
}

// PriceFromValues builds a PriceInfo from structured values such as API fields.
func PriceFromValues(current, original *float64) PriceInfo {
	if current == nil {
		return PriceInfo{}
	}
	if original != nil && *current < *original {
		return pairInfo(*current, *original, "structured")
	}
	v := *current
	return PriceInfo{Price: &v, Rule: "structured"}
}

func pairInfo(cur, orig float64, name string) PriceInfo {
	return PriceInfo{
		Price:           &cur,
		OriginalPrice:   &orig,
		DiscountPercent: Discount(cur, orig),
		Rule:            name,
	}
}
