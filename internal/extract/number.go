// Package extract holds the pure text heuristics used to turn listing markup
// into structured deal fields: amounts, price pairs, expiry times, hashes and slugs.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// amountExpr matches one locale-formatted amount. Alternatives are ordered so that
// thousands-grouped values win over plain decimals.
const amountExpr = `\d{1,3}(?:\.\d{3})+(?:,\d{1,2}|,-)?|\d+\.\d{1,2}|\d+(?:,\d{1,2}|,-)?`

// currencyExpr matches the currency markers used next to an amount.
const currencyExpr = `(?:€|eur(?:o)?\b)`

var thousandsOnlyRegex = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)

// ParseAmount parses a German/Austrian formatted amount such as "1.108,24 €",
// "84,99", "25,-" or "1.299". A trailing ",dd" is the fraction; "." groups
// thousands when a ","-fraction follows or exactly three digits follow it.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("€", "", " ", "", " ", "", "EUR", "", "Euro", "").Replace(s)
	s = strings.TrimSuffix(s, ",-")
	s = strings.TrimSuffix(s, ".-")
	if s == "" {
		return 0, false
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case thousandsOnlyRegex.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
