package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
)

var (
	expiredRegex  = regexp.MustCompile(`(?i)\b(?:abgelaufen|expired|beendet)\b`)
	stillRegex    = regexp.MustCompile(`(?i)noch\s+(\d+)\s*(minuten|minute|min\.?|stunden|stunde|std\.?|tagen|tage|tag|wochen|woche|monaten|monate|monat)\b`)
	englishRegex  = regexp.MustCompile(`(?i)(\d+)\s*(minutes?|mins?|hours?|hrs?|days?|weeks?|months?)\s+(?:left|remaining)`)
	compactRegex  = regexp.MustCompile(`(?i)^(?:\d+\s*(?:wo|w|d|t|h|min|m)\s*)+$`)
	compactTokens = regexp.MustCompile(`(?i)(\d+)\s*(wo|w|d|t|h|min|m)`)
	leadInRegex   = regexp.MustCompile(`(?i)^(?:noch|endet\s+in|läuft\s+ab\s+in|gültig\s+noch|ends\s+in)\s*:?\s*`)
)

var unitDurations = map[string]time.Duration{
	"minute": time.Minute, "minuten": time.Minute, "min": time.Minute, "min.": time.Minute,
	"minutes": time.Minute, "mins": time.Minute, "m": time.Minute,
	"stunde": time.Hour, "stunden": time.Hour, "std": time.Hour, "std.": time.Hour,
	"hour": time.Hour, "hours": time.Hour, "hr": time.Hour, "hrs": time.Hour, "h": time.Hour,
	"tag": day, "tage": day, "tagen": day, "day": day, "days": day, "d": day, "t": day,
	"woche": week, "wochen": week, "week": week, "weeks": week, "w": week, "wo": week,
	"monat": month, "monate": month, "monaten": month, "month": month, "months": month,
}

// ParseExpiry converts relative expiry text such as "noch 3 Tage", "5 hours left"
// or "7h 24m" into an absolute time by adding it to fetchedAt. Text marking the
// deal as expired yields fetchedAt itself.
func ParseExpiry(text string, fetchedAt time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if expiredRegex.MatchString(text) {
		return fetchedAt, true
	}
	if m := stillRegex.FindStringSubmatch(text); m != nil {
		if d, ok := unitAmount(m[1], m[2]); ok {
			return fetchedAt.Add(d), true
		}
	}
	if m := englishRegex.FindStringSubmatch(text); m != nil {
		if d, ok := unitAmount(m[1], m[2]); ok {
			return fetchedAt.Add(d), true
		}
	}

	compact := strings.TrimSpace(leadInRegex.ReplaceAllString(text, ""))
	if compactRegex.MatchString(compact) {
		var total time.Duration
		for _, m := range compactTokens.FindAllStringSubmatch(compact, -1) {
			d, ok := unitAmount(m[1], m[2])
			if !ok {
				return time.Time{}, false
			}
			total += d
		}
		if total > 0 {
			return fetchedAt.Add(total), true
		}
	}
	return time.Time{}, false
}

func unitAmount(n, unit string) (time.Duration, bool) {
	v, err := strconv.Atoi(n)
	if err != nil {
		return 0, false
	}
	d, ok := unitDurations[strings.ToLower(unit)]
	if !ok {
		return 0, false
	}
	return time.Duration(v) * d, true
}
