package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Layouts tried before the free-text fallback. Layouts without an offset are
// read in the caller's location.
var isoLayouts = []struct { //nolint:gochecknoglobals // read-only layout table
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05Z0700", true},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", false},
}

// bareHour matches an hour with a meridiem and no minutes, as in "8pm".
var bareHour = regexp.MustCompile(`(?i)(^|[^:\d])(\d{1,2})\s*([ap]m)\b`) //nolint:gochecknoglobals // compiled once

// ParseTime reads ISO-8601 first, then free text. Values without an offset are
// interpreted in loc. Slashed dates are read day first, and a bare hour such as
// "8pm" gets its minutes. The result is UTC.
func ParseTime(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, l := range isoLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, value)
		} else {
			t, err = time.ParseInLocation(l.layout, value, loc)
		}
		if err == nil {
			return t.UTC(), true
		}
	}
	t, err := dateparse.ParseIn(bareHour.ReplaceAllString(value, "${1}${2}:00${3}"), loc,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true),
	)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ParseBuyIn converts a loosely formatted amount into minor units. Thousands
// separators between a digit and exactly three digits are dropped, then the
// leading digit run is scaled by 100.
func ParseBuyIn(s string) (int64, bool) {
	s = stripThousands(s)
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 0, false
	}
	var amount int64
	for _, r := range s[start:] {
		if !isDigit(r) {
			break
		}
		amount = amount*10 + int64(r-'0')
		if amount > maxAmount {
			return 0, false
		}
	}
	return amount * 100, true
}

// maxAmount keeps amount*100 inside int64.
const maxAmount = (1<<63 - 1) / 100

// BuyInFromAmount scales a typed amount to minor units.
func BuyInFromAmount(amount float64) int64 {
	return int64(amount * 100)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isThousandsSep(r rune) bool {
	switch r {
	case '.', ',', ' ', '\'', '\u00a0', '\u202f':
		return true
	}
	return false
}

func stripThousands(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		if isThousandsSep(r) && i > 0 && isDigit(runes[i-1]) && groupOfThree(runes[i+1:]) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// groupOfThree reports whether rs starts with exactly three digits.
func groupOfThree(rs []rune) bool {
	if len(rs) < 3 {
		return false
	}
	for _, r := range rs[:3] {
		if !isDigit(r) {
			return false
		}
	}
	return len(rs) == 3 || !isDigit(rs[3])
}

// NormalizeVariant classifies free text into a canonical variant. Unmatched
// text is kept, trimmed and capitalized.
func NormalizeVariant(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "hold"):
		return model.VariantHoldem, true
	case strings.Contains(lower, "omaha"), strings.Contains(lower, "plo"):
		return model.VariantOmaha, true
	case strings.Contains(lower, "mixed"):
		return model.VariantMixed, true
	}
	return capitalize(lower), true
}

func capitalize(lower string) string {
	r, size := utf8.DecodeRuneInString(lower)
	return string(unicode.ToUpper(r)) + lower[size:]
}

// NormalizeCurrency returns an upper-case 3-letter code, or fallback.
func NormalizeCurrency(s, fallback string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 3 && strings.IndexFunc(s, func(r rune) bool { return r < 'A' || r > 'Z' }) < 0 {
		return s
	}
	switch s {
	case "€":
		return "EUR"
	case "$":
		return "USD"
	case "£":
		return "GBP"
	}
	return fallback
}
