// Package format holds the presentation helpers shared by receipts, reports
// and search: currency strings, day-first timestamps and accent folding.
package format

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Timestamps are stored as strings in these layouts. Day queries match on the
// DayLayout prefix of the full value.
const (
	TimestampLayout = "02/01/2006 15:04:05"
	DayLayout       = "02/01/2006"
)

// Currency renders a money amount as $1,234.56 with thousands separators.
func Currency(amount decimal.Decimal) string {
	s := amount.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(fracPart)
	return b.String()
}

// Timestamp renders t in the stored day-first layout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Day renders the calendar-day part of t.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// DayOf extracts the calendar-day prefix of a stored timestamp string.
func DayOf(timestamp string) string {
	if len(timestamp) < len(DayLayout) {
		return timestamp
	}
	return timestamp[:len(DayLayout)]
}

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics, so "Jalapeño" matches "jalapeno".
func Fold(s string) string {
	out, _, err := transform.String(foldChain, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// MatchesFold reports whether the folded needle occurs in the folded haystack.
func MatchesFold(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}
