// Package salary recovers a numeric range and currency symbol from the
// free-text salary strings found on job boards.
package salary

import (
	"regexp"
	"strconv"
	"strings"
)

// The separator class matches any run of '-', '–', 't' or 'o' characters,
// which is how "to" is accepted. It is not a word match.
var (
	rangePattern  = regexp.MustCompile(`([$£€])\s*([\d,]+)\s*[-–to]+\s*([$£€])?\s*([\d,]+)`)
	amountPattern = regexp.MustCompile(`([$£€])\s*([\d,]+(?:\.\d{1,2})?)`)
)

// Range is the parsed form of a salary string. Every field is nil when the
// corresponding value could not be recovered.
type Range struct {
	Min      *float64
	Max      *float64
	Currency *string
}

// Empty reports whether nothing was recovered.
func (r Range) Empty() bool {
	return r.Min == nil && r.Max == nil && r.Currency == nil
}

// Parse never fails: unrecognised input yields an empty Range.
func Parse(raw string) Range {
	if raw == "" {
		return Range{}
	}
	s := strings.ReplaceAll(raw, ",", "")

	if m := rangePattern.FindStringSubmatch(s); m != nil {
		currency := m[1]
		if currency == "" {
			currency = m[3]
		}
		lo, errLo := strconv.ParseFloat(m[2], 64)
		hi, errHi := strconv.ParseFloat(m[4], 64)
		if errLo == nil && errHi == nil {
			if hi < lo {
				lo, hi = hi, lo
			}
			return Range{Min: &lo, Max: &hi, Currency: symbol(currency)}
		}
	}

	if m := amountPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseFloat(m[2], 64)
		if err == nil {
			return Range{Min: &n, Currency: symbol(m[1])}
		}
	}

	return Range{}
}

func symbol(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
