package receipt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for strings that are not a number
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a locale-formatted number such as "1 234,56", "1,234.56",
// "7,98 zł" or "-1,00". When both separators occur, the last one is the
// decimal separator. A single separator kind occurring once is decimal,
// occurring several times it groups thousands.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	negative := false
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.':
			b.WriteRune(r)
		case r == '-' || r == '−':
			negative = true
		case unicode.IsSpace(r), r == '\'', r == '+':
			// grouping or sign noise
		case unicode.IsLetter(r) || unicode.IsSymbol(r):
			// currency codes and symbols
			if b.Len() > 0 && containsDigitAfter(s, r) {
				return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
		default:
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	num := b.String()
	if num == "" || strings.Trim(num, ".,") == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	lastComma := strings.LastIndex(num, ",")
	lastDot := strings.LastIndex(num, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(num, ",") > 1 {
			num = strings.ReplaceAll(num, ",", "")
		} else {
			num = strings.Replace(num, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(num, ".") > 1 {
			num = strings.ReplaceAll(num, ".", "")
		}
	}
	if strings.Count(num, ".") > 1 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// containsDigitAfter reports whether a digit follows the first occurrence of r in s
func containsDigitAfter(s string, r rune) bool {
	idx := strings.IndexRune(s, r)
	if idx < 0 {
		return false
	}
	for _, c := range s[idx:] {
		if c >= '0' && c <= '9' {
			return true
		}
	}
	return false
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"02.01.2006",
	"02-01-2006",
	"02/01/2006",
	"2.1.2006",
	"02.01.06",
}

var datePattern = regexp.MustCompile(`\b(\d{4}[-./]\d{1,2}[-./]\d{1,2}|\d{1,2}[-./]\d{1,2}[-./]\d{2,4})\b`)

// ParseDate parses a purchase date in one of the common receipt layouts.
// Day-first layouts win over month-first ones. The result is a civil date at
// midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// findDate extracts the first parseable date in a line of text
func findDate(line string) (time.Time, bool) {
	for _, candidate := range datePattern.FindAllString(line, -1) {
		if d, err := ParseDate(candidate); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
