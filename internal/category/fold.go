package category

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters with a stroke have no canonical decomposition, so NFD leaves them alone.
var strokeReplacer = strings.NewReplacer(
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ø", "o", "Ø", "O",
	"ß", "ss",
)

// FoldCase removes diacritics and collapses whitespace but keeps letter case.
func FoldCase(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strokeReplacer.Replace(out)
	return strings.Join(strings.Fields(out), " ")
}

// Fold is FoldCase followed by lower-casing. It is the normal form used for
// rule matching and for pantry product keys.
func Fold(s string) string {
	return strings.ToLower(FoldCase(s))
}
