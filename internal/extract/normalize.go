// Package extract infers pack counts, product lines, and prices from free-text
// retailer product titles. Everything here is a pure function of its inputs.
package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var apostropheReplacer = strings.NewReplacer(
	"’", "",
	"‘", "",
	"'", "",
	" ", " ",
	"®", " ",
	"™", " ",
)

// Fold lowercases s, strips diacritics and apostrophes, and collapses
// whitespace so "Couches Parent’s Choice® Taille 3" and
// "couches parents choice taille 3" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = apostropheReplacer.Replace(out)
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
