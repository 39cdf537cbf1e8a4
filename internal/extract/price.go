package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// priceTokenRe matches French-Canadian space-grouped amounts ("1 054,97")
// before falling back to plain digit runs with separators.
var priceTokenRe = regexp.MustCompile(`\d{1,3}(?:[\x{00a0}\x{202f} ]\d{3})+(?:,\d{2})?|\d[\d,.]*`)

var spaceRemover = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")

// ParsePrice extracts the first monetary amount from text. It understands
// "$54.97", "CDN$ 1,054.97", and French-Canadian "54,97 $" / "1 054,97 $".
func ParsePrice(text string) (float64, bool) {
	tok := priceTokenRe.FindString(text)
	if tok == "" {
		return 0, false
	}
	tok = spaceRemover.Replace(strings.TrimRight(tok, ".,"))

	lastComma := strings.LastIndex(tok, ",")
	lastDot := strings.LastIndex(tok, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.054,97
			tok = strings.ReplaceAll(tok, ".", "")
			tok = strings.Replace(tok, ",", ".", 1)
		} else {
			tok = strings.ReplaceAll(tok, ",", "")
		}
	case lastComma >= 0:
		if len(tok)-lastComma-1 == 2 && strings.Count(tok, ",") == 1 {
			tok = strings.Replace(tok, ",", ".", 1)
		} else {
			tok = strings.ReplaceAll(tok, ",", "")
		}
	case strings.Count(tok, ".") > 1:
		tok = strings.Replace(tok, ".", "", strings.Count(tok, ".")-1)
	}

	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
