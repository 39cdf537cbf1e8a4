package extract

import (
	"regexp"
	"strconv"
)

// Plausible pack-count bounds. Pattern matches outside [MinCount, MaxCount]
// are ignored; the bare-number fallback uses the stricter [MinFallbackCount, MaxCount].
const (
	MinCount         = 12
	MinFallbackCount = 20
	MaxCount         = 300
)

// countPatterns are tried in order; the first pattern with an in-range
// capture wins.
var countPatterns = []*regexp.Regexp{
	// "198 count", "198ct", "198-pack", "120 pcs", "198 unites"
	regexp.MustCompile(`\b(\d{1,3})\s*-?\s*(?:count|ct|pack|pk|pieces|pcs|units|unites)\b`),
	// "size 3, 198" / "size 3 - 198"
	regexp.MustCompile(`\b(?:size|taille|sz)\s*\d{1,2}\+?\s*[,;:\-/]\s*(\d{2,3})\b`),
	// "(198)" / "(198 ct.)"
	regexp.MustCompile(`\(\s*(\d{2,3})\s*[a-z.]*\s*\)`),
	// "Baby Dry - 198"
	regexp.MustCompile(`(?:^|\s)-\s*(\d{2,3})\b`),
	// "198 diapers", "198 couches"
	regexp.MustCompile(`\b(\d{2,3})\s*(?:diapers?|couches?|nappies|pieces)\b`),
	// "box of 120", "case of 180"
	regexp.MustCompile(`\b(?:box|case|pack|boite|caisse)\s+(?:of|de)\s+(\d{2,3})\b`),
	// "186 one month supply", "168, 1 month supply"
	regexp.MustCompile(`\b(\d{2,3})\b[^\d]{0,16}\bmonth(?:ly)?\s+supply\b`),
	// "giant pack 144", "jumbo pack, 120"
	regexp.MustCompile(`\b(?:giant|mega|super|jumbo|family|economy)\s+pack\s*[,:\-]?\s*(\d{2,3})\b`),
}

var bareNumberRe = regexp.MustCompile(`\b(\d{2,3})\b`)

// keywordDefaults is the last-resort heuristic, checked in order.
var keywordDefaults = []struct {
	re    *regexp.Regexp
	count int
}{
	{regexp.MustCompile(`\b(?:mega|family)\b`), 144},
	{regexp.MustCompile(`\b(?:jumbo|giant)\b`), 120},
	{regexp.MustCompile(`\b(?:super|economy)\b`), 96},
	{regexp.MustCompile(`\b(?:newborn|preemie|nouveau-ne)\b`), 84},
}

// ExtractCount infers the number of diapers in a pack from its title.
// The second return is false when the count is indeterminate; callers must
// discard such listings rather than guess.
func ExtractCount(title string) (int, bool) {
	t := Fold(title)
	if t == "" {
		return 0, false
	}

	for _, re := range countPatterns {
		for _, m := range re.FindAllStringSubmatch(t, -1) {
			if n, ok := atoiInRange(m[1], MinCount, MaxCount); ok {
				return n, true
			}
		}
	}

	for _, m := range bareNumberRe.FindAllStringSubmatch(t, -1) {
		if n, ok := atoiInRange(m[1], MinFallbackCount, MaxCount); ok {
			return n, true
		}
	}

	for _, kd := range keywordDefaults {
		if kd.re.MatchString(t) {
			return kd.count, true
		}
	}

	return 0, false
}

func atoiInRange(s string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
