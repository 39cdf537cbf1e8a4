package extract

import "strings"

// DefaultProductLine is returned when no known sub-line keyword matches.
const DefaultProductLine = "Regular"

type lineKeyword struct {
	keyword string
	line    string
}

// productLines maps a folded brand name to its known sub-lines. Order matters:
// the first keyword found in the title wins, so more specific keywords come first.
var productLines = map[string][]lineKeyword{
	"pampers": {
		{"pure protection", "Pure Protection"},
		{"swaddlers 360", "Swaddlers 360"},
		{"swaddlers", "Swaddlers"},
		{"baby dry night", "Baby Dry Night"},
		{"baby dry", "Baby Dry"},
		{"cruisers 360", "Cruisers 360"},
		{"cruisers", "Cruisers"},
		{"premium care", "Premium Care"},
		{"sensitive", "Sensitive"},
	},
	"huggies": {
		{"little snugglers", "Little Snugglers"},
		{"snugglers", "Little Snugglers"},
		{"little movers", "Little Movers"},
		{"special delivery", "Special Delivery"},
		{"skin essentials", "Skin Essentials"},
		{"overnites", "Overnites"},
		{"snug & dry", "Snug & Dry"},
		{"snug and dry", "Snug & Dry"},
		{"snug dry", "Snug & Dry"},
	},
	"kirkland": {
		{"supreme", "Supreme"},
		{"plus", "Plus"},
	},
	"hello bello": {
		{"overnight", "Overnight"},
		{"premium", "Premium"},
	},
	"honest": {
		{"overnight", "Overnight"},
		{"clean conscious", "Clean Conscious"},
	},
	"seventh generation": {
		{"sensitive protection", "Sensitive Protection"},
		{"free & clear", "Free & Clear"},
		{"free and clear", "Free & Clear"},
		{"overnight", "Overnight"},
	},
	"parents choice": {
		{"overnight", "Overnight"},
		{"premium", "Premium"},
	},
	"life brand": {
		{"ultra", "Ultra"},
		{"premium", "Premium"},
	},
	"luvs": {
		{"pro level", "Pro Level"},
		{"ultra leakguards", "Ultra Leakguards"},
	},
	"babyganics": {
		{"ultra absorbent", "Ultra Absorbent"},
	},
}

// KnownBrands returns the brands with product-line dictionaries, folded.
func KnownBrands() []string {
	out := make([]string, 0, len(productLines))
	for b := range productLines {
		out = append(out, b)
	}
	return out
}

// ExtractProductLine returns the brand's sub-line named in title, or
// DefaultProductLine when none of the brand's keywords appear.
func ExtractProductLine(title, brand string) string {
	lines, ok := productLines[Fold(brand)]
	if !ok {
		return DefaultProductLine
	}
	t := Fold(title)
	for _, lk := range lines {
		if strings.Contains(t, lk.keyword) {
			return lk.line
		}
	}
	return DefaultProductLine
}
