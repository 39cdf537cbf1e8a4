package extract

import (
	"regexp"
	"strings"
)

var diaperKeywords = []string{"diaper", "couche", "nappy", "nappies"}

// excludedKeywords mark adjacent categories that share brands and shelf
// space with diapers but are not comparable per unit.
var excludedKeywords = []string{
	"training pant",
	"pull-up",
	"pull up",
	"pullup",
	"easy ups",
	"easy-ups",
	"goodnites",
	"swim",
	"wipe",
	"lingette",
	"underwear",
	"sous-vetement",
	"culotte",
	"liner",
	"diaper cream",
	"diaper bag",
	"diaper pail",
	"diaper rash",
}

// IsDiaperProduct reports whether title describes a diaper pack of brand:
// the brand appears, a diaper keyword appears, and no excluded category does.
func IsDiaperProduct(title, brand string) bool {
	t := Fold(title)
	b := Fold(brand)
	if t == "" || b == "" || !strings.Contains(t, b) {
		return false
	}
	for _, ex := range excludedKeywords {
		if strings.Contains(t, ex) {
			return false
		}
	}
	for _, kw := range diaperKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

var sizeMentionRe = regexp.MustCompile(`\b(?:size|sizes|sz|taille|tailles)\s*[:#]?\s*(newborn|nb|n|preemie|p|\d{1,2})\+?\b`)

// MatchesSize reports whether title is compatible with the requested size.
// Titles that mention no size at all are accepted; titles that mention sizes
// must mention the requested one.
func MatchesSize(title, size string) bool {
	want := canonicalSize(Fold(size))
	if want == "" {
		return true
	}
	matches := sizeMentionRe.FindAllStringSubmatch(Fold(title), -1)
	if len(matches) == 0 {
		return true
	}
	for _, m := range matches {
		if canonicalSize(m[1]) == want {
			return true
		}
	}
	return false
}

func canonicalSize(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "size"))
	switch s {
	case "newborn", "nb", "n":
		return "n"
	case "preemie", "p":
		return "p"
	}
	return strings.TrimLeft(s, "0")
}
