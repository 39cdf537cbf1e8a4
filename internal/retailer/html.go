package retailer

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// tileSpec lists selector fallbacks for a product grid. The first selector
// that yields a non-empty value wins.
type tileSpec struct {
	containers []string
	title      []string
	price      []string
	link       []string
	outOfStock []string
	// priceFn is tried when no price selector matches.
	priceFn func(s *goquery.Selection) string
}

func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "retailer: parse html")
	}
	return doc, nil
}

// parseTiles extracts raw items from the first container selector that
// matches anything.
func parseTiles(doc *goquery.Document, spec tileSpec) []rawItem {
	var tiles *goquery.Selection
	for _, sel := range spec.containers {
		if found := doc.Find(sel); found.Length() > 0 {
			tiles = found
			break
		}
	}
	if tiles == nil {
		return nil
	}

	var items []rawItem
	tiles.Each(func(_ int, s *goquery.Selection) {
		title := firstText(s, spec.title)
		if title == "" {
			title = firstAttr(s, spec.link, "title")
		}
		if title == "" {
			return
		}
		price := firstText(s, spec.price)
		if price == "" && spec.priceFn != nil {
			price = spec.priceFn(s)
		}
		items = append(items, rawItem{
			Title:     title,
			PriceText: price,
			URL:       firstAttr(s, spec.link, "href"),
			InStock:   inStock(s, spec.outOfStock),
		})
	})
	return items
}

// firstText returns the collapsed text of the first selector with content.
// Elements without text fall back to their content or data-price attribute.
func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		node := s.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := collapse(node.Text()); text != "" {
			return text
		}
		for _, attr := range []string{"content", "data-price", "aria-label"} {
			if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return collapse(v)
			}
		}
	}
	return ""
}

func firstAttr(s *goquery.Selection, selectors []string, attr string) string {
	for _, sel := range selectors {
		if v, ok := s.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var outOfStockPhrases = []string{"out of stock", "currently unavailable", "sold out", "rupture de stock", "non disponible"}

func inStock(s *goquery.Selection, markers []string) bool {
	for _, sel := range markers {
		if s.Find(sel).Length() > 0 {
			return false
		}
	}
	text := strings.ToLower(s.Text())
	for _, p := range outOfStockPhrases {
		if strings.Contains(text, p) {
			return false
		}
	}
	return true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
