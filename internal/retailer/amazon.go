package retailer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

var amazonTiles = tileSpec{
	containers: []string{
		`div[data-component-type="s-search-result"]`,
		`div.s-result-item[data-asin]`,
	},
	title: []string{
		"h2 a span",
		"h2 span",
		".a-size-base-plus.a-color-base.a-text-normal",
		".a-size-medium.a-color-base.a-text-normal",
	},
	price: []string{
		".a-price:not(.a-text-price) .a-offscreen",
		".a-price .a-offscreen",
		".a-color-price",
	},
	link: []string{"h2 a", "a.a-link-normal.s-no-outline", "a.a-link-normal"},
	priceFn: func(s *goquery.Selection) string {
		whole := strings.TrimSuffix(collapse(s.Find(".a-price-whole").First().Text()), ".")
		if whole == "" {
			return ""
		}
		frac := collapse(s.Find(".a-price-fraction").First().Text())
		if frac == "" {
			frac = "00"
		}
		return whole + "." + frac
	},
}

// NewAmazon returns the amazon.ca adapter.
func NewAmazon(f fetcher.Fetcher, opts Options) *SiteAdapter {
	return newSiteAdapter(site{
		name:    model.RetailerAmazon,
		baseURL: "https://www.amazon.ca",
		candidates: func(base, q string) []candidate {
			return []candidate{
				{URL: base + "/s?k=" + q + "&i=baby-products"},
				{URL: base + "/s?k=" + q + "&i=baby-products&s=price-asc-rank"},
				{URL: base + "/s?k=" + q},
			}
		},
		parse: parseAmazon,
	}, f, opts)
}

func parseAmazon(body []byte, _ string) ([]rawItem, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	return parseTiles(doc, amazonTiles), nil
}
