package retailer

import (
	"bytes"

	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

var shoppersTiles = tileSpec{
	containers: []string{
		`[data-testid="product-grid"] [data-testid="product-tile"]`,
		`[data-testid="product-tile"]`,
		`.plp-product-tile`,
		`.product-tile`,
	},
	title: []string{
		`[data-testid="product-title"]`,
		`.product-name`,
		`.plp-product-tile__title`,
	},
	price: []string{
		`[data-testid="sale-price"]`,
		`[data-testid="regular-price"]`,
		`[data-testid="price"]`,
		`.price`,
	},
	link:       []string{`a[data-testid="product-link"]`, `a[href]`},
	outOfStock: []string{`[data-testid="out-of-stock"]`},
}

// NewShoppers returns the shoppersdrugmart.ca adapter. The JSON search API
// is tried first, then the HTML search page.
func NewShoppers(f fetcher.Fetcher, opts Options) *SiteAdapter {
	return newSiteAdapter(site{
		name:    model.RetailerShoppers,
		baseURL: "https://www.shoppersdrugmart.ca",
		candidates: func(base, q string) []candidate {
			return []candidate{
				{URL: base + "/api/search?q=" + q + "&lang=en&pageSize=48", JSON: true},
				{URL: base + "/search?text=" + q},
			}
		},
		parse: parseShoppers,
	}, f, opts)
}

func parseShoppers(body []byte, _ string) ([]rawItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return walkProducts(trimmed)
	}
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	return parseTiles(doc, shoppersTiles), nil
}
