package retailer

import (
	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

var costcoTiles = tileSpec{
	containers: []string{
		`.product-tile-set .product`,
		`[data-testid="ProductTile"]`,
		`.product-list .product`,
	},
	title: []string{
		`.description a`,
		`[data-testid^="Text_ProductTile_"]`,
		`.product-title`,
	},
	price: []string{
		`.price`,
		`[data-testid^="Text_Price_"]`,
		`[data-testid="price"]`,
	},
	link:       []string{`.description a`, `a[data-testid="Link"]`, `a[href]`},
	outOfStock: []string{`.out-of-stock`, `[data-testid="out-of-stock"]`},
}

// NewCostco returns the costco.ca adapter.
func NewCostco(f fetcher.Fetcher, opts Options) *SiteAdapter {
	return newSiteAdapter(site{
		name:    model.RetailerCostco,
		baseURL: "https://www.costco.ca",
		candidates: func(base, q string) []candidate {
			return []candidate{
				{URL: base + "/CatalogSearch?dept=All&keyword=" + q},
				{URL: base + "/s?keyword=" + q},
			}
		},
		parse: parseCostco,
	}, f, opts)
}

func parseCostco(body []byte, _ string) ([]rawItem, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	return parseTiles(doc, costcoTiles), nil
}
