package retailer

import (
	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

var londonDrugsTiles = tileSpec{
	containers: []string{`.product-tile`, `.product-item-info`},
	title: []string{
		`.pdp-link a`,
		`.product-item-link`,
		`.product-name`,
		`.link`,
	},
	price: []string{
		`.sales .value`,
		`[data-price-type="finalPrice"] .price`,
		`.price`,
	},
	link:       []string{`.pdp-link a`, `a.product-item-link`, `a[href]`},
	outOfStock: []string{`.out-of-stock`, `.stock.unavailable`},
}

// NewLondonDrugs returns the londondrugs.com adapter.
func NewLondonDrugs(f fetcher.Fetcher, opts Options) *SiteAdapter {
	return newSiteAdapter(site{
		name:    model.RetailerLondonDrugs,
		baseURL: "https://www.londondrugs.com",
		candidates: func(base, q string) []candidate {
			return []candidate{
				{URL: base + "/search?q=" + q},
				{URL: base + "/search?q=" + q + "&srule=price-low-to-high"},
			}
		},
		parse: parseLondonDrugs,
	}, f, opts)
}

func parseLondonDrugs(body []byte, _ string) ([]rawItem, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	return parseTiles(doc, londonDrugsTiles), nil
}
