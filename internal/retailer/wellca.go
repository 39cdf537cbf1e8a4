package retailer

import (
	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

var wellCaTiles = tileSpec{
	containers: []string{`.product_grid_item`, `.product-item`},
	title: []string{
		`.product_grid_info_top_text_container`,
		`.product-name`,
		`.product_grid_link span`,
	},
	price: []string{
		`.product_grid_info_price`,
		`.price`,
	},
	link:       []string{`a.product_grid_link`, `a[href]`},
	outOfStock: []string{`.out_of_stock`, `.product_grid_out_of_stock`},
}

// NewWellCa returns the well.ca adapter.
func NewWellCa(f fetcher.Fetcher, opts Options) *SiteAdapter {
	return newSiteAdapter(site{
		name:    model.RetailerWellCa,
		baseURL: "https://well.ca",
		candidates: func(base, q string) []candidate {
			return []candidate{
				{URL: base + "/searchresult.html?keyword=" + q},
				{URL: base + "/searchresult.html?keyword=" + q + "&sort=price_asc"},
			}
		},
		parse: parseWellCa,
	}, f, opts)
}

func parseWellCa(body []byte, _ string) ([]rawItem, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	return parseTiles(doc, wellCaTiles), nil
}
