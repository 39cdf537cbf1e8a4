package retailer

import (
	"regexp"
	"strings"

	"github.com/diaperwatch/diaperwatch-cli/internal/fetcher"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

var walmartTiles = tileSpec{
	containers: []string{
		`[data-item-id]`,
		`[data-testid="list-view"] > div`,
		`.search-result-gridview-item`,
	},
	title: []string{
		`[data-automation-id="product-title"]`,
		`span[data-automation-id="name"]`,
		`.product-title-link span`,
	},
	price: []string{
		`[data-automation-id="product-price"] .f2`,
		`[data-automation-id="product-price"] span.w_iUH7`,
		`[data-automation-id="product-price"]`,
		`[itemprop="price"]`,
		`.price-main .visuallyhidden`,
	},
	link:       []string{`a[link-identifier]`, `a.product-title-link`, `a[href]`},
	outOfStock: []string{`[data-automation-id="out-of-stock"]`},
}

var preloadedStateRe = regexp.MustCompile(`(?s)window\.__PRELOADED_STATE__\s*=\s*(\{.*?\})\s*;\s*(?:</script>|window\.)`)

// NewWalmart returns the walmart.ca adapter. It reads the page-state JSON
// embedded in search pages and falls back to tile markup; when a renderer
// is configured, blocked pages are retried in the browser.
func NewWalmart(f fetcher.Fetcher, opts Options) *SiteAdapter {
	return newSiteAdapter(site{
		name:    model.RetailerWalmart,
		baseURL: "https://www.walmart.ca",
		candidates: func(base, q string) []candidate {
			return []candidate{
				{URL: base + "/en/search?q=" + q},
				{URL: base + "/en/search?q=" + q + "&sort=price_low"},
				{URL: base + "/en/browse/baby/diapering/diapers/10011_10055?q=" + q},
			}
		},
		parse: parseWalmart,
		render: &renderSpec{
			WaitSelector: `[data-item-id], script#__NEXT_DATA__`,
			Scrolls:      3,
		},
	}, f, opts)
}

func parseWalmart(body []byte, _ string) ([]rawItem, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	if blob := strings.TrimSpace(doc.Find(`script#__NEXT_DATA__`).First().Text()); blob != "" {
		if items, err := walkProducts([]byte(blob)); err == nil && len(items) > 0 {
			return items, nil
		}
	}

	if m := preloadedStateRe.FindSubmatch(body); m != nil {
		if items, err := walkProducts(m[1]); err == nil && len(items) > 0 {
			return items, nil
		}
	}

	return parseTiles(doc, walmartTiles), nil
}
