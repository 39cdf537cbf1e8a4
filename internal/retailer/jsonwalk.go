package retailer

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// walkProducts decodes a JSON document and collects every object that looks
// like a product: a name plus some price field. Retailer page-state blobs
// nest products at depths that change between deploys, so the walk does not
// depend on a fixed path.
func walkProducts(data []byte) ([]rawItem, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, eris.Wrap(err, "retailer: decode json")
	}
	var items []rawItem
	seen := make(map[string]bool)
	walkJSON(root, func(obj map[string]any) bool {
		it, ok := productFromJSON(obj)
		if !ok {
			return false
		}
		key := it.Title + "|" + it.URL
		if !seen[key] {
			seen[key] = true
			items = append(items, it)
		}
		return true
	})
	return items, nil
}

// walkJSON visits objects depth first. visit returns true to stop descending
// into an object already consumed as a product.
func walkJSON(v any, visit func(map[string]any) bool) {
	switch t := v.(type) {
	case map[string]any:
		if visit(t) {
			return
		}
		for _, child := range t {
			walkJSON(child, visit)
		}
	case []any:
		for _, child := range t {
			walkJSON(child, visit)
		}
	}
}

func productFromJSON(obj map[string]any) (rawItem, bool) {
	name := firstString(obj, "name", "title", "productName", "displayName")
	if name == "" {
		return rawItem{}, false
	}
	price := priceFromJSON(obj)
	if price == "" {
		return rawItem{}, false
	}
	if brand := brandFromJSON(obj); brand != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(brand)) {
		name = brand + " " + name
	}
	return rawItem{
		Title:     name,
		PriceText: price,
		URL:       firstString(obj, "canonicalUrl", "url", "link", "productUrl", "pdpUrl"),
		InStock:   stockFromJSON(obj),
	}, true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// priceFromJSON understands flat numbers and strings plus the nested shapes
// seen on retailer page state: priceInfo.currentPrice.price, prices.price.value,
// offers.price.
func priceFromJSON(obj map[string]any) string {
	for _, k := range []string{"price", "salePrice", "currentPrice", "finalPrice", "priceString"} {
		if s := scalarString(obj[k]); s != "" {
			return s
		}
	}
	for _, path := range [][]string{
		{"priceInfo", "currentPrice", "price"},
		{"priceInfo", "currentPrice", "priceString"},
		{"priceInfo", "linePrice"},
		{"prices", "price", "value"},
		{"prices", "price"},
		{"price", "value"},
		{"price", "current", "value"},
		{"offers", "price"},
	} {
		if s := scalarString(dig(obj, path...)); s != "" {
			return s
		}
	}
	return ""
}

func brandFromJSON(obj map[string]any) string {
	if s, ok := obj["brand"].(string); ok {
		return strings.TrimSpace(s)
	}
	if s, ok := dig(obj, "brand", "name").(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func stockFromJSON(obj map[string]any) bool {
	if b, ok := obj["inStock"].(bool); ok {
		return b
	}
	if b, ok := obj["isOutOfStock"].(bool); ok {
		return !b
	}
	status := strings.ToLower(firstString(obj, "availabilityStatus", "availabilityStatusDisplayValue", "stockStatus", "availability"))
	if status == "" {
		return true
	}
	return !strings.Contains(status, "out") && !strings.Contains(status, "unavailable")
}

func dig(v any, path ...string) any {
	for _, p := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[p]
	}
	return v
}

func scalarString(v any) string {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', 2, 64)
	case string:
		return strings.TrimSpace(t)
	}
	return ""
}
