package structured

import (
	"net/url"

	"github.com/JakeFAU/product-extractor/internal/product"
)

// wixDefaultCurrency applies when a Wix catalog entry carries no currency.
const wixDefaultCurrency = "INR"

// wixProduct maps one entry of a Wix catalog "products" list. Wix exposes
// slugs rather than URLs, so the storefront product path is rebuilt.
func wixProduct(obj map[string]any, base string) product.Candidate {
	c := product.Candidate{
		Title: text(firstTruthy(obj, "name", "title")),
		Brand: brandOf(obj["brand"]),
		SKU:   text(firstTruthy(obj, "sku", "id", "productId")),
	}

	if slug := text(firstTruthy(obj, "slug", "urlPart")); slug != "" {
		c.URL = product.Resolve(base, "/product-page/"+url.PathEscape(slug))
	} else if id := text(firstTruthy(obj, "id", "productId")); id != "" {
		c.URL = product.Resolve(base, "/product/"+url.PathEscape(id))
	}

	switch pd := firstTruthy(obj, "price", "priceData").(type) {
	case map[string]any:
		c.RawPrice = firstText(pd, "price", "formatted")
		if c.RawPrice == "" {
			if formatted, ok := pd["formatted"].(map[string]any); ok {
				c.RawPrice = text(formatted["price"])
			}
		}
		c.Price, c.Currency = product.ParsePrice(c.RawPrice)
		if cur := text(pd["currency"]); cur != "" {
			c.Currency = cur
		}
	case float64, string:
		c.RawPrice = text(pd)
		c.Price, c.Currency = product.ParsePrice(c.RawPrice)
	}
	if c.Currency == "" {
		c.Currency = wixDefaultCurrency
	}

	c.ImageURL = product.Resolve(base, wixImage(firstTruthy(obj, "media", "images")))
	return c
}

func wixImage(media any) string {
	switch m := media.(type) {
	case []any:
		if len(m) == 0 {
			return ""
		}
		return imageOf(m[0])
	case map[string]any:
		if main, ok := m["mainMedia"].(map[string]any); ok {
			if u := text(main["url"]); u != "" {
				return u
			}
		}
		if items, ok := m["items"].([]any); ok && len(items) > 0 {
			return imageOf(items[0])
		}
		return text(m["url"])
	default:
		return text(m)
	}
}

func firstText(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := text(obj[k]); s != "" {
			return s
		}
	}
	return ""
}
