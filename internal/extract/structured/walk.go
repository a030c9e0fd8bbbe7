package structured

import (
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/JakeFAU/product-extractor/internal/product"
)

// MaxDepth bounds how far Walk descends into a decoded tree. The root is
// depth 0; every list element and followed object key adds one.
const MaxDepth = 5

var (
	// genericMarkers flag an object as product-shaped when any of them is present.
	genericMarkers = []string{
		"name", "title", "productName", "product_name", "productUrl", "product_url",
		"price", "image", "imageUrl",
	}

	titleKeys    = []string{"name", "title", "productName", "product_name"}
	urlKeys      = []string{"url", "productUrl", "product_url"}
	imageKeys    = []string{"image", "imageUrl", "image_url"}
	priceKeys    = []string{"price", "salePrice"}
	currencyKeys = []string{"currency", "priceCurrency"}
	ratingKeys   = []string{"rating", "ratingValue"}
	reviewKeys   = []string{"reviewCount", "reviewsCount"}
	brandKeys    = []string{"brand", "manufacturer"}
	skuKeys      = []string{"sku", "productId", "id"}

	// containerHints name the keys worth following. Anything else is skipped
	// so unrelated configuration trees are never explored.
	containerHints = []string{
		"product", "products", "item", "items", "listing", "result", "entries", "hits", "@graph",
	}
)

// Candidates walks every block and the inline state object, in that order,
// and returns up to max valid candidates.
func (s Sources) Candidates(base string, max int) []product.Candidate {
	var out []product.Candidate
	for _, block := range s.Blocks {
		out = append(out, Walk(block, base, max)...)
	}
	if s.Inline != nil {
		out = append(out, Walk(s.Inline, base, max)...)
	}
	return product.Cap(out, max)
}

// Walk searches a decoded JSON tree for product-shaped objects and returns up
// to max valid candidates in encounter order. A non-positive max means no cap.
func Walk(data any, base string, max int) []product.Candidate {
	w := &walker{base: base, max: max}
	w.visit(data, 0)
	return w.out
}

type walker struct {
	base string
	max  int
	out  []product.Candidate
}

func (w *walker) full() bool {
	return w.max > 0 && len(w.out) >= w.max
}

func (w *walker) add(c product.Candidate) {
	if !w.full() && product.IsValid(c) {
		w.out = append(w.out, c)
	}
}

func (w *walker) visit(node any, depth int) {
	if depth > MaxDepth || w.full() {
		return
	}
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			w.visit(item, depth+1)
		}
	case map[string]any:
		w.visitObject(v, depth)
	}
}

func (w *walker) visitObject(obj map[string]any, depth int) {
	skip := ""
	if items, ok := obj["products"].([]any); ok {
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				w.add(wixProduct(m, w.base))
			}
		}
		skip = "products"
	}

	kind := typeOf(obj)
	if inner, ok := obj["item"].(map[string]any); ok && kind == "listitem" {
		w.visit(unwrapListItem(obj, inner), depth+1)
		return
	}

	switch {
	case kind == "product":
		w.add(schemaProduct(obj, w.base))
	case hasAny(obj, genericMarkers):
		w.add(genericProduct(obj, w.base))
	}

	keys := lo.Keys(obj)
	slices.Sort(keys)
	for _, key := range keys {
		if key == skip || !isContainerKey(key) {
			continue
		}
		w.visit(obj[key], depth+1)
	}
}

func unwrapListItem(listItem, inner map[string]any) map[string]any {
	merged := make(map[string]any, len(inner)+2)
	for k, v := range inner {
		merged[k] = v
	}
	if text(merged["name"]) == "" {
		merged["name"] = listItem["name"]
	}
	if text(merged["url"]) == "" {
		merged["url"] = firstTruthy(listItem, "url")
		if merged["url"] == nil {
			merged["url"] = inner["@id"]
		}
	}
	return merged
}

func schemaProduct(obj map[string]any, base string) product.Candidate {
	c := product.Candidate{
		Title:    text(obj["name"]),
		URL:      product.Resolve(base, text(firstTruthy(obj, "url", "@id"))),
		ImageURL: product.Resolve(base, imageOf(obj["image"])),
		Brand:    brandOf(obj["brand"]),
		SKU:      text(obj["sku"]),
	}
	if offer := firstOffer(obj["offers"]); offer != nil {
		c.RawPrice = text(offer["price"])
		c.Price, c.Currency = product.ParsePrice(c.RawPrice)
		if c.Currency == "" {
			c.Currency = text(offer["priceCurrency"])
		}
		c.Availability = text(offer["availability"])
	}
	if rating, ok := obj["aggregateRating"].(map[string]any); ok {
		c.Rating = product.ParseFloat(text(rating["ratingValue"]))
		c.ReviewCount = product.ParseInt(text(rating["reviewCount"]))
	}
	return c
}

func genericProduct(obj map[string]any, base string) product.Candidate {
	c := product.Candidate{
		Title:    text(firstTruthy(obj, titleKeys...)),
		URL:      product.Resolve(base, text(firstTruthy(obj, urlKeys...))),
		ImageURL: product.Resolve(base, imageOf(firstTruthy(obj, imageKeys...))),
		Brand:    brandOf(firstTruthy(obj, brandKeys...)),
		SKU:      text(firstTruthy(obj, skuKeys...)),
	}
	c.RawPrice = text(firstTruthy(obj, priceKeys...))
	c.Price, c.Currency = product.ParsePrice(c.RawPrice)
	if cur := text(firstTruthy(obj, currencyKeys...)); cur != "" {
		c.Currency = cur
	}
	c.Rating = product.ParseFloat(text(firstTruthy(obj, ratingKeys...)))
	c.ReviewCount = product.ParseInt(text(firstTruthy(obj, reviewKeys...)))
	return c
}

func typeOf(obj map[string]any) string {
	raw := firstTruthy(obj, "@type", "type")
	if list, ok := raw.([]any); ok && len(list) > 0 {
		raw = list[0]
	}
	return strings.ToLower(text(raw))
}

func firstOffer(v any) map[string]any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		v = list[0]
	}
	offer, _ := v.(map[string]any)
	return offer
}

func imageOf(v any) string {
	switch img := v.(type) {
	case []any:
		if len(img) == 0 {
			return ""
		}
		return imageOf(img[0])
	case map[string]any:
		return text(firstTruthy(img, "url", "src"))
	default:
		return text(img)
	}
}

func brandOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		return text(firstTruthy(m, "name", "brand"))
	}
	return text(v)
}

func hasAny(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func isContainerKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, hint := range containerHints {
		if strings.Contains(lowered, hint) {
			return true
		}
	}
	return false
}

// firstTruthy returns the first value under keys that is not empty: not nil,
// not "", not zero, not false and not an empty list or object.
func firstTruthy(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && truthy(v) {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// text renders a scalar JSON value as cleaned text. Lists and objects render
// as "".
func text(v any) string {
	switch t := v.(type) {
	case string:
		return product.CleanText(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
