// Package htmlcards pulls product candidates out of listing markup when a page
// carries no structured data. It locates repeating card elements and reads
// each field through an ordered selector cascade.
package htmlcards

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/product-extractor/internal/product"
)

// FieldRule is one field's cascade. Selectors are tried in order against a
// card; the first element found is read through Attrs in order and then, when
// Text is set, through its text content. The first non-empty value wins.
type FieldRule struct {
	Selectors []string
	Attrs     []string
	Text      bool
}

// First returns the first non-empty value the rule yields inside scope.
func (r FieldRule) First(scope *goquery.Selection) string {
	for _, sel := range r.Selectors {
		el := scope.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		for _, attr := range r.Attrs {
			if v, ok := el.Attr(attr); ok {
				if v = product.CleanText(v); v != "" {
					return v
				}
			}
		}
		if r.Text {
			if v := product.CleanText(el.Text()); v != "" {
				return v
			}
		}
	}
	return ""
}

// Cascades is the full selector table used by an Extractor.
type Cascades struct {
	Containers []string
	Cards      []string

	Title    FieldRule
	Link     FieldRule
	Image    FieldRule
	Price    FieldRule
	Currency FieldRule
	Rating   FieldRule
	Reviews  FieldRule
	Brand    FieldRule
	SKU      FieldRule
}

// DefaultCascades returns selectors ordered from the most trustworthy
// (microdata, explicit data attributes) to the most generic class-name
// substring matches, with Wix data-hooks last.
func DefaultCascades() Cascades {
	return Cascades{
		Containers: []string{
			`ul.products`, `ul.product-list`, `ul.search-results`,
			`div.products`, `div.product-list`, `div.search-results`,
			`ul.results-base`, `div.results-base`, `div.results-items`,
			`div[class*="listing"]`, `div[class*="Listing"]`, `div[class*="LISTING"]`,
			`div[class*="product-grid"]`, `div[class*="ProductGrid"]`,
			`div[data-component*="product"]`, `div[data-testid*="result"]`,
			`section[class*="grid"]`, `section[class*="listing"]`,
			`section[class*="catalog"]`, `div[class*="grid"]`,
			`section[class*="product"]`, `section[class*="result"]`, `main`,
			`[data-hook="product-list-wrapper"]`, `[data-hook="product-item"]`,
			`[data-hook="product-list-grid-item"]`, `[id^="comp-"][class*="product"]`,
			`div[data-hook="product-list-gallery"]`, `article[data-hook="product-item"]`,
		},
		Cards: []string{
			`[data-component="product"]`, `[data-qa*="product"]`,
			`[data-testid*="product"]`, `[data-cy*="product"]`,
			`[itemscope][itemtype*="Product"]`,
			`div[data-product-id]`, `article[data-product-id]`,
			`div[data-asin]`, `li[data-asin]`, `li[data-id*="product"]`,
			`div[data-testid*="product-card"]`, `li[class*="product"]`,
			`li[class*="Product"]`, `li[class*="grid"]`,
			`div[class*="product"]`, `div[class*="Product"]`,
			`div[class*="item"]`, `div[class*="Item"]`,
			`div[class*="card"]`, `div[class*="Card"]`,
			`div[class*="result"]`, `article[class*="product"]`,
			`article[class*="item"]`,
			`li.product-base`, `li.product-item`,
			`[data-hook="product-item"]`, `[data-hook="product-list-grid-item"]`,
			`[id^="comp-"][class*="product"]`, `article[data-hook="product-item"]`,
			`div[data-hook="product-item-container"]`, `li[data-hook="product-list-grid-item"]`,
		},
		Title: FieldRule{
			Selectors: []string{
				`[itemprop="name"]`, `a[title]`, `a[class*="title"]`,
				`a[class*="Title"]`, `a[data-testid*="title"]`,
				`h1`, `h2`, `h3`, `h4`,
				`[class*="title"]`, `[class*="Title"]`,
				`[class*="name"]`, `[class*="Name"]`,
				`[aria-label*="product"]`,
				`[data-hook="product-item-name"]`, `[data-hook="product-item-title"]`,
				`h3[data-hook="product-item-name"]`,
			},
			Attrs: []string{"content", "title", "aria-label"},
			Text:  true,
		},
		Link: FieldRule{
			Selectors: []string{
				`a[href*="/product"]`, `a[href*="/item"]`, `a[href*="/p/"]`,
				`a[href*="?pid="]`, `a[data-testid*="product"]`,
				`a[data-track*="product"]`, `a[href]`, `[itemprop="url"]`,
				`[data-hook="product-item-link"]`, `a[data-hook="product-item-container"]`,
			},
			Attrs: []string{"href", "content"},
		},
		Image: FieldRule{
			Selectors: []string{
				`img[src]`, `img[data-src]`, `img[data-original]`,
				`img[data-lazy-src]`, `img[data-srcset]`, `source[data-srcset]`,
				`[data-background-image]`, `[itemprop="image"]`,
				`img[data-hook="product-item-image"]`, `[data-hook="product-item-img"]`,
				`div[data-hook="product-item-media"] img`,
			},
			Attrs: []string{"src", "data-src", "data-original", "data-lazy-src", "data-srcset", "data-background-image", "content"},
		},
		Price: FieldRule{
			Selectors: []string{
				`[itemprop="price"]`, `[class*="price"]`, `[class*="Price"]`,
				`[class*="offer"]`, `[data-price]`, `span[data-price]`,
				`div[data-price]`, `span[class*="amount"]`, `span[class*="value"]`,
				`meta[itemprop="price"][content]`,
				`[data-hook="product-item-price"]`, `[data-hook="formatted-primary-price"]`,
				`span[data-hook="product-item-price-to-pay"]`,
			},
			Attrs: []string{"content"},
			Text:  true,
		},
		Currency: FieldRule{
			Selectors: []string{
				`meta[itemprop="priceCurrency"][content]`,
				`[class*="currency"]`, `span[data-currency]`,
			},
			Attrs: []string{"content", "data-currency"},
			Text:  true,
		},
		Rating: FieldRule{
			Selectors: []string{
				`[itemprop="ratingValue"]`, `[class*="rating"]`,
				`[class*="Rating"]`, `[aria-label*="rating"]`,
			},
			Attrs: []string{"content"},
			Text:  true,
		},
		Reviews: FieldRule{
			Selectors: []string{
				`[itemprop="reviewCount"]`, `[class*="review"]`,
				`[class*="Review"]`, `[aria-label*="review"]`,
			},
			Text: true,
		},
		Brand: FieldRule{
			Selectors: []string{
				`[itemprop="brand"]`, `[class*="brand"]`, `[class*="Brand"]`,
				`[data-brand]`,
			},
			Attrs: []string{"content", "data-brand"},
			Text:  true,
		},
		SKU: FieldRule{
			Selectors: []string{
				`[itemprop="sku"]`, `[data-sku]`, `[data-product-sku]`,
				`[class*="sku"]`, `[class*="Sku"]`,
			},
			Attrs: []string{"content", "data-sku", "data-product-sku"},
			Text:  true,
		},
	}
}

// selectors returns every selector in the table, for validation.
func (c Cascades) selectors() []string {
	out := append([]string{}, c.Containers...)
	out = append(out, c.Cards...)
	for _, r := range []FieldRule{c.Title, c.Link, c.Image, c.Price, c.Currency, c.Rating, c.Reviews, c.Brand, c.SKU} {
		out = append(out, r.Selectors...)
	}
	return out
}
