// Package product holds the normalized product schema together with the pure
// rules that parse raw field text, decide whether a candidate is a plausible
// product, sanitize it for storage and deduplicate a page's candidates.
package product

import (
	"net/url"
	"strings"
)

// Candidate is one product record produced by an extractor. Text fields use
// the empty string for "absent"; numeric fields use nil.
type Candidate struct {
	Title        string   `json:"title,omitempty"`
	URL          string   `json:"product_url,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	RawPrice     string   `json:"raw_price,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	ReviewCount  *int64   `json:"review_count,omitempty"`
	Brand        string   `json:"brand,omitempty"`
	SKU          string   `json:"sku,omitempty"`
	Availability string   `json:"availability,omitempty"`
}

// Resolve joins ref against base the way a browser resolves an href.
// An empty ref resolves to the empty string rather than to base.
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil || base == "" {
		return refURL.String()
	}
	return baseURL.ResolveReference(refURL).String()
}
