// Package apidiscovery finds JSON endpoints referenced by a listing page and
// probes them for product data.
package apidiscovery

import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/JakeFAU/product-extractor/internal/product"
)

var xhrCall = regexp.MustCompile(`(?i)(?:(?:fetch\(|axios\.get|axios\(|XMLHttpRequest\().*?['"]([^'"]{10,200})['"])`)

var (
	wixMarkers = []string{"wix", "parastorage"}

	// wixEndpoints are the catalog query paths Wix storefronts serve.
	wixEndpoints = []string{
		"/_api/wix-ecommerce-renderer-web/store/products/query",
		"/_api/catalog-reader-server/api/v1/products/query",
		"/_api/wix-stores/v1/products/query",
	}
)

// IsWix reports whether html carries Wix platform markers.
func IsWix(html string) bool {
	lowered := strings.ToLower(html)
	return lo.SomeBy(wixMarkers, func(m string) bool {
		return strings.Contains(lowered, m)
	})
}

// Candidates lists absolute endpoint URLs worth probing, in discovery order:
// literals passed to fetch, axios or XMLHttpRequest first, then the
// conventional Wix catalog endpoints when the page is a Wix storefront.
func Candidates(html, base string) []string {
	var out []string
	for _, m := range xhrCall.FindAllStringSubmatch(html, -1) {
		if u := product.Resolve(base, m[1]); strings.HasPrefix(u, "http") {
			out = append(out, u)
		}
	}
	if IsWix(html) {
		for _, path := range wixEndpoints {
			if u := product.Resolve(base, path); u != "" {
				out = append(out, u)
			}
		}
	}
	return lo.Uniq(out)
}

func isWixEndpoint(endpoint string) bool {
	lowered := strings.ToLower(endpoint)
	return strings.Contains(lowered, "wix") || strings.Contains(lowered, "catalog-reader")
}
