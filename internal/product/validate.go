package product

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const minTitleRunes = 2

var (
	blockedSchemes = []string{"javascript:", "mailto:", "tel:"}

	blacklistKeywords = []string{
		"login", "register", "signup", "account", "cart", "wishlist",
		"checkout", "help", "faq", "contact", "privacy", "terms",
	}

	productPathKeywords = []string{
		"/product", "/products", "/item", "/items", "/p/", "/dp/", "/pd/", "/pdp",
		"/shop/", "/store/", "/catalog", "/collection", "/listing", "/detail", "/sku",
	}

	nonProductKeywords = []string{"search", "account", "contact", "login", "register"}
)

// IsBlacklisted reports whether href points at a non-product destination:
// a script or contact scheme, or a path naming an account, cart or policy page.
func IsBlacklisted(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	if h == "" {
		return true
	}
	for _, scheme := range blockedSchemes {
		if strings.HasPrefix(h, scheme) {
			return true
		}
	}
	target := h
	if u, err := url.Parse(h); err == nil {
		target = u.EscapedPath() + "?" + u.RawQuery + "#" + u.Fragment
	}
	return containsAny(target, blacklistKeywords)
}

// IsProductPath reports whether href has the shape of a product page.
func IsProductPath(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	combined := path + "?" + strings.ToLower(u.RawQuery)
	if containsAny(combined, productPathKeywords) {
		return true
	}
	if containsAny(combined, nonProductKeywords) {
		return false
	}
	if strings.Count(path, "/") >= 2 && len(path) > 3 {
		return true
	}
	last := path[strings.LastIndex(path, "/")+1:]
	return last != "" && isDigits(last)
}

// IsValid decides whether c is a plausible product. It reads nothing but c.
//
// A candidate needs a non-blacklisted URL and either a product-shaped path or
// both a title and a price. Candidates with neither title nor price are
// rejected, as are one-character titles that are not backed by a price.
func IsValid(c Candidate) bool {
	if c.URL == "" || IsBlacklisted(c.URL) {
		return false
	}
	title := CleanText(c.Title)
	hasPrice := c.Price != nil
	if !IsProductPath(c.URL) && !(hasPrice && title != "") {
		return false
	}
	if title == "" && !hasPrice {
		return false
	}
	if title != "" && !hasPrice && utf8.RuneCountInString(title) < minTitleRunes {
		return false
	}
	return true
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
