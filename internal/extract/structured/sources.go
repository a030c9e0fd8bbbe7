// Package structured finds machine-readable product data embedded in a page:
// schema.org ld+json blocks, inline state variables and storefront platform
// blobs. It also walks decoded JSON trees looking for product-shaped objects.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNoData means the page carried no recognised embed point.
	ErrNoData = errors.New("no structured data")
	// ErrMalformed means embed points were found but none decoded.
	ErrMalformed = errors.New("malformed structured data")
)

var (
	ldJSONBlock   = regexp.MustCompile(`(?s)<script[^>]+type=["']application/ld\+json["'][^>]*>(.*?)</script>`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)

	// inlineStatePatterns is ordered; the first pattern yielding a parseable
	// object wins.
	inlineStatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)(?:(?:window|window\.)?[_A-Za-z0-9]+(?:State|INITIAL_DATA|INITIAL_STATE|__PRELOADED_STATE__|productsState|PRODUCTS_DATA) *= *({.*?});)`),
		regexp.MustCompile(`(?s)window\.viewerModel\s*=\s*({.*?});`),
		regexp.MustCompile(`(?s)window\.wixapps\s*=\s*({.*?});`),
		regexp.MustCompile(`(?s)window\.productsState\s*=\s*({.*?});`),
		regexp.MustCompile(`(?s)__INITIAL_STATE__\s*=\s*({.*?});`),
	}
)

// Sources is the structured data recovered from one page.
type Sources struct {
	// Blocks holds every ld+json payload that decoded.
	Blocks []any
	// Inline is the first decodable inline state object, nil when none.
	Inline any
	// Malformed counts embed points that were present but did not decode.
	Malformed int
}

// Found reports whether any structured data decoded.
func (s Sources) Found() bool {
	return len(s.Blocks) > 0 || s.Inline != nil
}

// Extract collects ld+json blocks and the inline state object from html.
// It never fails; malformed fragments are counted and skipped.
func Extract(html string) Sources {
	blocks, malformed := LDJSON(html)
	src := Sources{Blocks: blocks, Malformed: malformed}
	inline, err := InlineState(html)
	switch {
	case err == nil:
		src.Inline = inline
	case errors.Is(err, ErrMalformed):
		src.Malformed++
	}
	return src
}

// LDJSON decodes every application/ld+json script in html. The second return
// value counts blocks that failed to decode.
func LDJSON(html string) ([]any, int) {
	var (
		out       []any
		malformed int
	)
	for _, m := range ldJSONBlock.FindAllStringSubmatch(html, -1) {
		payload, err := decode(m[1])
		if err != nil {
			malformed++
			continue
		}
		out = append(out, payload)
	}
	return out, malformed
}

// InlineState returns the first inline state object that decodes, trying a
// trailing-comma repair before giving up on a match. It returns ErrNoData when
// no pattern matched and ErrMalformed when matches existed but none decoded.
func InlineState(html string) (any, error) {
	matched := false
	for _, pattern := range inlineStatePatterns {
		for _, m := range pattern.FindAllStringSubmatch(html, -1) {
			matched = true
			if payload, err := decode(m[1]); err == nil {
				return payload, nil
			}
			if payload, err := decode(trailingComma.ReplaceAllString(m[1], "$1")); err == nil {
				return payload, nil
			}
		}
	}
	if matched {
		return nil, ErrMalformed
	}
	return nil, ErrNoData
}

// Decode parses raw JSON into a generic tree, tolerating JSONP wrappers.
func Decode(raw []byte) (any, error) {
	payload, err := decode(string(raw))
	if err == nil {
		return payload, nil
	}
	unwrapped := StripJSONP(string(raw))
	if unwrapped == string(raw) {
		return nil, err
	}
	return decode(unwrapped)
}

var (
	jsonpPrefix = regexp.MustCompile(`^[^(]*\(\s*`)
	jsonpSuffix = regexp.MustCompile(`\)\s*;?\s*$`)
)

// StripJSONP removes a leading callback invocation and a trailing paren or
// semicolon, e.g. `cb({...});` becomes `{...}`.
func StripJSONP(body string) string {
	body = strings.TrimSpace(body)
	return jsonpSuffix.ReplaceAllString(jsonpPrefix.ReplaceAllString(body, ""), "")
}

func decode(raw string) (any, error) {
	var payload any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return payload, nil
}
