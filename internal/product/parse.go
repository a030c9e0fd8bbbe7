package product

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	priceToken = regexp.MustCompile(`[\d,.]*\d[\d,.]*`)
	floatToken = regexp.MustCompile(`[\d.]*\d[\d.]*`)
	intToken   = regexp.MustCompile(`\d+`)
	whitespace = regexp.MustCompile(`\s+`)
	wordToken  = regexp.MustCompile(`[a-z]+`)
)

type currencyRule struct {
	code    string
	symbols []string
	words   []string
}

// currencyRules are evaluated top to bottom; the first hit wins so a string
// carrying several markers always resolves to the same code.
var currencyRules = []currencyRule{
	{code: "INR", symbols: []string{"₹"}, words: []string{"rs", "inr"}},
	{code: "USD", symbols: []string{"$"}, words: []string{"usd"}},
	{code: "EUR", symbols: []string{"€"}, words: []string{"eur"}},
	{code: "GBP", symbols: []string{"£"}, words: []string{"gbp"}},
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// DetectCurrency returns the ISO code implied by symbols or code words in raw,
// or "" when none is present.
func DetectCurrency(raw string) string {
	lowered := strings.ToLower(raw)
	words := wordToken.FindAllString(lowered, -1)
	for _, rule := range currencyRules {
		for _, sym := range rule.symbols {
			if strings.Contains(raw, sym) {
				return rule.code
			}
		}
		for _, w := range words {
			for _, want := range rule.words {
				if w == want {
					return rule.code
				}
			}
		}
	}
	return ""
}

// ParsePrice extracts a magnitude and a currency from display text such as
// "₹1,299.00" or "$19.99". The first numeric token wins and thousands
// separators are dropped. The currency may be set even when no number parses.
func ParsePrice(raw string) (*float64, string) {
	txt := strings.TrimSpace(raw)
	if txt == "" {
		return nil, ""
	}
	currency := DetectCurrency(txt)
	token := priceToken.FindString(txt)
	if token == "" {
		return nil, currency
	}
	value, err := strconv.ParseFloat(strings.TrimRight(strings.ReplaceAll(token, ",", ""), "."), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, currency
	}
	return &value, currency
}

// ParseFloat returns the first decimal token in raw.
func ParseFloat(raw string) *float64 {
	token := floatToken.FindString(raw)
	if token == "" {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimRight(token, "."), 64)
	if err != nil {
		return nil
	}
	return &value
}

// ParseInt returns the first run of digits in raw.
func ParseInt(raw string) *int64 {
	token := intToken.FindString(raw)
	if token == "" {
		return nil
	}
	value, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}
