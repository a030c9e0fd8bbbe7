package product

import (
	"math"
	"strings"
	"unicode"
)

// Storage limits of the product table.
const (
	MaxTitleLen    = 500
	MaxBrandLen    = 200
	MaxRawPriceLen = 100
	MaxTextLen     = 2000
	MaxURLLen      = 2048

	MaxPrice  = 999999999.99
	MaxRating = 100.0
)

// Record is a candidate reshaped and clamped for the product table.
type Record struct {
	PlatformURL   string
	Name          string
	RawPrice      *string
	Price         *float64
	URL           string
	ImageURL      *string
	Rating        *float64
	Reviews       *int32
	Brand         *string
	ProductTypeID *int64
}

// Sanitize converts c into a storable Record. The second return value is
// false when the sanitized name or URL is empty; such records must not be
// written.
func Sanitize(c Candidate, platformURL string, productTypeID *int64) (Record, bool) {
	rec := Record{
		PlatformURL:   SanitizeURL(platformURL),
		Name:          SanitizeText(c.Title, MaxTitleLen),
		RawPrice:      optional(SanitizeText(c.RawPrice, MaxRawPriceLen)),
		Price:         ClampPrice(c.Price),
		URL:           SanitizeURL(c.URL),
		ImageURL:      optional(SanitizeURL(c.ImageURL)),
		Rating:        ClampRating(c.Rating),
		Reviews:       ClampReviews(c.ReviewCount),
		Brand:         optional(SanitizeText(c.Brand, MaxBrandLen)),
		ProductTypeID: productTypeID,
	}
	if rec.Name == "" || rec.URL == "" {
		return rec, false
	}
	return rec, true
}

// SanitizeText drops control characters, folds line breaks into spaces and
// truncates to max runes.
func SanitizeText(value string, max int) string {
	if value == "" {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, value)
	return strings.TrimSpace(truncateRunes(cleaned, max))
}

// SanitizeURL trims and truncates a URL to MaxURLLen.
func SanitizeURL(value string) string {
	return SanitizeText(strings.TrimSpace(value), MaxURLLen)
}

// ClampPrice rounds to cents and caps at MaxPrice. Negative prices become nil.
func ClampPrice(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return nil
	}
	out := math.Min(round2(*v), MaxPrice)
	return &out
}

// ClampRating bounds a rating to [0, MaxRating] rounded to two decimals.
func ClampRating(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) {
		return nil
	}
	out := round2(math.Max(0, math.Min(*v, MaxRating)))
	return &out
}

// ClampReviews keeps counts that fit a signed 32-bit column.
func ClampReviews(v *int64) *int32 {
	if v == nil || *v < 0 || *v > math.MaxInt32 {
		return nil
	}
	out := int32(*v)
	return &out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
