package product

import (
	"strings"

	"github.com/samber/lo"
)

// Key is the dedup identity of c: its URL when present, else its cleaned title.
func Key(c Candidate) string {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u
	}
	return CleanText(c.Title)
}

// Dedupe keeps the first candidate per Key in encounter order and drops
// candidates without a key.
func Dedupe(candidates []Candidate) []Candidate {
	keyed := lo.Filter(candidates, func(c Candidate, _ int) bool {
		return Key(c) != ""
	})
	return lo.UniqBy(keyed, Key)
}

// DedupeByURL keeps the first candidate per URL and drops those without one.
func DedupeByURL(candidates []Candidate) []Candidate {
	withURL := lo.Filter(candidates, func(c Candidate, _ int) bool {
		return c.URL != ""
	})
	return lo.UniqBy(withURL, func(c Candidate) string {
		return c.URL
	})
}

// Cap truncates candidates to at most max entries. A non-positive max
// leaves the slice untouched.
func Cap(candidates []Candidate, max int) []Candidate {
	if max > 0 && len(candidates) > max {
		return candidates[:max]
	}
	return candidates
}
