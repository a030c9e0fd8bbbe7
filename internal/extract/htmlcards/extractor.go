package htmlcards

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/JakeFAU/product-extractor/internal/product"
)

// MinHTMLBytes is the smallest document worth parsing for cards.
const MinHTMLBytes = 500

// Extractor applies a Cascades table to listing pages.
type Extractor struct {
	cascades Cascades
}

// New validates every selector in cascades and returns an Extractor.
func New(cascades Cascades) (*Extractor, error) {
	for _, sel := range cascades.selectors() {
		if _, err := cascadia.Compile(sel); err != nil {
			return nil, fmt.Errorf("compile selector %q: %w", sel, err)
		}
	}
	return &Extractor{cascades: cascades}, nil
}

// NewDefault returns an Extractor over DefaultCascades.
func NewDefault() *Extractor {
	return &Extractor{cascades: DefaultCascades()}
}

// Extract returns up to max valid candidates from html, unique by product URL
// and in document order. Relative URLs resolve against base.
func (e *Extractor) Extract(html, base string, max int) []product.Candidate {
	if len(html) < MinHTMLBytes {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	cards := e.cards(doc.Selection)
	if max > 0 && len(cards) > 2*max {
		cards = cards[:2*max]
	}

	var out []product.Candidate
	seen := make(map[string]bool)
	for _, card := range cards {
		c := e.candidate(card, base)
		if !product.IsValid(c) || c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// cards scopes the search to the first container selector that matches and
// gathers matches of every card selector within it, each element once.
func (e *Extractor) cards(root *goquery.Selection) []*goquery.Selection {
	scope := root
	for _, sel := range e.cascades.Containers {
		if found := root.Find(sel); found.Length() > 0 {
			scope = found
			break
		}
	}

	var cards []*goquery.Selection
	collected := make(map[*html.Node]bool)
	scope.Each(func(_ int, container *goquery.Selection) {
		for _, sel := range e.cascades.Cards {
			container.Find(sel).Each(func(_ int, card *goquery.Selection) {
				node := card.Get(0)
				if collected[node] {
					return
				}
				collected[node] = true
				cards = append(cards, card)
			})
		}
	})
	return cards
}

func (e *Extractor) candidate(card *goquery.Selection, base string) product.Candidate {
	cs := e.cascades
	c := product.Candidate{
		Title: cs.Title.First(card),
		Brand: cs.Brand.First(card),
		SKU:   cs.SKU.First(card),
	}
	if c.Title == "" {
		if a := card.Find("a[href]").First(); a.Length() > 0 {
			c.Title = product.CleanText(a.AttrOr("title", ""))
			if c.Title == "" {
				c.Title = product.CleanText(a.Text())
			}
		}
	}
	c.URL = product.Resolve(base, cs.Link.First(card))
	c.ImageURL = product.Resolve(base, firstSrcsetURL(cs.Image.First(card)))

	c.RawPrice = cs.Price.First(card)
	c.Price, c.Currency = product.ParsePrice(c.RawPrice)
	if c.Currency == "" {
		c.Currency = product.DetectCurrency(cs.Currency.First(card))
	}
	c.Rating = product.ParseFloat(cs.Rating.First(card))
	c.ReviewCount = product.ParseInt(cs.Reviews.First(card))
	return c
}

// firstSrcsetURL reduces "a.jpg 1x, b.jpg 2x" to "a.jpg". Plain URLs pass
// through unchanged.
func firstSrcsetURL(v string) string {
	fields := strings.Fields(v)
	if len(fields) < 2 {
		return v
	}
	return strings.TrimSuffix(fields[0], ",")
}
