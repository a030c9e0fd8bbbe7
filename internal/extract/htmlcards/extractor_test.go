package htmlcards

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var padding = "<!-- " + strings.Repeat("x", 600) + " -->"

var listingPage = `<html><body>
<header><a href="/login">Login</a></header>
<ul class="products">
  <li class="product-item">
    <a href="/product/red-mug" title="Red Mug"><img src="/img/red.jpg"></a>
    <span class="price">₹299</span><span class="rating">4.2</span>
    <span class="reviews">(31 reviews)</span><span class="brand">Potter</span>
  </li>
  <li class="product-item">
    <a href="/product/blue-mug"><h3>Blue Mug</h3></a>
    <img data-src="/img/blue.jpg"><span class="price">$12.50</span>
  </li>
  <li class="product-item"><a href="/cart">Cart</a></li>
</ul>` + padding + `</body></html>`

func TestExtractListing(t *testing.T) {
	t.Parallel()

	got := NewDefault().Extract(listingPage, "https://shop.example/mugs", 50)
	require.Len(t, got, 2)

	red := got[0]
	assert.Equal(t, "Red Mug", red.Title)
	assert.Equal(t, "https://shop.example/product/red-mug", red.URL)
	assert.Equal(t, "https://shop.example/img/red.jpg", red.ImageURL)
	require.NotNil(t, red.Price)
	assert.InDelta(t, 299.0, *red.Price, 1e-9)
	assert.Equal(t, "INR", red.Currency)
	assert.InDelta(t, 4.2, *red.Rating, 1e-9)
	assert.Equal(t, int64(31), *red.ReviewCount)
	assert.Equal(t, "Potter", red.Brand)

	blue := got[1]
	assert.Equal(t, "Blue Mug", blue.Title)
	assert.Equal(t, "https://shop.example/img/blue.jpg", blue.ImageURL)
	assert.Equal(t, "USD", blue.Currency)
}

func TestExtractCapsResults(t *testing.T) {
	t.Parallel()

	got := NewDefault().Extract(listingPage, "https://shop.example/mugs", 1)
	require.Len(t, got, 1)
	require.Equal(t, "Red Mug", got[0].Title)
}

func TestExtractDedupesBeforeCapping(t *testing.T) {
	t.Parallel()

	page := `<html><body><ul class="products">
<li class="product-item"><a href="/product/lamp" title="Lamp"></a><span class="price">$15</span></li>
<li class="product-item"><a href="/product/lamp" title="Lamp again"></a><span class="price">$15</span></li>
<li class="product-item"><a href="/product/rug" title="Rug"></a><span class="price">$40</span></li>
</ul>` + padding + `</body></html>`

	got := NewDefault().Extract(page, "https://shop.example/", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "https://shop.example/product/lamp", got[0].URL)
	assert.Equal(t, "Lamp", got[0].Title)
	assert.Equal(t, "https://shop.example/product/rug", got[1].URL)
}

func TestCardsCollectsEachElementOnce(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingPage))
	require.NoError(t, err)
	cards := NewDefault().cards(doc.Selection)
	require.Len(t, cards, 3, "three list items, each matched by several card selectors")
}

func TestExtractWholeDocumentScope(t *testing.T) {
	t.Parallel()

	page := `<html><body><div id="list">
<div data-product-id="9"><a href="/p/lamp">Lamp</a>
<span itemprop="price" content="15.00">15</span>
<meta itemprop="priceCurrency" content="EUR"></div>
</div>` + padding + `</body></html>`

	got := NewDefault().Extract(page, "https://shop.example/", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "Lamp", got[0].Title)
	assert.Equal(t, "https://shop.example/p/lamp", got[0].URL)
	assert.InDelta(t, 15.0, *got[0].Price, 1e-9)
	assert.Equal(t, "EUR", got[0].Currency)
}

func TestExtractShortDocument(t *testing.T) {
	t.Parallel()

	require.Empty(t, NewDefault().Extract(`<li class="product"><a href="/p/1">x</a></li>`, "https://shop.example/", 10))
}

func TestNewRejectsBadSelector(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultCascades())
	require.NoError(t, err)

	broken := DefaultCascades()
	broken.Cards = append(broken.Cards, `div[`)
	_, err = New(broken)
	require.Error(t, err)
}

func TestFieldRuleFirst(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><span class="sku"></span><span data-sku="A-1">ignored</span><img data-srcset="/a.jpg 1x, /b.jpg 2x"></div>`))
	require.NoError(t, err)

	tests := []struct {
		name string
		rule FieldRule
		want string
	}{
		{name: "empty match falls through", rule: FieldRule{Selectors: []string{`.sku`, `[data-sku]`}, Attrs: []string{"data-sku"}, Text: true}, want: "A-1"},
		{name: "text only", rule: FieldRule{Selectors: []string{`[data-sku]`}, Text: true}, want: "ignored"},
		{name: "no match", rule: FieldRule{Selectors: []string{`.missing`}, Text: true}, want: ""},
		{name: "srcset attr", rule: FieldRule{Selectors: []string{`img`}, Attrs: []string{"data-srcset"}}, want: "/a.jpg 1x, /b.jpg 2x"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.rule.First(doc.Selection))
		})
	}
	require.Equal(t, "/a.jpg", firstSrcsetURL("/a.jpg 1x, /b.jpg 2x"))
	require.Equal(t, "/plain.jpg", firstSrcsetURL("/plain.jpg"))
}
