package parser

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullDetailPage = `<html><body>
<h1 class="head"> Toyota Camry 2018 </h1>
<div class="price_value"><strong>18 500 $</strong></div>
<section class="main-info"><span class="size18">95</span> тис. км пробігу</section>
<div class="seller_info_name"> Олександр </div>
<div class="popup-successful-call-desk"> (050) 505 05 05 </div>
<div class="photo-620x465"><picture><img src="https://cdn.example/photo/1.jpg"></picture></div>
<a class="photo-74x56 loaded"></a><a class="photo-74x56 loaded"></a><a class="photo-74x56"></a>
<span class="state-num ua">AA 1234 BB <span>Ми розпізнали держномер авто на фото</span></span>
<span class="label-vin">JTNB11HK0J3000000</span>
</body></html>`

func TestParseDetailPage(t *testing.T) {
	p := NewListingParser()

	got, err := p.ParseDetailPage(fullDetailPage)
	require.NoError(t, err)

	assert.Equal(t, "Toyota Camry 2018", got.Title)
	assert.Equal(t, 18500, got.PriceUSD)
	assert.Equal(t, 95000, got.OdometerKm)
	assert.Equal(t, "Олександр", got.SellerName)
	assert.True(t, got.PhoneFound)
	assert.Equal(t, "(050) 505 05 05", got.Phone)
	assert.Equal(t, "https://cdn.example/photo/1.jpg", got.ImageURL)
	assert.Equal(t, 2, got.ImageCount)
	require.NotNil(t, got.PlateNumber)
	assert.Equal(t, "AA 1234 BB", *got.PlateNumber)
	require.NotNil(t, got.VIN)
	assert.Equal(t, "JTNB11HK0J3000000", *got.VIN)
}

func TestParseEmptyPage(t *testing.T) {
	got, err := NewListingParser().ParseDetailPage(`<html><body><p>removed</p></body></html>`)
	require.NoError(t, err)

	assert.Equal(t, &Extracted{}, got)
}

func TestPriceFallback(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected int
	}{
		{
			name:     "Primary block in dollars",
			html:     `<div class="price_value"><strong>9 999 $</strong></div>`,
			expected: 9999,
		},
		{
			name: "Primary block in another currency falls back to USD block",
			html: `<div class="price_value"><strong>€12 345</strong></div>
				<span data-currency="USD">$9 999</span>`,
			expected: 9999,
		},
		{
			name: "First non-empty USD block wins",
			html: `<span data-currency="USD">  </span>
				<span data-currency="USD">7 250 $</span>
				<span data-currency="USD">8 000 $</span>`,
			expected: 7250,
		},
		{
			name:     "No candidate",
			html:     `<div class="price_value"><strong>€12 345</strong></div>`,
			expected: 0,
		},
		{
			name:     "Dollar sign without digits",
			html:     `<div class="price_value"><strong>$</strong></div>`,
			expected: 0,
		},
	}

	p := NewListingParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseDetailPage(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.PriceUSD)
		})
	}
}

func TestOdometer(t *testing.T) {
	tests := []struct {
		raw      string
		expected int
	}{
		{"150", 150000},
		{" 7 ", 7000},
		{"0", 0},
		{"new", 0},
		{"1.5", 0},
		{"", 0},
	}

	p := NewListingParser()
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			html := `<section class="main-info"><span class="size18">` + tt.raw + `</span></section>`
			got, err := p.ParseDetailPage(html)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.OdometerKm)
		})
	}
}

func TestPlateNumber(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected *string
	}{
		{
			name:     "Absent",
			html:     `<div></div>`,
			expected: nil,
		},
		{
			name:     "Ukrainian disclaimer",
			html:     `<span class="state-num ua">KA 0001 AA Ми розпізнали</span>`,
			expected: ptr("KA 0001 AA"),
		},
		{
			name:     "English disclaimer",
			html:     `<span class="state-num ua">BC 7777 CT We recognized the plate</span>`,
			expected: ptr("BC 7777 CT"),
		},
		{
			name:     "Present but empty",
			html:     `<span class="state-num ua"> </span>`,
			expected: ptr(""),
		},
	}

	p := NewListingParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseDetailPage(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.PlateNumber)
		})
	}
}

func TestPhoneNodeAbsent(t *testing.T) {
	got, err := NewListingParser().ParseDetailPage(`<h1 class="head">Car</h1>`)
	require.NoError(t, err)

	assert.False(t, got.PhoneFound)
	assert.Empty(t, got.Phone)
}

func TestApplyOrder(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<b class="x">first</b><i class="y">second</i>`))
	require.NoError(t, err)

	never := func(*goquery.Document) (string, bool) { return "", false }

	v, ok := Apply(doc, []Rule{never, FirstText("i.y"), FirstText("b.x")})
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	_, ok = Apply(doc, []Rule{never, FirstText("u")})
	assert.False(t, ok)

	_, ok = Apply(doc, nil)
	assert.False(t, ok)
}

func ptr(s string) *string { return &s }
