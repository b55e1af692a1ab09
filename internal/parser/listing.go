package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rule is one way of locating a field. The first rule in a chain that returns
// ok wins. Rules never fail on missing nodes.
type Rule func(doc *goquery.Document) (string, bool)

const (
	TitleSelector      = "h1.head"
	PriceSelector      = ".price_value strong"
	PriceUSDSelector   = `[data-currency="USD"]`
	OdometerSelector   = "section.main-info span.size18"
	SellerSelector     = ".seller_info_name"
	PhoneSelector      = ".popup-successful-call-desk"
	ImageSelector      = "div.photo-620x465 img"
	ThumbnailSelector  = ".photo-74x56.loaded"
	PlateSelector      = "span.state-num.ua"
	VINSelector        = "span.label-vin"
	OverlaySelector    = ".c-notifier-container"
	DetailLinkSelector = "a.m-link-ticket[href]"
)

// Plate badges carry a recognition disclaimer after the number itself.
var plateDisclaimers = []string{"Ми розпізнали", "We recognized"}

type ListingParser struct {
	title    []Rule
	price    []Rule
	odometer []Rule
	seller   []Rule
	image    []Rule
	plate    []Rule
	vin      []Rule
}

func NewListingParser() *ListingParser {
	return &ListingParser{
		title: []Rule{FirstText(TitleSelector)},
		price: []Rule{
			containing(FirstText(PriceSelector), "$"),
			FirstNonEmptyText(PriceUSDSelector),
		},
		odometer: []Rule{FirstText(OdometerSelector)},
		seller:   []Rule{FirstText(SellerSelector)},
		image:    []Rule{FirstAttr(ImageSelector, "src")},
		plate:    []Rule{FirstText(PlateSelector)},
		vin:      []Rule{FirstText(VINSelector)},
	}
}

func (p *ListingParser) ParseDetailPage(html string) (*Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return p.Extract(doc), nil
}

func (p *ListingParser) Extract(doc *goquery.Document) *Extracted {
	out := &Extracted{}

	out.Title, _ = Apply(doc, p.title)

	if raw, ok := Apply(doc, p.price); ok {
		out.PriceUSD = parseDigits(raw)
	}

	if raw, ok := Apply(doc, p.odometer); ok {
		out.OdometerKm = parseOdometer(raw)
	}

	out.SellerName, _ = Apply(doc, p.seller)

	if sel := doc.Find(PhoneSelector).First(); sel.Length() > 0 {
		out.Phone = strings.TrimSpace(sel.Text())
		out.PhoneFound = true
	}

	out.ImageURL, _ = Apply(doc, p.image)
	out.ImageCount = doc.Find(ThumbnailSelector).Length()

	if raw, ok := Apply(doc, p.plate); ok {
		plate := cutPlate(raw)
		out.PlateNumber = &plate
	}

	if raw, ok := Apply(doc, p.vin); ok {
		out.VIN = &raw
	}

	return out
}

// Apply walks the chain and returns the first value a rule accepts.
func Apply(doc *goquery.Document, rules []Rule) (string, bool) {
	for _, rule := range rules {
		if v, ok := rule(doc); ok {
			return v, true
		}
	}
	return "", false
}

// FirstText matches when the selector finds a node, even an empty one.
func FirstText(selector string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		return strings.TrimSpace(sel.Text()), true
	}
}

func FirstNonEmptyText(selector string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = strings.TrimSpace(s.Text())
			return found == ""
		})
		return found, found != ""
	}
}

func FirstAttr(selector, attr string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		v, ok := doc.Find(selector).First().Attr(attr)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
}

// containing narrows a rule to values that carry marker and at least one digit.
func containing(rule Rule, marker string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		v, ok := rule(doc)
		if !ok || !strings.Contains(v, marker) || !hasDigit(v) {
			return "", false
		}
		return v, true
	}
}

func parseDigits(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

// parseOdometer reads the mileage badge, which is shown in thousands of km.
func parseOdometer(s string) int {
	if s == "" {
		return 0
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n * 1000
}

func cutPlate(raw string) string {
	for _, marker := range plateDisclaimers {
		if i := strings.Index(raw, marker); i >= 0 {
			raw = raw[:i]
		}
	}
	return strings.TrimSpace(raw)
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}
