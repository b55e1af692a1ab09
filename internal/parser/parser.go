package parser

import (
	"github.com/PuerkitoBio/goquery"
)

type Parser interface {
	ParseDetailPage(html string) (*Extracted, error)
	Extract(doc *goquery.Document) *Extracted
}

// Extracted holds the raw field values of a detail page before the phone is
// normalized and the record is assembled.
type Extracted struct {
	Title       string
	PriceUSD    int
	OdometerKm  int
	SellerName  string
	Phone       string
	PhoneFound  bool
	ImageURL    string
	ImageCount  int
	PlateNumber *string
	VIN         *string
}
