package models

import (
	"fmt"
	"time"
)

// DescriptionKey is the metadata key that always carries the product description.
const DescriptionKey = "__description"

// Product is one normalized catalog record. Every field is always present
// in the serialized form.
type Product struct {
	Timestamp     int64             `json:"timestamp"`
	RPC           string            `json:"RPC"`
	URL           string            `json:"url"`
	Title         string            `json:"title"`
	MarketingTags []string          `json:"marketing_tags"`
	Brand         string            `json:"brand"`
	Section       []string          `json:"section"`
	PriceData     PriceData         `json:"price_data"`
	Stock         Stock             `json:"stock"`
	Assets        Assets            `json:"assets"`
	Metadata      map[string]string `json:"metadata"`
	Variants      int               `json:"variants"`
}

type PriceData struct {
	Current  float64 `json:"current"`
	Original float64 `json:"original"`
	SaleTag  string  `json:"sale_tag"`
}

type Stock struct {
	InStock bool `json:"in_stock"`
	Count   int  `json:"count"`
}

type Assets struct {
	MainImage string   `json:"main_image"`
	SetImages []string `json:"set_images"`
	View360   []string `json:"view360"`
	Video     []string `json:"video"`
}

// NewProduct returns a record for url with every collection initialised,
// so that an otherwise empty record still serializes with [] and {}.
func NewProduct(url string, at time.Time) Product {
	return Product{
		Timestamp:     at.Unix(),
		URL:           url,
		MarketingTags: make([]string, 0),
		Section:       make([]string, 0),
		Assets: Assets{
			SetImages: make([]string, 0),
			View360:   make([]string, 0),
			Video:     make([]string, 0),
		},
		Metadata: map[string]string{DescriptionKey: ""},
	}
}

func (p *PriceData) IsValid() bool {
	return p.Current >= 0 && p.Original >= p.Current
}

func (s *Stock) IsValid() bool {
	return s.Count >= 0
}

func (a *Assets) IsValid() bool {
	if a.MainImage == "" {
		return true
	}
	return len(a.SetImages) > 0 && a.SetImages[0] == a.MainImage
}

// Validate reports every schema invariant the record breaks.
func (p *Product) Validate() []string {
	var errors []string

	if p.URL == "" {
		errors = append(errors, "url is required")
	}

	if !p.PriceData.IsValid() {
		errors = append(errors, fmt.Sprintf("invalid price data: current=%v original=%v", p.PriceData.Current, p.PriceData.Original))
	}

	if !p.Stock.IsValid() {
		errors = append(errors, fmt.Sprintf("negative stock count: %d", p.Stock.Count))
	}

	if !p.Assets.IsValid() {
		errors = append(errors, "main_image must be the first set image")
	}

	if p.Variants < 0 {
		errors = append(errors, fmt.Sprintf("negative variants: %d", p.Variants))
	}

	if _, ok := p.Metadata[DescriptionKey]; !ok {
		errors = append(errors, "metadata is missing "+DescriptionKey)
	}

	if p.MarketingTags == nil || p.Section == nil || p.Assets.SetImages == nil ||
		p.Assets.View360 == nil || p.Assets.Video == nil {
		errors = append(errors, "list fields must not be null")
	}

	return errors
}
