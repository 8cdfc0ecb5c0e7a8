package parser

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/alkoteka-scraper/internal/models"
)

// Normalizer turns a parsed product page into a complete record. It is the
// only producer of models.Product and never fails: every missing field
// falls back to its documented default.
type Normalizer struct {
	parser *AlkotekaParser
}

func NewNormalizer(p *AlkotekaParser) *Normalizer {
	return &Normalizer{parser: p}
}

// Normalize builds the record for doc fetched from pageURL. Apart from the
// timestamp taken from now, the result depends only on the document.
func (n *Normalizer) Normalize(doc *goquery.Document, pageURL string, now time.Time) models.Product {
	p := n.parser
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	product := models.NewProduct(pageURL, now)
	product.RPC = p.RPC(doc, pageURL).Or("")
	product.Title = composeTitle(p.Title(doc), p.Volume(doc))
	product.Brand = p.Brand(doc).Or("")
	product.MarketingTags = p.MarketingTags(doc).Or(product.MarketingTags)
	product.Section = p.Section(doc).Or(product.Section)
	product.PriceData = DerivePrice(p.ListedPrice(doc), p.EffectivePrice(doc))
	product.Stock = p.Stock(doc).Or(models.Stock{})
	product.Variants = p.Variants(doc, base).Or(0)

	images := p.Images(doc, base).Or(product.Assets.SetImages)
	product.Assets.SetImages = images
	if len(images) > 0 {
		product.Assets.MainImage = images[0]
	}
	product.Assets.View360 = p.View360(doc, base).Or(product.Assets.View360)
	product.Assets.Video = p.Video(doc, base).Or(product.Assets.Video)

	for label, value := range p.Attributes(doc).Or(nil) {
		product.Metadata[label] = value
	}
	product.Metadata[models.DescriptionKey] = p.Description(doc).Or("")

	return product
}

// composeTitle appends the volume attribute as "<title>, <volume>" unless
// the title already mentions it or there is no title to append to.
func composeTitle(title, volume Field[string]) string {
	base := title.Or("")
	if base == "" || !volume.Found || volume.Value == "" {
		return base
	}
	if strings.Contains(base, volume.Value) {
		return base
	}
	return base + ", " + volume.Value
}
