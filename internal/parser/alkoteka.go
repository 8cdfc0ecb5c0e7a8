package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/alkoteka-scraper/internal/models"
)

const placeholderImage = "data:"

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	digitsPattern     = regexp.MustCompile(`\d+`)
	slugIDPattern     = regexp.MustCompile(`(\d+)/?$`)

	homeLabels  = map[string]bool{"главная": true, "home": true, "алкотека": true, "каталог": true}
	brandLabels = []string{"Бренд", "Производитель", "Brand"}
)

// AlkotekaParser holds the field extractors for alkoteka.com pages. Every
// extractor is a pure function of the document and reports absence via Field.
type AlkotekaParser struct {
	sel Selectors
}

func NewAlkotekaParser(sel Selectors) *AlkotekaParser {
	return &AlkotekaParser{sel: sel}
}

func (p *AlkotekaParser) Selectors() Selectors {
	return p.sel
}

// ProductLinks returns the absolute product URLs of a category page in
// page order. Duplicates are left for the frontier to drop.
func (p *AlkotekaParser) ProductLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find(p.sel.ProductLink).Each(func(i int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if abs := resolve(base, href); abs != "" {
				links = append(links, abs)
			}
		}
	})
	return links
}

// NextPage returns the absolute URL of the pagination "next" link.
func (p *AlkotekaParser) NextPage(doc *goquery.Document, base *url.URL) Field[string] {
	var next string
	doc.Find(p.sel.NextPage).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if v, _ := s.Attr("aria-disabled"); v == "true" || s.HasClass("disabled") {
			return true
		}
		if href, ok := s.Attr("href"); ok {
			next = resolve(base, href)
		}
		return next == ""
	})
	if next == "" {
		return None[string]()
	}
	return Some(next)
}

func (p *AlkotekaParser) Title(doc *goquery.Document) Field[string] {
	return firstText(doc, p.sel.Title)
}

// Volume is the displayed volume/colour attribute shown next to the title.
func (p *AlkotekaParser) Volume(doc *goquery.Document) Field[string] {
	return firstText(doc, p.sel.Volume)
}

// RPC derives the stable product id: the data attribute, then the article
// number text, then the numeric suffix of the URL slug.
func (p *AlkotekaParser) RPC(doc *goquery.Document, pageURL string) Field[string] {
	if id, ok := doc.Find(p.sel.ProductID).First().Attr("data-product-id"); ok {
		if id = strings.TrimSpace(id); id != "" {
			return Some(id)
		}
	}

	if article := firstText(doc, p.sel.Article); article.Found {
		if digits := digitsPattern.FindString(article.Value); digits != "" {
			return Some(digits)
		}
	}

	if u, err := url.Parse(pageURL); err == nil {
		if m := slugIDPattern.FindStringSubmatch(u.Path); m != nil {
			return Some(m[1])
		}
	}

	return None[string]()
}

// Brand reads the brand element and falls back to the brand attribute row.
func (p *AlkotekaParser) Brand(doc *goquery.Document) Field[string] {
	if brand := firstText(doc, p.sel.Brand); brand.Found {
		return brand
	}

	attrs := p.Attributes(doc)
	if !attrs.Found {
		return None[string]()
	}
	for _, label := range brandLabels {
		if v, ok := attrs.Value[label]; ok && v != "" {
			return Some(v)
		}
	}
	return None[string]()
}

// Section returns the breadcrumb trail root-to-leaf without the home entry.
func (p *AlkotekaParser) Section(doc *goquery.Document) Field[[]string] {
	crumbs := make([]string, 0)
	doc.Find(p.sel.Breadcrumb).Each(func(i int, s *goquery.Selection) {
		label := cleanString(s.Text())
		if label == "" {
			return
		}
		if len(crumbs) == 0 && homeLabels[strings.ToLower(label)] {
			return
		}
		crumbs = append(crumbs, label)
	})
	if len(crumbs) == 0 {
		return None[[]string]()
	}
	return Some(crumbs)
}

// MarketingTags returns badge texts in page order, duplicates included.
func (p *AlkotekaParser) MarketingTags(doc *goquery.Document) Field[[]string] {
	return allTexts(doc, p.sel.Badge)
}

// Images returns distinct absolute gallery image URLs. og:image is used
// only when the gallery is empty.
func (p *AlkotekaParser) Images(doc *goquery.Document, base *url.URL) Field[[]string] {
	seen := make(map[string]bool)
	images := make([]string, 0)
	add := func(raw string) {
		abs := resolve(base, raw)
		if abs == "" || strings.HasPrefix(abs, placeholderImage) || seen[abs] {
			return
		}
		seen[abs] = true
		images = append(images, abs)
	}

	doc.Find(p.sel.Image).Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" || strings.HasPrefix(src, placeholderImage) {
			src, _ = s.Attr("data-src")
		}
		add(src)
	})

	if len(images) == 0 {
		if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
			add(og)
		}
	}

	if len(images) == 0 {
		return None[[]string]()
	}
	return Some(images)
}

// View360 has no known markup yet; it reports not-found unless a selector
// is configured.
func (p *AlkotekaParser) View360(doc *goquery.Document, base *url.URL) Field[[]string] {
	return mediaSources(doc, p.sel.View360, base)
}

// Video has no known markup yet; see View360.
func (p *AlkotekaParser) Video(doc *goquery.Document, base *url.URL) Field[[]string] {
	return mediaSources(doc, p.sel.Video, base)
}

func (p *AlkotekaParser) Description(doc *goquery.Document) Field[string] {
	return firstText(doc, p.sel.Description)
}

// Attributes collects the characteristic rows. A repeated label keeps the
// later value.
func (p *AlkotekaParser) Attributes(doc *goquery.Document) Field[map[string]string] {
	attrs := make(map[string]string)
	// One selector group so rows and dt terms come back in document order.
	var selectors []string
	if p.sel.AttributeRow != "" {
		selectors = append(selectors, p.sel.AttributeRow)
	}
	for _, list := range strings.Split(p.sel.AttributeList, ",") {
		if list = strings.TrimSpace(list); list != "" {
			selectors = append(selectors, list+" dt")
		}
	}
	if len(selectors) == 0 {
		return None[map[string]string]()
	}
	doc.Find(strings.Join(selectors, ", ")).Each(func(i int, s *goquery.Selection) {
		var label, value string
		if goquery.NodeName(s) == "dt" {
			label = cleanString(s.Text())
			value = cleanString(s.NextFiltered("dd").Text())
		} else {
			label = cleanString(s.Find(p.sel.AttributeLabel).First().Text())
			value = cleanString(s.Find(p.sel.AttributeValue).First().Text())
		}
		if label == "" {
			return
		}
		attrs[label] = value
	})
	if len(attrs) == 0 {
		return None[map[string]string]()
	}
	return Some(attrs)
}

// ListedPrice is the struck-through price, when the product is discounted.
func (p *AlkotekaParser) ListedPrice(doc *goquery.Document) Field[float64] {
	text := firstText(doc, p.sel.ListedPrice)
	if !text.Found {
		return None[float64]()
	}
	return ParsePrice(text.Value)
}

// EffectivePrice is the price the product sells at, falling back to the
// machine-readable itemprop price.
func (p *AlkotekaParser) EffectivePrice(doc *goquery.Document) Field[float64] {
	if text := firstText(doc, p.sel.EffectivePrice); text.Found {
		if price := ParsePrice(text.Value); price.Found {
			return price
		}
	}
	if content, ok := doc.Find(p.sel.PriceMeta).First().Attr("content"); ok {
		return ParsePrice(content)
	}
	return None[float64]()
}

// Stock maps the purchase block to availability. An explicit out-of-stock
// signal wins over everything else; a legible quantity wins over a bare
// buy button.
func (p *AlkotekaParser) Stock(doc *goquery.Document) Field[models.Stock] {
	if doc.Find(p.sel.OutOfStock).Length() > 0 {
		return Some(models.Stock{InStock: false, Count: 0})
	}

	button := doc.Find(p.sel.BuyButton).First()
	if button.Length() > 0 {
		if _, disabled := button.Attr("disabled"); disabled {
			return Some(models.Stock{InStock: false, Count: 0})
		}
	}

	if count := p.stockCount(doc); count.Found {
		return Some(models.Stock{InStock: count.Value > 0, Count: count.Value})
	}

	if button.Length() > 0 {
		return Some(models.Stock{InStock: true, Count: 0})
	}
	return None[models.Stock]()
}

func (p *AlkotekaParser) stockCount(doc *goquery.Document) Field[int] {
	node := doc.Find(p.sel.StockCount).First()
	if node.Length() == 0 {
		return None[int]()
	}
	text, ok := node.Attr("data-stock-count")
	if !ok {
		text = node.Text()
	}
	digits := digitsPattern.FindString(text)
	if digits == "" {
		return None[int]()
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return None[int]()
	}
	return Some(n)
}

// Variants counts distinct entries of the volume selector. One entry still
// counts as a variant. Linked entries are keyed by their absolute URL.
func (p *AlkotekaParser) Variants(doc *goquery.Document, base *url.URL) Field[int] {
	items := doc.Find(p.sel.VariantItem)
	if items.Length() == 0 {
		return None[int]()
	}

	seen := make(map[string]bool)
	items.Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		key := resolve(base, href)
		if key == "" {
			key = cleanString(s.Text())
		}
		if key == "" {
			key, _ = goquery.OuterHtml(s)
		}
		seen[key] = true
	})
	return Some(len(seen))
}

func mediaSources(doc *goquery.Document, selector string, base *url.URL) Field[[]string] {
	if selector == "" {
		return None[[]string]()
	}
	var sources []string
	doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if abs := resolve(base, src); abs != "" {
			sources = append(sources, abs)
		}
	})
	if len(sources) == 0 {
		return None[[]string]()
	}
	return Some(sources)
}

func firstText(doc *goquery.Document, selector string) Field[string] {
	if selector == "" {
		return None[string]()
	}
	text := cleanString(doc.Find(selector).First().Text())
	if text == "" {
		return None[string]()
	}
	return Some(text)
}

func allTexts(doc *goquery.Document, selector string) Field[[]string] {
	if selector == "" {
		return None[[]string]()
	}
	texts := make([]string, 0)
	doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		if text := cleanString(s.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	if len(texts) == 0 {
		return None[[]string]()
	}
	return Some(texts)
}

func cleanString(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "#") {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}
