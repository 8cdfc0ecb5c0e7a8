package parser

// Selectors holds the CSS selectors for catalog and product pages.
// Comma-separated groups are tried as one selection, in document order.
type Selectors struct {
	ProductLink string `yaml:"product_link"`
	NextPage    string `yaml:"next_page"`

	Title       string `yaml:"title"`
	Volume      string `yaml:"volume"`
	ProductID   string `yaml:"product_id"`
	Article     string `yaml:"article"`
	Brand       string `yaml:"brand"`
	Breadcrumb  string `yaml:"breadcrumb"`
	Badge       string `yaml:"badge"`
	Image       string `yaml:"image"`
	Description string `yaml:"description"`

	AttributeRow   string `yaml:"attribute_row"`
	AttributeLabel string `yaml:"attribute_label"`
	AttributeValue string `yaml:"attribute_value"`
	AttributeList  string `yaml:"attribute_list"`

	ListedPrice    string `yaml:"listed_price"`
	EffectivePrice string `yaml:"effective_price"`
	PriceMeta      string `yaml:"price_meta"`

	OutOfStock  string `yaml:"out_of_stock"`
	BuyButton   string `yaml:"buy_button"`
	StockCount  string `yaml:"stock_count"`
	VariantItem string `yaml:"variant_item"`

	View360 string `yaml:"view360"`
	Video   string `yaml:"video"`
}

// DefaultSelectors matches the alkoteka.com catalog markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ProductLink: ".product-card a.product-card__link, .catalog-list a[href*='/product/']",
		NextPage:    "a.paginator__next, .pagination a[rel='next'], link[rel='next']",

		Title:       "h1.product-info__title, h1[itemprop='name']",
		Volume:      ".product-info__volume, .product-info__attribute--volume",
		ProductID:   "[data-product-id]",
		Article:     ".product-info__article, .product-info__code",
		Brand:       ".product-info__brand, [itemprop='brand']",
		Breadcrumb:  ".breadcrumbs .breadcrumbs__item",
		Badge:       ".product-info__labels .product-label, .product-info__badges .badge",
		Image:       ".product-gallery img, .product-info__gallery img",
		Description: ".product-info__description, [itemprop='description']",

		AttributeRow:   ".product-characteristics__item",
		AttributeLabel: ".product-characteristics__name",
		AttributeValue: ".product-characteristics__value",
		AttributeList:  "dl.product-characteristics, .product-properties dl",

		ListedPrice:    ".product-price__old",
		EffectivePrice: ".product-price__current, .product-price__actual",
		PriceMeta:      "[itemprop='price']",

		OutOfStock:  ".product-buy__unavailable, .product-info__out-of-stock",
		BuyButton:   "button.product-buy__button",
		StockCount:  ".product-buy__stock, [data-stock-count]",
		VariantItem: ".product-volumes .product-volumes__item",
	}
}
