package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/alkoteka-scraper/internal/models"
)

var priceNumberPattern = regexp.MustCompile(`\d[\d\s\x{00a0}\x{202f}\x{2009}.,]*`)

// ParsePrice reads a price from localized text such as "1 299,50 ₽".
// Currency symbols and thousands separators are dropped; the last ',' or
// '.' is the decimal mark only when one or two digits follow it.
func ParsePrice(text string) Field[float64] {
	loc := priceNumberPattern.FindStringIndex(text)
	if loc == nil {
		return None[float64]()
	}
	if prefix := strings.TrimRight(text[:loc[0]], " \u00a0"); strings.HasSuffix(prefix, "-") || strings.HasSuffix(prefix, "−") {
		return None[float64]()
	}

	raw := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, text[loc[0]:loc[1]])
	raw = strings.TrimRight(raw, ".,")

	number := raw
	if i := strings.LastIndexAny(raw, ".,"); i >= 0 {
		frac := raw[i+1:]
		whole := strings.NewReplacer(",", "", ".", "").Replace(raw[:i])
		if len(frac) == 1 || len(frac) == 2 {
			number = whole + "." + frac
		} else {
			number = whole + frac
		}
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return None[float64]()
	}
	return Some(value)
}

// DerivePrice applies the listed/effective price rule. A listed price is
// only reported as the original when it is strictly above the effective one.
func DerivePrice(listed, effective Field[float64]) models.PriceData {
	if !effective.Found {
		if !listed.Found {
			return models.PriceData{}
		}
		effective, listed = listed, None[float64]()
	}

	current := effective.Value
	if !listed.Found || listed.Value <= current {
		return models.PriceData{Current: current, Original: current}
	}

	price := models.PriceData{Current: current, Original: listed.Value}
	if discount := discountPercent(current, listed.Value); discount > 0 {
		price.SaleTag = fmt.Sprintf("Скидка %d%%", discount)
	}
	return price
}

// discountPercent works in whole kopecks so that exact halves round away
// from zero.
func discountPercent(current, original float64) int {
	o := int64(math.Round(original * 100))
	c := int64(math.Round(current * 100))
	if o <= 0 || c >= o {
		return 0
	}
	return int(((o-c)*200 + o) / (2 * o))
}
