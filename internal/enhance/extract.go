package enhance

import (
	"regexp"
	"strings"
)

// Entities are the promotional facts pulled out of the user's text.
type Entities struct {
	Products  []string `json:"products"`
	Prices    []string `json:"prices"`
	Discounts []string `json:"discounts"`
	Contact   string   `json:"contact_info,omitempty"`
	Dates     []string `json:"dates,omitempty"`
}

var (
	pricePattern    = regexp.MustCompile(`(?i)R\$\s*(\d+[.,]\d+|\d+)`)
	discountPattern = regexp.MustCompile(`(?i)(\d+)%|\b(\d+)\s*por cento\b`)
	phonePattern    = regexp.MustCompile(`\(?\d{2}\)?\s*\d{4,5}[-.\s]?\d{4}`)
	datePattern     = regexp.MustCompile(`\d{1,2}/\d{1,2}(?:/\d{2,4})?`)
)

var productKeywords = map[string]bool{
	"promoção":   true,
	"oferta":     true,
	"desconto":   true,
	"venda":      true,
	"lançamento": true,
}

// Extract runs the pattern heuristics over text. It never fails.
func Extract(text string) Entities {
	e := Entities{
		Products:  []string{},
		Prices:    []string{},
		Discounts: []string{},
	}

	for _, m := range pricePattern.FindAllStringSubmatch(text, -1) {
		e.Prices = append(e.Prices, strings.ReplaceAll(m[1], ",", "."))
	}

	for _, m := range discountPattern.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			e.Discounts = append(e.Discounts, m[1])
		} else if m[2] != "" {
			e.Discounts = append(e.Discounts, m[2])
		}
	}

	if phone := phonePattern.FindString(text); phone != "" {
		e.Contact = phone
	}

	e.Dates = datePattern.FindAllString(text, -1)

	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		if productKeywords[w] && i+1 < len(words) {
			e.Products = append(e.Products, words[i+1])
		}
	}
	return e
}
