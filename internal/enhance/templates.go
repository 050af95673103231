package enhance

import "strings"

// Template is the visual direction for one business category.
type Template struct {
	Style    string   `json:"style"`
	Elements []string `json:"elements"`
	Palette  string   `json:"color_palette"`
	Mood     string   `json:"mood"`
}

const (
	CategoryRestaurant  = "restaurant"
	CategorySupermarket = "supermarket"
	CategoryClothing    = "clothing"
	CategoryBeauty      = "beauty"
	CategoryServices    = "services"

	DefaultStyle = "modern"
)

var templates = map[string]Template{
	CategoryRestaurant: {
		Style:    "appetizing food photography with warm colors",
		Elements: []string{"food item", "price", "restaurant name", "contact info", "appetizing lighting"},
		Palette:  "warm colors like red, orange, yellow, brown",
		Mood:     "inviting, delicious, cozy",
	},
	CategorySupermarket: {
		Style:    "bright, clean, promotional style with clear pricing",
		Elements: []string{"products", "prices", "discount badges", "supermarket logo", "contact"},
		Palette:  "bright colors, green for savings, red for discounts",
		Mood:     "fresh, economical, trustworthy",
	},
	CategoryClothing: {
		Style:    "fashion photography with models or mannequins",
		Elements: []string{"clothing items", "prices", "discount percentage", "store name", "sizes available"},
		Palette:  "varies by season, elegant colors",
		Mood:     "stylish, trendy, sophisticated",
	},
	CategoryBeauty: {
		Style:    "beauty product photography with clean aesthetic",
		Elements: []string{"beauty products", "prices", "benefits", "store name", "contact"},
		Palette:  "soft colors, pastels, clean whites",
		Mood:     "clean, luxurious, refreshing",
	},
	CategoryServices: {
		Style:    "professional service advertisement",
		Elements: []string{"service description", "price/packages", "contact info", "benefits", "call to action"},
		Palette:  "professional blues, greens, neutral tones",
		Mood:     "trustworthy, professional, reliable",
	},
}

var styles = map[string]string{
	"modern":  "clean, minimalist design with ample white space, modern typography",
	"elegant": "sophisticated, premium look with subtle textures, elegant fonts",
	"fun":     "colorful, playful design with fun graphics, rounded shapes, happy vibe",
	"minimal": "extremely simple, focusing only on essential information",
	"bold":    "high contrast, strong typography, attention-grabbing design",
	"vintage": "retro style with vintage colors, textures, and typography",
}

var categoryAliases = map[string]string{
	"restaurante":  CategoryRestaurant,
	"lanchonete":   CategoryRestaurant,
	"pizzaria":     CategoryRestaurant,
	"padaria":      CategoryRestaurant,
	"mercado":      CategorySupermarket,
	"supermercado": CategorySupermarket,
	"roupas":       CategoryClothing,
	"moda":         CategoryClothing,
	"beleza":       CategoryBeauty,
	"salão":        CategoryBeauty,
	"estética":     CategoryBeauty,
	"serviços":     CategoryServices,
	"servicos":     CategoryServices,
}

// NormalizeCategory maps free-form input onto a known category, defaulting to services.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if _, ok := templates[c]; ok {
		return c
	}
	if alias, ok := categoryAliases[c]; ok {
		return alias
	}
	return CategoryServices
}

// NormalizeStyle maps unknown styles to the default.
func NormalizeStyle(style string) string {
	s := strings.ToLower(strings.TrimSpace(style))
	if _, ok := styles[s]; ok {
		return s
	}
	return DefaultStyle
}

func TemplateFor(category string) Template {
	return templates[NormalizeCategory(category)]
}

func StyleDescription(style string) string {
	return styles[NormalizeStyle(style)]
}

// Styles lists the accepted style names.
func Styles() []string {
	return []string{"modern", "elegant", "fun", "minimal", "bold", "vintage"}
}
