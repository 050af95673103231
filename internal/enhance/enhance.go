// Package enhance turns a short promotional message into a generation brief.
package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	SourceTemplate = "template"
	sourceModel    = "model:"
)

// Provider is an external text model that can enrich a brief.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

type ImageSpec struct {
	AspectRatio     string `json:"aspect_ratio"`
	RecommendedSize string `json:"recommended_size"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Format          string `json:"format"`
	OptimizedFor    string `json:"optimized_for"`
}

// WhatsAppSquare is the output format for every generation.
var WhatsAppSquare = ImageSpec{
	AspectRatio:     "1:1",
	RecommendedSize: "1080x1080",
	Width:           1080,
	Height:          1080,
	Format:          "jpg",
	OptimizedFor:    "whatsapp",
}

// Brief is what the renderer consumes. StructuredPrompt is always the
// deterministic template; EnhancedDescription is the model's prose when a
// provider answered, otherwise identical to StructuredPrompt.
type Brief struct {
	EnhancedDescription string    `json:"enhanced_description"`
	StructuredPrompt    string    `json:"structured_prompt"`
	OriginalPrompt      string    `json:"original_prompt"`
	BusinessName        string    `json:"business_name,omitempty"`
	Category            string    `json:"business_type"`
	Style               string    `json:"style"`
	Template            Template  `json:"template"`
	Entities            Entities  `json:"extracted_info"`
	ImageSpec           ImageSpec `json:"image_specs"`
	Source              string    `json:"source"`
	GeneratedAt         time.Time `json:"generated_at"`
}

type Request struct {
	Text         string
	Category     string
	Style        string
	BusinessName string
}

type Service struct {
	providers []Provider
	timeout   time.Duration
	now       func() time.Time
}

// NewService tries providers in order; with none configured every brief is the template.
func NewService(timeout time.Duration, providers ...Provider) *Service {
	return &Service{providers: providers, timeout: timeout, now: time.Now}
}

// Enhance always returns a usable brief. Provider failures are logged and the
// structured template is used instead.
func (s *Service) Enhance(ctx context.Context, req Request) *Brief {
	category := NormalizeCategory(req.Category)
	style := NormalizeStyle(req.Style)
	entities := Extract(req.Text)
	structured := StructuredPrompt(req.Text, category, style, entities)

	brief := &Brief{
		EnhancedDescription: structured,
		StructuredPrompt:    structured,
		OriginalPrompt:      req.Text,
		BusinessName:        req.BusinessName,
		Category:            category,
		Style:               style,
		Template:            templates[category],
		Entities:            entities,
		ImageSpec:           WhatsAppSquare,
		Source:              SourceTemplate,
		GeneratedAt:         s.now().UTC(),
	}

	for _, p := range s.providers {
		text, err := s.complete(ctx, p, structured)
		if err != nil {
			slog.Warn("brief enrichment failed, trying next provider", "provider", p.Name(), "error", err)
			continue
		}
		brief.EnhancedDescription = text
		brief.Source = sourceModel + p.Name()
		return brief
	}
	return brief
}

func (s *Service) complete(ctx context.Context, p Provider, prompt string) (string, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text, err := p.Complete(callCtx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s returned an empty completion", p.Name())
	}
	return text, nil
}

// StructuredPrompt renders the deterministic brief for the given inputs.
func StructuredPrompt(userText, category, style string, e Entities) string {
	category = NormalizeCategory(category)
	style = NormalizeStyle(style)
	t := templates[category]

	var b strings.Builder
	b.WriteString("Create a promotional image for WhatsApp with these specifications:\n\n")
	fmt.Fprintf(&b, "BUSINESS TYPE: %s\n", category)
	fmt.Fprintf(&b, "USER PROMPT: %q\n", userText)
	fmt.Fprintf(&b, "VISUAL STYLE: %s\n\n", styles[style])

	b.WriteString("DESIGN REQUIREMENTS:\n")
	fmt.Fprintf(&b, "1. Image format: Square (%s aspect ratio, %s) optimized for WhatsApp\n", WhatsAppSquare.AspectRatio, WhatsAppSquare.RecommendedSize)
	fmt.Fprintf(&b, "2. Style: %s\n", t.Style)
	fmt.Fprintf(&b, "3. Mood: %s\n", t.Mood)
	fmt.Fprintf(&b, "4. Color palette: %s\n\n", t.Palette)

	b.WriteString("MUST INCLUDE ELEMENTS:\n")
	for _, el := range t.Elements {
		fmt.Fprintf(&b, "- %s\n", el)
	}
	b.WriteString("- Call to action (\"Ligue agora\", \"Peça já\")\n\n")

	b.WriteString("EXTRACTED DETAILS:\n")
	writeList(&b, "Products", e.Products)
	writeList(&b, "Prices (R$)", e.Prices)
	writeList(&b, "Discounts (%)", e.Discounts)
	writeList(&b, "Dates", e.Dates)
	if e.Contact != "" {
		fmt.Fprintf(&b, "- Contact: %s\n", e.Contact)
	}

	b.WriteString("\nVISUAL GUIDELINES:\n")
	b.WriteString("- Text must be large enough to read on mobile screens\n")
	b.WriteString("- Prices and discounts are the most prominent text\n")
	b.WriteString("- Keep strong color contrast for readability\n")
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}
