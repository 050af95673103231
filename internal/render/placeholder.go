package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/enhance"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	placeholderSize  = 1080
	placeholderScale = 5
	maxLineRunes     = 28
)

type gradient struct {
	from, to color.RGBA
}

var categoryGradients = map[string]gradient{
	enhance.CategoryRestaurant:  {hex(0xFF6B35), hex(0xFFE66D)},
	enhance.CategorySupermarket: {hex(0x2A9D8F), hex(0x264653)},
	enhance.CategoryClothing:    {hex(0xE63946), hex(0xF1FAEE)},
	enhance.CategoryBeauty:      {hex(0xFFAFCC), hex(0xCDB4DB)},
	enhance.CategoryServices:    {hex(0x3A86FF), hex(0x8338EC)},
}

// PlaceholderBackend draws a category-coloured gradient card with the key
// promotional text. It needs no network and never fails on valid briefs.
type PlaceholderBackend struct{}

func NewPlaceholderBackend() *PlaceholderBackend {
	return &PlaceholderBackend{}
}

func (p *PlaceholderBackend) Render(ctx context.Context, brief *enhance.Brief) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g, ok := categoryGradients[brief.Category]
	if !ok {
		g = categoryGradients[enhance.CategoryServices]
	}

	canvas := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
	for y := 0; y < placeholderSize; y++ {
		c := lerp(g.from, g.to, float64(y)/float64(placeholderSize-1))
		for x := 0; x < placeholderSize; x++ {
			canvas.SetRGBA(x, y, c)
		}
	}

	lines := placeholderLines(brief)
	lineHeight := basicfont.Face7x13.Height * placeholderScale
	top := (placeholderSize - len(lines)*(lineHeight+20)) / 2
	for i, line := range lines {
		drawScaledText(canvas, line, top+i*(lineHeight+20))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return &Image{Data: buf.Bytes(), ContentType: "image/png", ModelID: "placeholder"}, nil
}

func placeholderLines(brief *enhance.Brief) []string {
	name := brief.BusinessName
	if name == "" {
		name = "Seu Negócio"
	}
	lines := []string{truncate(name), "Promoção Especial"}

	var offer []string
	if len(brief.Entities.Prices) > 0 {
		offer = append(offer, "R$ "+strings.ReplaceAll(brief.Entities.Prices[0], ".", ","))
	}
	if len(brief.Entities.Discounts) > 0 {
		offer = append(offer, brief.Entities.Discounts[0]+"% OFF")
	}
	if len(offer) > 0 {
		lines = append(lines, strings.Join(offer, "  "))
	}
	if p := strings.TrimSpace(brief.OriginalPrompt); p != "" {
		lines = append(lines, truncate(p))
	}
	if brief.Entities.Contact != "" {
		lines = append(lines, brief.Entities.Contact)
	}
	return lines
}

// drawScaledText renders with the 7x13 bitmap face and enlarges it, centred horizontally.
func drawScaledText(dst *image.RGBA, text string, y int) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	if width == 0 {
		return
	}
	small := image.NewRGBA(image.Rect(0, 0, width, face.Height))
	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	w := width * placeholderScale
	if w > placeholderSize-40 {
		w = placeholderSize - 40
	}
	h := face.Height * placeholderScale
	x := (placeholderSize - w) / 2
	draw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+w, y+h), small, small.Bounds(), draw.Over, nil)
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxLineRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxLineRunes-3]) + "..."
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

func hex(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}
