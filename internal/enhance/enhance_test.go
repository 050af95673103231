package enhance

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	reply string
	err   error
	calls int
	block bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, _ string) (string, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

func TestExtract(t *testing.T) {
	text := "Promoção pizza grande por R$ 39,90 e refrigerante R$5! 20% off ou 10 por cento no pix. Ligue (11) 98765-4321 até 15/08/2026. Oferta relâmpago"

	e := Extract(text)

	assert.Equal(t, []string{"39.90", "5"}, e.Prices)
	assert.Equal(t, []string{"20", "10"}, e.Discounts)
	assert.Equal(t, "(11) 98765-4321", e.Contact)
	assert.Equal(t, []string{"15/08/2026"}, e.Dates)
	assert.Equal(t, []string{"pizza", "relâmpago"}, e.Products)
}

func TestExtract_NothingFound(t *testing.T) {
	e := Extract("bom dia")
	assert.Empty(t, e.Prices)
	assert.Empty(t, e.Discounts)
	assert.Empty(t, e.Products)
	assert.Empty(t, e.Contact)
	assert.Empty(t, e.Dates)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, CategoryRestaurant, NormalizeCategory("Restaurante"))
	assert.Equal(t, CategoryBeauty, NormalizeCategory("beauty"))
	assert.Equal(t, CategoryServices, NormalizeCategory("oficina"))
	assert.Equal(t, "vintage", NormalizeStyle(" VINTAGE "))
	assert.Equal(t, DefaultStyle, NormalizeStyle("neon"))
}

func TestEnhance_FallsBackToStructuredTemplate(t *testing.T) {
	failing := &stubProvider{name: "glm", err: errors.New("connection refused")}
	empty := &stubProvider{name: "deepseek", reply: "   "}
	svc := NewService(time.Second, failing, empty)

	text := "oferta açaí 500ml R$ 15"
	brief := svc.Enhance(context.Background(), Request{Text: text, Category: "restaurant", Style: "fun"})

	expected := StructuredPrompt(text, "restaurant", "fun", Extract(text))
	assert.NotEmpty(t, brief.EnhancedDescription)
	assert.Equal(t, expected, brief.EnhancedDescription)
	assert.Equal(t, expected, brief.StructuredPrompt)
	assert.Equal(t, SourceTemplate, brief.Source)
	assert.Equal(t, WhatsAppSquare, brief.ImageSpec)
	assert.Equal(t, []string{"15"}, brief.Entities.Prices)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
}

func TestEnhance_NoProvidersIsTemplate(t *testing.T) {
	brief := NewService(0).Enhance(context.Background(), Request{Text: "corte de cabelo R$ 40", Category: "beleza"})
	assert.Equal(t, CategoryBeauty, brief.Category)
	assert.Equal(t, DefaultStyle, brief.Style)
	assert.Equal(t, brief.StructuredPrompt, brief.EnhancedDescription)
	assert.Contains(t, brief.StructuredPrompt, "beauty product photography")
	assert.Contains(t, brief.StructuredPrompt, "Prices (R$): 40")
}

func TestEnhance_UsesFirstHealthyProvider(t *testing.T) {
	first := &stubProvider{name: "glm", err: errors.New("rate limited")}
	second := &stubProvider{name: "deepseek", reply: "A warm rustic poster with a pizza"}
	third := &stubProvider{name: "openai", reply: "unused"}

	brief := NewService(time.Second, first, second, third).Enhance(context.Background(), Request{Text: "pizza R$ 30", Category: "restaurant"})

	assert.Equal(t, "A warm rustic poster with a pizza", brief.EnhancedDescription)
	assert.Equal(t, "model:deepseek", brief.Source)
	assert.Equal(t, 0, third.calls)
}

func TestEnhance_ProviderTimeoutFallsBack(t *testing.T) {
	slow := &stubProvider{name: "glm", block: true}
	brief := NewService(20*time.Millisecond, slow).Enhance(context.Background(), Request{Text: "x"})
	assert.Equal(t, SourceTemplate, brief.Source)
}

func TestBreakerProvider_OpensAfterThreshold(t *testing.T) {
	inner := &stubProvider{name: "glm", err: errors.New("500")}
	p := WithBreaker(inner, BreakerSettings{FailureThreshold: 2, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := p.Complete(context.Background(), "x")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	_, err := p.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
}

type fakeChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, nil
}

func TestOpenAIProvider(t *testing.T) {
	chat := &fakeChat{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "brief"}}},
	}}
	p := &OpenAIProvider{name: "deepseek", client: chat, model: "deepseek-chat"}

	out, err := p.Complete(context.Background(), "brief text")
	require.NoError(t, err)
	assert.Equal(t, "brief", out)
	assert.Equal(t, "deepseek-chat", chat.req.Model)
	require.Len(t, chat.req.Messages, 2)
	assert.Equal(t, "brief text", chat.req.Messages[1].Content)

	chat.resp = openai.ChatCompletionResponse{}
	_, err = p.Complete(context.Background(), "brief text")
	assert.Error(t, err)
}
