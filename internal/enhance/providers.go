package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

const systemPrompt = `You write image-generation briefs for small-business promotional posts sent over WhatsApp.
Rewrite the brief you receive as one detailed paragraph describing layout, imagery, colors and the exact on-image text.
Keep every price, discount, date and phone number exactly as given. Reply with the description only.`

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider talks to any OpenAI-compatible chat endpoint (GLM, DeepSeek, OpenAI).
type OpenAIProvider struct {
	name   string
	client chatClient
	model  string
}

func NewOpenAIProvider(name, apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{name: name, client: openai.NewClientWithConfig(cfg), model: model}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   600,
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(p.name + ": no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

type BreakerSettings struct {
	FailureThreshold uint32
	Cooldown         time.Duration
}

// BreakerProvider stops calling a provider after repeated failures until the cooldown passes.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[string]
}

func WithBreaker(p Provider, s BreakerSettings) *BreakerProvider {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerProvider{inner: p, breaker: gobreaker.NewCircuitBreaker[string](settings)}
}

func (b *BreakerProvider) Name() string {
	return b.inner.Name()
}

func (b *BreakerProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return b.breaker.Execute(func() (string, error) {
		return b.inner.Complete(ctx, prompt)
	})
}

func (b *BreakerProvider) State() gobreaker.State {
	return b.breaker.State()
}
