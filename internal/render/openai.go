package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/enhance"
	openai "github.com/sashabaranov/go-openai"
)

const maxImagePromptRunes = 3800

type imageClient interface {
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
}

// OpenAIBackend renders through the OpenAI image generation endpoint.
type OpenAIBackend struct {
	client imageClient
	model  string
}

func NewOpenAIBackend(apiKey, baseURL, model string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAIBackend) Render(ctx context.Context, brief *enhance.Brief) (*Image, error) {
	prompt := []rune(brief.EnhancedDescription)
	if len(prompt) > maxImagePromptRunes {
		prompt = prompt[:maxImagePromptRunes]
	}

	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         string(prompt),
		Model:          o.model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("image generation returned no data")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return &Image{Data: data, ContentType: "image/png", ModelID: o.model}, nil
}
