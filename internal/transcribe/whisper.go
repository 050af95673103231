package transcribe

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type audioTranscriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperBackend calls the OpenAI audio transcription endpoint.
type WhisperBackend struct {
	client audioTranscriber
	model  string
}

func NewWhisperBackend(apiKey, baseURL, model string) *WhisperBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &WhisperBackend{client: openai.NewClientWithConfig(cfg), model: model}
}

func (w *WhisperBackend) Transcribe(ctx context.Context, wav []byte, language string) (*Transcript, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(wav),
		FilePath: "audio.wav",
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return &Transcript{
		Text:            resp.Text,
		Language:        resp.Language,
		DurationSeconds: resp.Duration,
		ModelID:         w.model,
	}, nil
}
