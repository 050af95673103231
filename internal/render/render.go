// Package render produces the promotional image for a brief.
package render

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/enhance"
)

type Image struct {
	Data        []byte
	ContentType string
	ModelID     string
}

// Backend is any image generator.
type Backend interface {
	Render(ctx context.Context, brief *enhance.Brief) (*Image, error)
}

type Result struct {
	*Image
	Duration time.Duration
}

type Service struct {
	backend Backend
	timeout time.Duration
}

// NewService bounds each render call by timeout, separate from the job timeout.
func NewService(backend Backend, timeout time.Duration) *Service {
	return &Service{backend: backend, timeout: timeout}
}

func (s *Service) Render(ctx context.Context, brief *enhance.Brief) (*Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	img, err := s.backend.Render(ctx, brief)
	elapsed := time.Since(start)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrRenderFailed, err)
	}
	if img == nil || len(img.Data) == 0 {
		return nil, apperr.Wrap(apperr.ErrRenderFailed, errors.New("backend returned no image"))
	}

	slog.Info("image rendered", "model", img.ModelID, "bytes", len(img.Data), "latency_ms", elapsed.Milliseconds())
	return &Result{Image: img, Duration: elapsed}, nil
}
