// Package storage persists rendered images and hands back a public reference.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/google/uuid"
)

const outputContentType = "image/jpeg"

// Backend is the single capability the store needs from an object store.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type Asset struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type Options struct {
	MaxDimension int
	Quality      int
	Timeout      time.Duration
}

type Store struct {
	backend Backend
	opts    Options
	now     func() time.Time
}

func NewStore(backend Backend, opts Options) *Store {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 1080
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}
	return &Store{backend: backend, opts: opts, now: time.Now}
}

// Upload optimizes the image for the messaging channel and persists it under
// a fresh key. Every failure is reported as apperr.ErrStorageFailed.
func (s *Store) Upload(ctx context.Context, data []byte, accountID uuid.UUID, contentType string) (*Asset, error) {
	if len(data) == 0 {
		return nil, apperr.Wrap(apperr.ErrStorageFailed, fmt.Errorf("empty %s payload", contentType))
	}

	optimized, size, err := Optimize(data, s.opts.MaxDimension, s.opts.Quality)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageFailed, err)
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	key := s.keyFor(accountID)
	if err := s.backend.Put(ctx, key, optimized, outputContentType); err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageFailed, err)
	}

	slog.Info("asset stored", "account_id", accountID.String(), "key", key,
		"original_bytes", len(data), "stored_bytes", len(optimized))

	return &Asset{
		URL:         s.backend.URL(key),
		Key:         key,
		Size:        int64(len(optimized)),
		ContentType: outputContentType,
		Width:       size.X,
		Height:      size.Y,
	}, nil
}

// Delete removes an asset. Missing keys are not an error; other failures are
// logged and returned for the caller to ignore if it wishes.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		slog.Warn("asset delete failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *Store) keyFor(accountID uuid.UUID) string {
	now := s.now().UTC()
	return fmt.Sprintf("generations/%s/%04d/%02d/%s.jpg", accountID, now.Year(), int(now.Month()), uuid.NewString())
}
