// Package transcribe turns voice notes into text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"golang.org/x/text/language"
)

const (
	TargetSampleRate = 16000
	TargetChannels   = 1
	TargetCodec      = "pcm_s16le"
)

// AudioInfo is what probing learned about an input stream.
type AudioInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	HasAudio        bool    `json:"has_audio"`
	Codec           string  `json:"codec"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	Format          string  `json:"format"`
}

// IsTarget reports whether the audio is already 16 kHz mono PCM WAV.
func (i AudioInfo) IsTarget() bool {
	return strings.Contains(i.Format, "wav") &&
		i.Codec == TargetCodec &&
		i.SampleRate == TargetSampleRate &&
		i.Channels == TargetChannels
}

// AudioCodec inspects and converts audio.
type AudioCodec interface {
	Probe(ctx context.Context, audio []byte) (AudioInfo, error)
	Normalize(ctx context.Context, audio []byte) ([]byte, error)
}

// SpeechBackend is the speech-to-text model.
type SpeechBackend interface {
	Transcribe(ctx context.Context, wav []byte, language string) (*Transcript, error)
}

type Transcript struct {
	Text            string    `json:"text"`
	Language        string    `json:"language"`
	DurationSeconds float64   `json:"duration_seconds"`
	ModelID         string    `json:"model_id"`
	Audio           AudioInfo `json:"audio"`
}

type Service struct {
	codec      AudioCodec
	backend    SpeechBackend
	maxSeconds float64
	timeout    time.Duration
}

func NewService(codec AudioCodec, backend SpeechBackend, maxSeconds float64, timeout time.Duration) *Service {
	return &Service{codec: codec, backend: backend, maxSeconds: maxSeconds, timeout: timeout}
}

// Transcribe validates, normalizes and transcribes audio. Invalid input is
// rejected with apperr.ErrInvalidAudio before the speech backend is called.
func (s *Service) Transcribe(ctx context.Context, audio []byte, languageHint string) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", apperr.ErrInvalidAudio)
	}

	info, err := s.withTimeoutProbe(ctx, audio)
	if err != nil {
		return nil, probeFailure(err)
	}
	if !info.HasAudio {
		return nil, fmt.Errorf("%w: no audio stream", apperr.ErrInvalidAudio)
	}
	if s.maxSeconds > 0 && info.DurationSeconds > s.maxSeconds {
		return nil, fmt.Errorf("%w: duration %.1fs exceeds %.0fs", apperr.ErrInvalidAudio, info.DurationSeconds, s.maxSeconds)
	}

	wav := audio
	if !info.IsTarget() {
		wav, err = s.withTimeoutNormalize(ctx, audio)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrAudioConversionFailed, err)
		}
	}

	lang := baseLanguage(languageHint)
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	t, err := s.backend.Transcribe(callCtx, wav, lang)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTranscriptionFailed, err)
	}
	if strings.TrimSpace(t.Text) == "" {
		return nil, fmt.Errorf("%w: empty transcript", apperr.ErrTranscriptionFailed)
	}

	t.Text = strings.TrimSpace(t.Text)
	if t.Language == "" {
		t.Language = lang
	}
	if t.DurationSeconds <= 0 {
		t.DurationSeconds = info.DurationSeconds
	}
	t.Audio = info

	slog.Info("audio transcribed", "model", t.ModelID, "language", t.Language,
		"duration_s", t.DurationSeconds, "latency_ms", time.Since(start).Milliseconds())
	return t, nil
}

func (s *Service) withTimeoutProbe(ctx context.Context, audio []byte) (AudioInfo, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	info, err := s.codec.Probe(callCtx, audio)
	// A killed ffprobe reports only its exit status.
	if err != nil && callCtx.Err() != nil && !errors.Is(err, callCtx.Err()) {
		err = fmt.Errorf("%w: %w", err, callCtx.Err())
	}
	return info, err
}

// probeFailure classifies a probe error. Only input ffprobe could not decode
// is invalid audio; deadlines and a missing or unrunnable binary are retried.
func probeFailure(err error) error {
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, exec.ErrNotFound),
		errors.As(err, &pathErr):
		return apperr.Wrap(apperr.ErrAudioConversionFailed, err)
	default:
		return apperr.Wrap(apperr.ErrInvalidAudio, err)
	}
}

func (s *Service) withTimeoutNormalize(ctx context.Context, audio []byte) ([]byte, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.codec.Normalize(callCtx, audio)
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// baseLanguage reduces a locale such as "pt-BR" to the ISO 639-1 code the
// speech model expects.
func baseLanguage(hint string) string {
	if hint == "" {
		return "pt"
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return "pt"
	}
	base, _ := tag.Base()
	return base.String()
}
