// Package apperr holds the error classes shared by the generation pipeline
// and the inbound webhook.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidAudio          = errors.New("invalid audio")
	ErrAudioConversionFailed = errors.New("audio conversion failed")
	ErrTranscriptionFailed   = errors.New("transcription failed")
	ErrEnhancementFailed     = errors.New("enhancement failed")
	ErrRenderFailed          = errors.New("render failed")
	ErrStorageFailed         = errors.New("storage failed")
	ErrMediaDownloadFailed   = errors.New("media download failed")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrDuplicateDelivery     = errors.New("duplicate delivery")
)

// Pipeline stage names recorded on failed jobs and in logs.
const (
	StageClaim      = "claim"
	StageDownload   = "download"
	StageTranscribe = "transcribe"
	StageEnhance    = "enhance"
	StageRender     = "render"
	StageStore      = "store"
	StageCommit     = "commit"
	StageNotify     = "notify"
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AtStage wraps err with its stage. A nil err stays nil.
func AtStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// Wrap attaches a class sentinel to a concrete cause so both match errors.Is.
func Wrap(class error, cause error) error {
	if cause == nil {
		return class
	}
	return fmt.Errorf("%w: %w", class, cause)
}

// StageOf returns the stage recorded on err, or "" if none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidAudio) || errors.Is(err, ErrQuotaExceeded)
}

// IsTimeout reports whether err came from an exceeded deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// Class names the taxonomy class of err for metrics and user messages.
func Class(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAudio):
		return "invalid_audio"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrAudioConversionFailed):
		return "audio_conversion_failed"
	case errors.Is(err, ErrTranscriptionFailed):
		return "transcription_failed"
	case errors.Is(err, ErrEnhancementFailed):
		return "enhancement_failed"
	case errors.Is(err, ErrRenderFailed):
		return "render_failed"
	case errors.Is(err, ErrStorageFailed):
		return "storage_failed"
	case errors.Is(err, ErrMediaDownloadFailed):
		return "media_download_failed"
	default:
		return "internal"
	}
}
