package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid audio", ErrInvalidAudio, true},
		{"quota", fmt.Errorf("debit: %w", ErrQuotaExceeded), true},
		{"render", ErrRenderFailed, false},
		{"storage staged", AtStage(StageStore, ErrStorageFailed), false},
		{"unclassified", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestStageOf(t *testing.T) {
	err := fmt.Errorf("attempt 2: %w", AtStage(StageRender, Wrap(ErrRenderFailed, context.DeadlineExceeded)))

	assert.Equal(t, StageRender, StageOf(err))
	assert.True(t, errors.Is(err, ErrRenderFailed))
	assert.True(t, IsTimeout(err))
	assert.Equal(t, "", StageOf(errors.New("plain")))
	assert.Nil(t, AtStage(StageRender, nil))
}

func TestClass(t *testing.T) {
	assert.Equal(t, "invalid_audio", Class(AtStage(StageTranscribe, ErrInvalidAudio)))
	assert.Equal(t, "render_failed", Class(ErrRenderFailed))
	assert.Equal(t, "internal", Class(errors.New("x")))
	assert.Equal(t, "", Class(nil))
}
