package queue

import (
	"context"
	"errors"
	"fmt"
)

// Handler processes one delivery. Returning an error schedules a retry unless
// the task is out of attempts or the error wraps ErrDiscard.
type Handler func(ctx context.Context, t *Task) error

// ErrDiscard marks a failure that no retry can fix.
var ErrDiscard = errors.New("discard task")

func Discard(err error) error {
	return fmt.Errorf("%w: %w", ErrDiscard, err)
}

type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(taskType string, h Handler) {
	r.handlers[taskType] = h
}

func (r *Registry) Lookup(taskType string) (Handler, bool) {
	h, ok := r.handlers[taskType]
	return h, ok
}
