// Package queue is a durable Redis-backed task queue with retries, a dead
// letter list and a worker pool.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is one unit of queued work. Retries counts failed attempts so far.
type Task struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`

	raw string
}

func NewTask(taskType string, payload interface{}, maxRetries int) (*Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode task payload: %w", err)
	}
	return &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Payload:    body,
		MaxRetries: maxRetries,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Final reports whether this delivery is the last one the queue will make.
func (t *Task) Final() bool {
	return t.Retries >= t.MaxRetries
}

// Attempt is the 1-based attempt number of this delivery.
func (t *Task) Attempt() int {
	return t.Retries + 1
}

func (t *Task) Decode(v interface{}) error {
	return json.Unmarshal(t.Payload, v)
}

func (t *Task) encode() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTask(raw string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	t.raw = raw
	return &t, nil
}
