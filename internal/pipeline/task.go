package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/queue"
	"github.com/google/uuid"
)

// TaskGenerate is the queue task type carrying one generation job.
const TaskGenerate = "generation.run"

type GeneratePayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// HandleTask adapts Process to the queue's handler contract.
func (o *Orchestrator) HandleTask(ctx context.Context, t *queue.Task) error {
	var p GeneratePayload
	if err := t.Decode(&p); err != nil {
		return queue.Discard(err)
	}
	if p.JobID == uuid.Nil {
		return queue.Discard(errors.New("payload has no job id"))
	}
	_, err := o.Process(ctx, p.JobID, t.Final())
	return err
}

// Enqueuer puts generation jobs on the durable queue.
type Enqueuer struct {
	q          *queue.RedisQueue
	maxRetries int
}

func NewEnqueuer(q *queue.RedisQueue, maxRetries int) *Enqueuer {
	return &Enqueuer{q: q, maxRetries: maxRetries}
}

func (e *Enqueuer) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	t, err := queue.NewTask(TaskGenerate, GeneratePayload{JobID: jobID}, e.maxRetries)
	if err != nil {
		return err
	}
	if err := e.q.Enqueue(ctx, t); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}
