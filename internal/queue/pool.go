package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/metrics"
)

type PoolConfig struct {
	Workers         int
	JobTimeout      time.Duration
	PollTimeout     time.Duration
	PromoteInterval time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

func (c *PoolConfig) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffCap < c.BackoffBase {
		c.BackoffCap = c.BackoffBase
	}
}

type PoolStats struct {
	Acked   int64 `json:"acked"`
	Retried int64 `json:"retried"`
	Buried  int64 `json:"buried"`
}

// Pool runs a fixed number of workers against one queue.
type Pool struct {
	q   *RedisQueue
	reg *Registry
	cfg PoolConfig

	acked   atomic.Int64
	retried atomic.Int64
	buried  atomic.Int64
}

func NewPool(q *RedisQueue, reg *Registry, cfg PoolConfig) *Pool {
	cfg.withDefaults()
	return &Pool{q: q, reg: reg, cfg: cfg}
}

// Run blocks until ctx is cancelled and all in-flight tasks have finished.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.promoteLoop(ctx)
	}()

	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}

	slog.Info("worker pool started", "workers", p.cfg.Workers)
	wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Acked:   p.acked.Load(),
		Retried: p.retried.Load(),
		Buried:  p.buried.Load(),
	}
}

func (p *Pool) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PromoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n, err := p.q.PromoteDue(ctx, now); err != nil {
				if ctx.Err() == nil {
					slog.Warn("promote delayed tasks failed", "error", err)
				}
			} else if n > 0 {
				slog.Debug("promoted delayed tasks", "count", n)
			}
		}
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	for ctx.Err() == nil {
		t, err := p.q.Dequeue(ctx, p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("dequeue failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if t == nil {
			continue
		}
		p.process(ctx, t)
	}
}

// process runs one delivery. The handler context is detached from shutdown so
// a stage already in flight completes; JobTimeout still bounds it.
func (p *Pool) process(ctx context.Context, t *Task) {
	bookkeeping := context.WithoutCancel(ctx)
	log := slog.With("task_id", t.ID, "task_type", t.Type, "attempt", t.Attempt())

	h, ok := p.reg.Lookup(t.Type)
	if !ok {
		p.bury(bookkeeping, t, fmt.Errorf("no handler for task type %q", t.Type))
		return
	}

	jobCtx, cancel := context.WithTimeout(bookkeeping, p.cfg.JobTimeout)
	err := runHandler(jobCtx, h, t)
	cancel()

	switch {
	case err == nil:
		if ackErr := p.q.Ack(bookkeeping, t); ackErr != nil {
			log.Error("ack failed", "error", ackErr)
		}
		p.acked.Add(1)
		metrics.QueueTasks.WithLabelValues("acked").Inc()
	case errors.Is(err, ErrDiscard) || t.Final():
		log.Warn("task exhausted", "error", err)
		p.bury(bookkeeping, t, err)
	default:
		delay := Backoff(t.Retries, p.cfg.BackoffBase, p.cfg.BackoffCap)
		log.Info("task will retry", "error", err, "delay", delay.String())
		if rErr := p.q.Retry(bookkeeping, t, delay, err); rErr != nil {
			log.Error("retry scheduling failed", "error", rErr)
			return
		}
		p.retried.Add(1)
		metrics.QueueTasks.WithLabelValues("retried").Inc()
	}
}

func (p *Pool) bury(ctx context.Context, t *Task, cause error) {
	if err := p.q.Bury(ctx, t, cause); err != nil {
		slog.Error("bury failed", "task_id", t.ID, "error", err)
		return
	}
	p.buried.Add(1)
	metrics.QueueTasks.WithLabelValues("buried").Inc()
}

func runHandler(ctx context.Context, h Handler, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, t)
}

// Backoff returns base * 2^retries, capped.
func Backoff(retries int, base, ceiling time.Duration) time.Duration {
	d := base
	for i := 0; i < retries; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
