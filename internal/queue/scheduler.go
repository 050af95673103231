package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is one periodic maintenance entry.
type Schedule struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

func NewScheduler(schedules []Schedule, timeout time.Duration) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	s := &Scheduler{cron: c, timeout: timeout}
	for _, sc := range schedules {
		sc := sc
		if _, err := c.AddFunc(sc.Spec, func() { s.run(sc) }); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sc.Name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) run(sc Schedule) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := sc.Run(ctx); err != nil {
		slog.Error("scheduled task failed", "schedule", sc.Name, "error", err)
		return
	}
	slog.Debug("scheduled task done", "schedule", sc.Name, "latency_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new runs and waits for running ones.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
