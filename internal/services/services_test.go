package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, jobID)
	return nil
}

func (f *fakeEnqueuer) enqueued() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.ids...)
}

type fakeMailer struct {
	to []string
}

func (m *fakeMailer) Send(ctx context.Context, toEmail, toName, subject, plainText string) error {
	m.to = append(m.to, toEmail)
	return nil
}

type fakeAssets struct {
	deleted []string
}

func (a *fakeAssets) Delete(ctx context.Context, key string) error {
	a.deleted = append(a.deleted, key)
	if key == "broken" {
		return errors.New("gone")
	}
	return nil
}
