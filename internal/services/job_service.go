package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/enhance"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type JobFilter struct {
	Status string
	Start  *time.Time
	End    *time.Time
	Search string
	Page   int
	Limit  int
}

type JobPage struct {
	Jobs       []models.GenerationJob
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

type JobService struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	enqueuer JobEnqueuer
}

func NewJobService(db *gorm.DB, l *ledger.Ledger, enqueuer JobEnqueuer) *JobService {
	return &JobService{db: db, ledger: l, enqueuer: enqueuer}
}

// CreateJob accepts a generation from the account-facing API. The quota is
// prechecked here; the credit is only charged when the job completes.
func (s *JobService) CreateJob(ctx context.Context, accountID uuid.UUID, prompt, style string) (*models.GenerationJob, error) {
	var account models.Account
	if err := s.db.First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, err
	}
	if !s.ledger.CanGenerate(&account) {
		return nil, apperr.ErrQuotaExceeded
	}

	text := strings.TrimSpace(prompt)
	job := &models.GenerationJob{
		AccountID: accountID,
		InputKind: models.InputAPI,
		Prompt:    &text,
		Style:     enhance.NormalizeStyle(style),
		Status:    models.JobPending,
	}
	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.enqueuer.Enqueue(ctx, job.ID); err != nil {
		slog.Error("enqueue failed, job left pending", "job_id", job.ID.String(), "error", err)
	}
	return job, nil
}

func (s *JobService) GetJob(accountID, jobID uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := s.db.Where("id = ? AND account_id = ?", jobID, accountID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the account's jobs newest first.
func (s *JobService) ListJobs(accountID uuid.UUID, f JobFilter) (*JobPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}

	q := s.db.Model(&models.GenerationJob{}).Where("account_id = ?", accountID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Start != nil {
		q = q.Where("created_at >= ?", *f.Start)
	}
	if f.End != nil {
		q = q.Where("created_at < ?", *f.End)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		q = q.Where("LOWER(prompt) LIKE ?", "%"+strings.ToLower(term)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var jobs []models.GenerationJob
	err := q.Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}

	return &JobPage{
		Jobs:       jobs,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(f.Limit))),
	}, nil
}
