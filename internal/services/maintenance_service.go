package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const retentionBatch = 1000

// AssetRemover deletes stored images by key.
type AssetRemover interface {
	Delete(ctx context.Context, key string) error
}

type MaintenanceConfig struct {
	Retention         time.Duration
	StalePendingAfter time.Duration
	// ReleasedStaleAfter bounds how long a released job may wait for its
	// retry delivery. It should exceed the queue's longest backoff.
	ReleasedStaleAfter time.Duration
	NotifyTimeout      time.Duration
}

// MaintenanceService holds the periodic jobs run by the worker's schedule table.
type MaintenanceService struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	assets   AssetRemover
	enqueuer JobEnqueuer
	catalog  *messaging.Catalog
	out      *outbox
	cfg      MaintenanceConfig
}

func NewMaintenanceService(db *gorm.DB, l *ledger.Ledger, assets AssetRemover, enqueuer JobEnqueuer, notifier messaging.Notifier, cfg MaintenanceConfig) *MaintenanceService {
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	if cfg.StalePendingAfter <= 0 {
		cfg.StalePendingAfter = 5 * time.Minute
	}
	if cfg.ReleasedStaleAfter <= 0 {
		cfg.ReleasedStaleAfter = 3 * cfg.StalePendingAfter
	}
	return &MaintenanceService{
		db:       db,
		ledger:   l,
		assets:   assets,
		enqueuer: enqueuer,
		catalog:  messaging.NewCatalog(),
		out:      &outbox{db: db, notifier: notifier, timeout: cfg.NotifyTimeout},
		cfg:      cfg,
	}
}

// SweepRetention deletes completed jobs older than the retention window,
// together with their stored images, in batches.
func (s *MaintenanceService) SweepRetention(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.Retention)
	removed := 0
	for {
		var batch []models.GenerationJob
		err := s.db.Select("id", "storage_key").
			Where("status = ? AND created_at < ?", models.JobCompleted, cutoff).
			Order("created_at ASC").
			Limit(retentionBatch).
			Find(&batch).Error
		if err != nil {
			return removed, err
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]uuid.UUID, 0, len(batch))
		for _, job := range batch {
			ids = append(ids, job.ID)
			if job.StorageKey == "" || s.assets == nil {
				continue
			}
			if err := s.assets.Delete(ctx, job.StorageKey); err != nil {
				slog.Warn("retention: asset delete failed", "job_id", job.ID.String(), "key", job.StorageKey, "error", err)
			}
		}
		if err := s.db.Where("id IN ?", ids).Delete(&models.GenerationJob{}).Error; err != nil {
			return removed, err
		}
		removed += len(ids)
		if len(batch) < retentionBatch || ctx.Err() != nil {
			break
		}
	}
	if removed > 0 {
		slog.Info("retention sweep finished", "jobs_removed", removed)
	}
	return removed, nil
}

// RequeueStale re-enqueues jobs that never reached a worker, processing jobs
// whose lease ran out, and released jobs whose retry delivery never arrived.
// A job requeued within the last StalePendingAfter is skipped.
func (s *MaintenanceService) RequeueStale(ctx context.Context, now time.Time) (int, error) {
	pendingCutoff := now.Add(-s.cfg.StalePendingAfter)
	var ids []uuid.UUID
	err := s.db.Model(&models.GenerationJob{}).
		Where("((status = ? AND created_at < ?) OR (status = ? AND lease_expires_at < ?) OR (status = ? AND lease_expires_at IS NULL AND updated_at < ?))",
			models.JobPending, pendingCutoff,
			models.JobProcessing, now,
			models.JobProcessing, now.Add(-s.cfg.ReleasedStaleAfter)).
		Where("(enqueued_at IS NULL OR enqueued_at < ?)", pendingCutoff).
		Order("created_at ASC").
		Limit(500).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, id := range ids {
		if err := s.enqueuer.Enqueue(ctx, id); err != nil {
			slog.Error("requeue stale job failed", "job_id", id.String(), "error", err)
			continue
		}
		err := s.db.Model(&models.GenerationJob{}).Where("id = ?", id).
			UpdateColumn("enqueued_at", now).Error
		if err != nil {
			slog.Warn("record requeue time failed", "job_id", id.String(), "error", err)
		}
		requeued++
	}
	if requeued > 0 {
		slog.Warn("stale jobs requeued", "count", requeued)
	}
	return requeued, nil
}

// LowCreditAlerts warns paid accounts with less than a fifth of their credits
// left on every verified number.
func (s *MaintenanceService) LowCreditAlerts(ctx context.Context) (int, error) {
	var accounts []models.Account
	err := s.db.Where("plan_tier <> ? AND subscription_status = ? AND credits_used < credits_limit AND (credits_limit - credits_used) * 5 < credits_limit",
		models.PlanTrial, models.SubscriptionActive).
		Preload("Bindings", "status = ?", models.BindingVerified).
		Find(&accounts).Error
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range accounts {
		a := &accounts[i]
		body := s.catalog.Text(a.Locale, messaging.MsgLowCredits, s.ledger.Remaining(a))
		for _, b := range a.Bindings {
			if err := s.out.send(ctx, &a.ID, nil, messaging.Outbound{To: b.Phone, Body: body}); err == nil {
				sent++
			}
		}
	}
	return sent, nil
}
