// Package pipeline runs one generation job through download, transcription,
// enhancement, rendering, storage and the quota commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/enhance"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/render"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/storage"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/transcribe"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageHint string) (*transcribe.Transcript, error)
}

type Enhancer interface {
	Enhance(ctx context.Context, req enhance.Request) *enhance.Brief
}

type Renderer interface {
	Render(ctx context.Context, brief *enhance.Brief) (*render.Result, error)
}

type AssetStore interface {
	Upload(ctx context.Context, data []byte, accountID uuid.UUID, contentType string) (*storage.Asset, error)
	Delete(ctx context.Context, key string) error
}

type Deps struct {
	DB          *gorm.DB
	Ledger      *ledger.Ledger
	Media       MediaFetcher
	Transcriber Transcriber
	Enhancer    Enhancer
	Renderer    Renderer
	Store       AssetStore
	Notifier    messaging.Notifier
	Catalog     *messaging.Catalog
}

type Options struct {
	// Lease bounds how long a claim blocks other workers from picking the job up.
	Lease         time.Duration
	MaxAttempts   int
	NotifyTimeout time.Duration
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeRetry     Outcome = "retry"
	OutcomeSkipped   Outcome = "skipped"
)

var errClaimLost = errors.New("job no longer held by this worker")

type Orchestrator struct {
	Deps
	opts Options
	now  func() time.Time
}

func New(d Deps, opts Options) *Orchestrator {
	if opts.Lease <= 0 {
		opts.Lease = 6 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 15 * time.Second
	}
	if d.Ledger == nil {
		d.Ledger = ledger.New()
	}
	if d.Catalog == nil {
		d.Catalog = messaging.NewCatalog()
	}
	return &Orchestrator{Deps: d, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// Process runs one attempt of a job. lastAttempt forces a transient failure to
// become terminal. An error is returned only when the caller should retry.
func (o *Orchestrator) Process(ctx context.Context, jobID uuid.UUID, lastAttempt bool) (Outcome, error) {
	claimed, err := o.claim(jobID)
	if err != nil {
		return OutcomeRetry, apperr.AtStage(apperr.StageClaim, err)
	}
	if !claimed {
		slog.Info("job not claimable, skipping delivery", "job_id", jobID.String())
		return OutcomeSkipped, nil
	}

	var job models.GenerationJob
	if err := o.DB.First(&job, "id = ?", jobID).Error; err != nil {
		return OutcomeRetry, apperr.AtStage(apperr.StageClaim, err)
	}
	var account models.Account
	if err := o.DB.First(&account, "id = ?", job.AccountID).Error; err != nil {
		return OutcomeRetry, apperr.AtStage(apperr.StageClaim, err)
	}

	final := lastAttempt || job.Attempts >= o.opts.MaxAttempts
	log := slog.With("job_id", job.ID.String(), "account_id", account.ID.String(), "attempt", job.Attempts)

	if !o.Ledger.CanGenerate(&account) {
		return o.fail(ctx, &job, &account, apperr.AtStage(apperr.StageClaim, apperr.ErrQuotaExceeded))
	}

	asset, err := o.run(ctx, &job, &account)
	if err == nil {
		err = o.commit(&job, &account, asset)
		if err != nil {
			o.discardAsset(asset, &job)
		}
	}

	switch {
	case err == nil:
		log.Info("generation completed", "image_url", asset.URL, "processing_ms", job.ProcessingMs)
		metrics.GenerationJobs.WithLabelValues(models.JobCompleted, "").Inc()
		metrics.CreditsDebited.Inc()
		o.notifySuccess(ctx, &job, &account, asset)
		return OutcomeCompleted, nil
	case errors.Is(err, errClaimLost):
		log.Warn("claim lost before commit", "error", err)
		return OutcomeSkipped, nil
	case apperr.IsPermanent(err) || final:
		return o.fail(ctx, &job, &account, err)
	default:
		return o.release(&job, err)
	}
}

// claim flips pending to processing, or takes over a processing job whose
// lease was released or has expired.
func (o *Orchestrator) claim(jobID uuid.UUID) (bool, error) {
	now := o.now()
	res := o.DB.Model(&models.GenerationJob{}).
		Where("id = ? AND (status = ? OR (status = ? AND (lease_expires_at IS NULL OR lease_expires_at < ?)))",
			jobID, models.JobPending, models.JobProcessing, now).
		Updates(map[string]interface{}{
			"status":           models.JobProcessing,
			"attempts":         gorm.Expr("attempts + 1"),
			"lease_expires_at": now.Add(o.opts.Lease),
			"started_at":       gorm.Expr("COALESCE(started_at, ?)", now),
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (o *Orchestrator) run(ctx context.Context, job *models.GenerationJob, account *models.Account) (*storage.Asset, error) {
	prompt := job.PromptText()
	if job.InputKind == models.InputAudio && prompt == "" {
		text, err := o.transcribeAudio(ctx, job, account)
		if err != nil {
			return nil, err
		}
		prompt = text
	}

	start := time.Now()
	brief := o.Enhancer.Enhance(ctx, enhance.Request{
		Text:         prompt,
		Category:     account.BusinessCategory,
		Style:        job.Style,
		BusinessName: account.BusinessName,
	})
	observe(apperr.StageEnhance, start)
	if brief == nil || brief.EnhancedDescription == "" {
		slog.Error("enhancer returned an empty brief", "job_id", job.ID.String(), "stage", apperr.StageEnhance)
		return nil, apperr.AtStage(apperr.StageEnhance, apperr.ErrEnhancementFailed)
	}

	start = time.Now()
	rendered, err := o.Renderer.Render(ctx, brief)
	observe(apperr.StageRender, start)
	if err != nil {
		return nil, apperr.AtStage(apperr.StageRender, err)
	}

	start = time.Now()
	asset, err := o.Store.Upload(ctx, rendered.Data, account.ID, rendered.ContentType)
	observe(apperr.StageStore, start)
	if err != nil {
		return nil, apperr.AtStage(apperr.StageStore, err)
	}

	job.Metadata = mergeMetadata(job.Metadata, map[string]interface{}{
		"prompt_data": brief,
		"image_specs": map[string]interface{}{
			"width":        asset.Width,
			"height":       asset.Height,
			"size":         asset.Size,
			"content_type": asset.ContentType,
			"model":        rendered.ModelID,
			"render_ms":    rendered.Duration.Milliseconds(),
		},
	})
	return asset, nil
}

// transcribeAudio downloads and transcribes the voice note, then persists the
// prompt so later attempts skip both steps.
func (o *Orchestrator) transcribeAudio(ctx context.Context, job *models.GenerationJob, account *models.Account) (string, error) {
	if o.Media == nil || o.Transcriber == nil {
		return "", apperr.AtStage(apperr.StageTranscribe, fmt.Errorf("%w: audio input not configured", apperr.ErrTranscriptionFailed))
	}
	if job.MediaURL == "" {
		return "", apperr.AtStage(apperr.StageDownload, fmt.Errorf("%w: job has no media url", apperr.ErrInvalidAudio))
	}

	start := time.Now()
	audio, _, err := o.Media.Fetch(ctx, job.MediaURL)
	observe(apperr.StageDownload, start)
	if err != nil {
		return "", apperr.AtStage(apperr.StageDownload, apperr.Wrap(apperr.ErrMediaDownloadFailed, err))
	}

	start = time.Now()
	t, err := o.Transcriber.Transcribe(ctx, audio, account.Locale)
	observe(apperr.StageTranscribe, start)
	if err != nil {
		return "", apperr.AtStage(apperr.StageTranscribe, err)
	}

	metadata := mergeMetadata(job.Metadata, map[string]interface{}{
		"transcription": map[string]interface{}{
			"text":             t.Text,
			"language":         t.Language,
			"duration_seconds": t.DurationSeconds,
			"model":            t.ModelID,
			"transcribed_at":   o.now(),
		},
		"audio_info": t.Audio,
	})
	res := o.DB.Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", job.ID, models.JobProcessing).
		Updates(map[string]interface{}{"prompt": t.Text, "metadata": metadata, "updated_at": o.now()})
	if res.Error != nil {
		return "", apperr.AtStage(apperr.StageTranscribe, res.Error)
	}
	if res.RowsAffected == 0 {
		return "", errClaimLost
	}
	job.Prompt = &t.Text
	job.Metadata = metadata

	o.send(ctx, job, messaging.Outbound{
		To:   job.ReplyTo,
		Body: o.Catalog.Text(account.Locale, messaging.MsgTranscribed, t.Text),
	})
	return t.Text, nil
}

// commit flips the job to completed and debits one credit in one transaction.
func (o *Orchestrator) commit(job *models.GenerationJob, account *models.Account, asset *storage.Asset) error {
	now := o.now()
	var started time.Time
	if job.StartedAt != nil {
		started = *job.StartedAt
	} else {
		started = now
	}
	elapsed := now.Sub(started).Milliseconds()
	metadata := mergeMetadata(job.Metadata, map[string]interface{}{"completed_at": now})

	start := time.Now()
	err := o.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GenerationJob{}).
			Where("id = ? AND status = ?", job.ID, models.JobProcessing).
			Updates(map[string]interface{}{
				"status":           models.JobCompleted,
				"credit_cost":      1,
				"image_url":        asset.URL,
				"storage_key":      asset.Key,
				"file_size":        asset.Size,
				"processing_ms":    elapsed,
				"completed_at":     now,
				"lease_expires_at": nil,
				"metadata":         metadata,
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errClaimLost
		}
		return o.Ledger.Debit(tx, account.ID)
	})
	observe(apperr.StageCommit, start)
	if err != nil {
		return apperr.AtStage(apperr.StageCommit, err)
	}

	job.Status = models.JobCompleted
	job.CreditCost = 1
	job.ImageURL = asset.URL
	job.StorageKey = asset.Key
	job.FileSize = asset.Size
	job.ProcessingMs = elapsed
	job.CompletedAt = &now
	job.Metadata = metadata
	account.CreditsUsed++
	return nil
}

// fail moves the job to its terminal failed state with no credit charged.
func (o *Orchestrator) fail(ctx context.Context, job *models.GenerationJob, account *models.Account, cause error) (Outcome, error) {
	stage := apperr.StageOf(cause)
	class := apperr.Class(cause)
	now := o.now()
	metadata := mergeMetadata(job.Metadata, map[string]interface{}{
		"failed_at":   now,
		"error_class": class,
	})

	res := o.DB.Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", job.ID, models.JobProcessing).
		Updates(map[string]interface{}{
			"status":           models.JobFailed,
			"credit_cost":      0,
			"failed_stage":     stage,
			"error_message":    cause.Error(),
			"lease_expires_at": nil,
			"metadata":         metadata,
			"updated_at":       now,
		})
	if res.Error != nil {
		return OutcomeRetry, fmt.Errorf("mark job failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return OutcomeSkipped, nil
	}
	job.Status = models.JobFailed
	job.CreditCost = 0
	job.FailedStage = stage
	job.ErrorMessage = cause.Error()
	job.Metadata = metadata

	slog.Error("generation failed", "job_id", job.ID.String(), "account_id", account.ID.String(),
		"stage", stage, "error", cause.Error(), "error_class", class, "attempt", job.Attempts)
	metrics.GenerationJobs.WithLabelValues(models.JobFailed, class).Inc()
	if !errors.Is(cause, apperr.ErrQuotaExceeded) {
		captureError(cause, job, stage)
	}

	o.notifyFailure(ctx, job, account, cause)
	return OutcomeFailed, nil
}

// release gives the lease back so the queue's next delivery can claim the job.
func (o *Orchestrator) release(job *models.GenerationJob, cause error) (Outcome, error) {
	stage := apperr.StageOf(cause)
	metadata := appendAttemptError(job.Metadata, attemptError{
		Attempt: job.Attempts,
		Stage:   stage,
		Class:   apperr.Class(cause),
		Error:   cause.Error(),
		At:      o.now(),
	})
	err := o.DB.Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", job.ID, models.JobProcessing).
		Updates(map[string]interface{}{"lease_expires_at": nil, "metadata": metadata, "updated_at": o.now()}).Error
	if err != nil {
		slog.Error("release lease failed", "job_id", job.ID.String(), "error", err)
	}
	job.Metadata = metadata

	slog.Warn("generation attempt failed, will retry", "job_id", job.ID.String(), "stage", stage,
		"error", cause.Error(), "attempt", job.Attempts, "timeout", apperr.IsTimeout(cause))
	metrics.Retries.WithLabelValues(stage).Inc()
	return OutcomeRetry, cause
}

func (o *Orchestrator) discardAsset(asset *storage.Asset, job *models.GenerationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.NotifyTimeout)
	defer cancel()
	if err := o.Store.Delete(ctx, asset.Key); err != nil {
		slog.Warn("orphaned asset not deleted", "job_id", job.ID.String(), "key", asset.Key, "error", err)
	}
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func captureError(err error, job *models.GenerationJob, stage string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job_id", job.ID.String())
		scope.SetTag("account_id", job.AccountID.String())
		scope.SetTag("stage", stage)
		sentry.CaptureException(err)
	})
}
