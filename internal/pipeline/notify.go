package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/storage"
	"github.com/getsentry/sentry-go"
)

func (o *Orchestrator) notifySuccess(ctx context.Context, job *models.GenerationJob, account *models.Account, asset *storage.Asset) {
	remaining := o.Ledger.Remaining(account)
	o.notifyTerminal(ctx, job, messaging.Outbound{
		To:       job.ReplyTo,
		Body:     o.Catalog.Text(account.Locale, messaging.MsgSuccess, job.PromptText(), asset.URL, remaining),
		MediaURL: asset.URL,
	})
}

func (o *Orchestrator) notifyFailure(ctx context.Context, job *models.GenerationJob, account *models.Account, cause error) {
	o.notifyTerminal(ctx, job, messaging.Outbound{
		To:   job.ReplyTo,
		Body: o.Catalog.Text(account.Locale, failureMessage(job, cause)),
	})
}

func failureMessage(job *models.GenerationJob, cause error) messaging.MessageID {
	switch {
	case errors.Is(cause, apperr.ErrQuotaExceeded):
		return messaging.MsgNoCredits
	case job.InputKind == models.InputAudio && job.PromptText() == "":
		return messaging.MsgFailedAudio
	default:
		return messaging.MsgFailed
	}
}

// notifyTerminal sends at most one terminal message per job. The notified_at
// guard is set before sending, so a crash loses the message rather than doubling it.
func (o *Orchestrator) notifyTerminal(ctx context.Context, job *models.GenerationJob, msg messaging.Outbound) {
	if job.ReplyTo == "" {
		return
	}
	now := o.now()
	res := o.DB.Model(&models.GenerationJob{}).
		Where("id = ? AND notified_at IS NULL", job.ID).
		Update("notified_at", now)
	if res.Error != nil {
		slog.Error("notification guard failed", "job_id", job.ID.String(), "stage", apperr.StageNotify, "error", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		return
	}
	job.NotifiedAt = &now

	if err := o.send(ctx, job, msg); err != nil {
		job.Metadata = mergeMetadata(job.Metadata, map[string]interface{}{
			"notification_error": map[string]interface{}{"error": err.Error(), "at": now},
		})
		if uerr := o.DB.Model(&models.GenerationJob{}).Where("id = ?", job.ID).
			Update("metadata", job.Metadata).Error; uerr != nil {
			slog.Error("record notification error failed", "job_id", job.ID.String(), "error", uerr)
		}
	}
}

// send delivers one outbound message and records it. Failures never propagate
// past the returned error; callers only use it for diagnostics.
func (o *Orchestrator) send(ctx context.Context, job *models.GenerationJob, msg messaging.Outbound) error {
	if msg.To == "" || o.Notifier == nil {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.NotifyTimeout)
	defer cancel()

	sid, err := o.Notifier.Send(sendCtx, msg)

	jobID := job.ID
	accountID := job.AccountID
	record := models.MessageRecord{
		Direction:   models.DirectionOutbound,
		AccountID:   &accountID,
		JobID:       &jobID,
		ToAddress:   msg.To,
		Body:        msg.Body,
		MediaURL:    msg.MediaURL,
		MessageType: outboundType(msg),
		Status:      models.OutboundSent,
	}
	if sid != "" {
		record.ProviderMessageID = &sid
	}
	if err != nil {
		record.Status = models.OutboundFailed
		record.Error = err.Error()

		slog.Error("notification failed", "job_id", job.ID.String(), "account_id", job.AccountID.String(),
			"stage", apperr.StageNotify, "error", err.Error())
		metrics.NotificationsFailed.Inc()
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("job_id", job.ID.String())
			scope.SetTag("stage", apperr.StageNotify)
			sentry.CaptureException(err)
		})
	}
	if cerr := o.DB.Create(&record).Error; cerr != nil {
		slog.Error("outbound message not recorded", "job_id", job.ID.String(), "error", cerr)
	}
	return err
}

func outboundType(msg messaging.Outbound) string {
	if msg.MediaURL != "" {
		return "image"
	}
	return "text"
}
