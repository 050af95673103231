package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobEnqueuer hands a pending job to the worker pool.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
}

// outbox sends channel messages best-effort and keeps an audit row per send.
type outbox struct {
	db       *gorm.DB
	notifier messaging.Notifier
	timeout  time.Duration
}

func (o *outbox) send(ctx context.Context, accountID, jobID *uuid.UUID, msg messaging.Outbound) error {
	if o.notifier == nil || msg.To == "" {
		return nil
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	sid, err := o.notifier.Send(sendCtx, msg)

	record := models.MessageRecord{
		Direction:   models.DirectionOutbound,
		AccountID:   accountID,
		JobID:       jobID,
		ToAddress:   msg.To,
		Body:        msg.Body,
		MediaURL:    msg.MediaURL,
		MessageType: "text",
		Status:      models.OutboundSent,
	}
	if sid != "" {
		record.ProviderMessageID = &sid
	}
	if err != nil {
		record.Status = models.OutboundFailed
		record.Error = err.Error()
		metrics.NotificationsFailed.Inc()
		slog.Error("outbound message failed", "to", msg.To, "stage", "notify", "error", err.Error())
	}
	if cerr := o.db.Create(&record).Error; cerr != nil {
		slog.Error("outbound message not recorded", "error", cerr)
	}
	return err
}
