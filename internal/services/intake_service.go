package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/enhance"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/phone"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	helpCommands    = map[string]bool{"menu": true, "ajuda": true, "help": true}
	creditsCommands = map[string]bool{"creditos": true, "créditos": true, "credits": true}
)

// IntakeResult is the outcome of one inbound webhook delivery.
type IntakeResult struct {
	Status    string
	JobID     *uuid.UUID
	Duplicate bool
}

type IntakeService struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	catalog  *messaging.Catalog
	enqueuer JobEnqueuer
	out      *outbox
}

func NewIntakeService(db *gorm.DB, l *ledger.Ledger, notifier messaging.Notifier, enqueuer JobEnqueuer, notifyTimeout time.Duration) *IntakeService {
	return &IntakeService{
		db:       db,
		ledger:   l,
		catalog:  messaging.NewCatalog(),
		enqueuer: enqueuer,
		out:      &outbox{db: db, notifier: notifier, timeout: notifyTimeout},
	}
}

// decision is what the transaction settled on; side effects run after commit.
type decision struct {
	result    IntakeResult
	reply     *messaging.Outbound
	accountID *uuid.UUID
	enqueue   bool
}

// HandleInbound records the message, decides its outcome, and only after the
// transaction commits sends the reply and enqueues any new job.
func (s *IntakeService) HandleInbound(ctx context.Context, msg *dto.WhatsAppInbound) (*IntakeResult, error) {
	from, err := phone.Normalize(msg.From)
	if err != nil {
		from = strings.TrimPrefix(msg.From, "whatsapp:")
	}

	var d decision
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		d, txErr = s.decide(tx, msg, from)
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("intake %s: %w", msg.MessageSid, err)
	}

	if d.reply != nil {
		_ = s.out.send(ctx, d.accountID, d.result.JobID, *d.reply)
	}
	if d.enqueue && d.result.JobID != nil {
		if err := s.enqueuer.Enqueue(ctx, *d.result.JobID); err != nil {
			// The job stays pending; the stale sweep picks it up.
			slog.Error("enqueue after intake failed", "job_id", d.result.JobID.String(), "error", err)
		}
	}

	metrics.WebhookEvents.WithLabelValues(d.result.Status).Inc()
	return &d.result, nil
}

func (s *IntakeService) decide(tx *gorm.DB, msg *dto.WhatsAppInbound, from string) (decision, error) {
	sid := msg.MessageSid
	record := models.MessageRecord{
		ProviderMessageID: &sid,
		Direction:         models.DirectionInbound,
		FromAddress:       from,
		ToAddress:         strings.TrimPrefix(msg.To, "whatsapp:"),
		Body:              msg.Body,
		MediaURL:          msg.MediaURL0,
		MessageType:       inboundType(msg),
		Status:            models.StatusProcessing,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_message_id"}},
		DoNothing: true,
	}).Create(&record)
	if res.Error != nil {
		return decision{}, res.Error
	}
	if res.RowsAffected == 0 {
		return s.replay(tx, sid)
	}

	d, err := s.route(tx, msg, from)
	if err != nil {
		return decision{}, err
	}
	updates := map[string]interface{}{"status": d.result.Status}
	if d.accountID != nil {
		updates["account_id"] = *d.accountID
	}
	if d.result.JobID != nil {
		updates["job_id"] = *d.result.JobID
	}
	if err := tx.Model(&record).Updates(updates).Error; err != nil {
		return decision{}, err
	}
	return d, nil
}

// replay answers a redelivered message with the status it got the first time.
// A job that never left pending is enqueued again.
func (s *IntakeService) replay(tx *gorm.DB, sid string) (decision, error) {
	var existing models.MessageRecord
	if err := tx.Where("provider_message_id = ?", sid).First(&existing).Error; err != nil {
		return decision{}, err
	}
	d := decision{result: IntakeResult{Status: existing.Status, JobID: existing.JobID, Duplicate: true}}
	if existing.JobID != nil {
		var job models.GenerationJob
		err := tx.Select("id", "status").First(&job, "id = ?", *existing.JobID).Error
		if err == nil && job.Status == models.JobPending {
			d.enqueue = true
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return decision{}, err
		}
	}
	slog.Info("duplicate webhook delivery", "message_sid", sid, "status", existing.Status)
	return d, nil
}

func (s *IntakeService) route(tx *gorm.DB, msg *dto.WhatsAppInbound, from string) (decision, error) {
	var binding models.ChannelBinding
	err := tx.Where("phone = ? AND status = ?", from, models.BindingVerified).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decision{
			result: IntakeResult{Status: models.StatusNumberNotRegistered},
			reply:  &messaging.Outbound{To: from, Body: s.catalog.Text("", messaging.MsgRegister)},
		}, nil
	}
	if err != nil {
		return decision{}, err
	}

	var account models.Account
	if err := tx.First(&account, "id = ?", binding.AccountID).Error; err != nil {
		return decision{}, err
	}
	now := s.ledger.Now()
	if err := tx.Model(&binding).Update("last_message_at", now).Error; err != nil {
		return decision{}, err
	}

	accountID := account.ID
	d := decision{accountID: &accountID}
	reply := func(status string, id messaging.MessageID, args ...interface{}) (decision, error) {
		d.result.Status = status
		d.reply = &messaging.Outbound{To: from, Body: s.catalog.Text(account.Locale, id, args...)}
		return d, nil
	}

	command := strings.ToLower(strings.TrimSpace(msg.Body))
	audio := msg.HasMedia() && strings.HasPrefix(msg.MediaContentType0, "audio/")
	switch {
	case helpCommands[command]:
		return reply(models.StatusHelpSent, messaging.MsgHelp)
	case creditsCommands[command]:
		return reply(models.StatusCreditsSent, messaging.MsgCredits,
			account.CreditsUsed, account.CreditsLimit, s.ledger.Remaining(&account), account.PlanTier)
	case command == "" && !audio:
		return reply(models.StatusHelpSent, messaging.MsgHelp)
	}

	if !s.ledger.CanGenerate(&account) {
		if account.IsTrial() && !s.ledger.SubscriptionActive(&account) {
			return reply(models.StatusNoCredits, messaging.MsgTrialExpired, account.CreditsUsed)
		}
		return reply(models.StatusNoCredits, messaging.MsgNoCredits)
	}

	job := models.GenerationJob{
		AccountID: account.ID,
		Style:     enhance.DefaultStyle,
		Status:    models.JobPending,
		ReplyTo:   from,
	}
	processing := messaging.MsgProcessingText
	if audio {
		job.InputKind = models.InputAudio
		job.MediaURL = msg.MediaURL0
		job.MediaContentType = msg.MediaContentType0
		processing = messaging.MsgProcessingAudio
	} else {
		text := strings.TrimSpace(msg.Body)
		job.InputKind = models.InputText
		job.Prompt = &text
	}
	if err := tx.Create(&job).Error; err != nil {
		return decision{}, err
	}

	jobID := job.ID
	d.result.JobID = &jobID
	d.enqueue = true
	return reply(models.StatusProcessing, processing)
}

func inboundType(msg *dto.WhatsAppInbound) string {
	if !msg.HasMedia() {
		return "text"
	}
	switch {
	case strings.HasPrefix(msg.MediaContentType0, "audio/"):
		return "audio"
	case strings.HasPrefix(msg.MediaContentType0, "image/"):
		return "image"
	default:
		return "media"
	}
}
