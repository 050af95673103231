package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionService struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	mailer  messaging.Mailer
	catalog *messaging.Catalog
}

func NewSubscriptionService(db *gorm.DB, l *ledger.Ledger, mailer messaging.Mailer) *SubscriptionService {
	return &SubscriptionService{db: db, ledger: l, mailer: mailer, catalog: messaging.NewCatalog()}
}

// HandleWebhookEvent applies a lifecycle change. Credit counters are only
// touched through the ledger.
func (s *SubscriptionService) HandleWebhookEvent(event *dto.BillingEvent) error {
	accountID, err := uuid.Parse(event.AccountID)
	if err != nil {
		return ErrInvalidBillingID
	}

	switch event.Type {
	case "activated":
		return s.handleActivation(accountID, event)
	case "renewed":
		return s.handleRenewal(accountID, event)
	case "downgraded":
		return s.handleDowngrade(accountID, event)
	case "cancelled":
		return s.setStatus(accountID, models.SubscriptionCancelled)
	case "past_due":
		return s.setStatus(accountID, models.SubscriptionPastDue)
	case "expired":
		return s.setStatus(accountID, models.SubscriptionExpired)
	default:
		return nil
	}
}

func (s *SubscriptionService) handleActivation(accountID uuid.UUID, event *dto.BillingEvent) error {
	plan, ok := ledger.PlanFor(event.ProductID)
	if !ok || plan.Tier == models.PlanTrial {
		return fmt.Errorf("%w: %q", ErrUnknownPlan, event.ProductID)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.updateAccount(tx, accountID, map[string]interface{}{
			"plan_tier":           plan.Tier,
			"channel_limit":       plan.Channels,
			"subscription_status": models.SubscriptionActive,
			"period_end":          periodEnd(event.ExpirationAtMs),
			"trial_ends_at":       nil,
		}); err != nil {
			return err
		}
		if err := s.ledger.ApplyLimit(tx, accountID, plan.Credits); err != nil {
			return err
		}
		return s.ledger.ResetPeriod(tx, accountID)
	})
}

func (s *SubscriptionService) handleRenewal(accountID uuid.UUID, event *dto.BillingEvent) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.updateAccount(tx, accountID, map[string]interface{}{
			"subscription_status": models.SubscriptionActive,
			"period_end":          periodEnd(event.ExpirationAtMs),
		}); err != nil {
			return err
		}
		return s.ledger.ResetPeriod(tx, accountID)
	})
}

func (s *SubscriptionService) handleDowngrade(accountID uuid.UUID, event *dto.BillingEvent) error {
	product := event.ProductID
	if product == "" {
		product = models.PlanBasic
	}
	plan, ok := ledger.PlanFor(product)
	if !ok || plan.Tier == models.PlanTrial {
		return fmt.Errorf("%w: %q", ErrUnknownPlan, product)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.updateAccount(tx, accountID, map[string]interface{}{
			"plan_tier":     plan.Tier,
			"channel_limit": plan.Channels,
		}); err != nil {
			return err
		}
		return s.ledger.ApplyLimit(tx, accountID, plan.Credits)
	})
}

func (s *SubscriptionService) setStatus(accountID uuid.UUID, status string) error {
	return s.updateAccount(s.db, accountID, map[string]interface{}{"subscription_status": status})
}

func (s *SubscriptionService) updateAccount(tx *gorm.DB, accountID uuid.UUID, fields map[string]interface{}) error {
	fields["updated_at"] = s.ledger.Now()
	res := tx.Model(&models.Account{}).Where("id = ?", accountID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// ExpireTrials closes trials whose end date has passed and emails each account.
func (s *SubscriptionService) ExpireTrials(ctx context.Context, now time.Time) (int, error) {
	var accounts []models.Account
	err := s.db.Where("plan_tier = ? AND subscription_status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?",
		models.PlanTrial, models.SubscriptionTrial, now).
		Limit(500).
		Find(&accounts).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range accounts {
		a := &accounts[i]
		res := s.db.Model(&models.Account{}).
			Where("id = ? AND subscription_status = ?", a.ID, models.SubscriptionTrial).
			Updates(map[string]interface{}{"subscription_status": models.SubscriptionExpired, "updated_at": now})
		if res.Error != nil {
			slog.Error("expire trial failed", "account_id", a.ID.String(), "error", res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		expired++

		body := s.catalog.Text(a.Locale, messaging.MsgTrialExpired, a.CreditsUsed)
		if err := s.mailer.Send(ctx, a.Email, a.BusinessName, "NexusArt", body); err != nil {
			slog.Error("trial expiry email failed", "account_id", a.ID.String(), "error", err)
		}
	}
	if expired > 0 {
		slog.Info("trials expired", "count", expired)
	}
	return expired, nil
}

func periodEnd(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := msToTime(ms).UTC()
	return &t
}

func msToTime(ms int64) time.Time {
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond))
}
