// Package ledger is the only writer of an account's credit counters.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

type Ledger struct {
	now func() time.Time
}

func New() *Ledger {
	return &Ledger{now: time.Now}
}

// NewWithClock is used where trial expiry must be evaluated at a fixed instant.
func NewWithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now}
}

func (l *Ledger) Now() time.Time {
	return l.now()
}

// SubscriptionActive: a trial is active until trial_ends_at (or forever if unset),
// a paid plan only while its status is "active".
func (l *Ledger) SubscriptionActive(a *models.Account) bool {
	if a.IsTrial() {
		if a.SubscriptionStatus == models.SubscriptionExpired {
			return false
		}
		return a.TrialEndsAt == nil || l.now().Before(*a.TrialEndsAt)
	}
	return a.SubscriptionStatus == models.SubscriptionActive
}

// Remaining never goes below zero, even if a downgrade left used above limit.
func (l *Ledger) Remaining(a *models.Account) int {
	if r := a.CreditsLimit - a.CreditsUsed; r > 0 {
		return r
	}
	return 0
}

func (l *Ledger) CanGenerate(a *models.Account) bool {
	return l.SubscriptionActive(a) && l.Remaining(a) > 0
}

// Debit consumes one credit inside the caller's transaction. The guard lives in
// the UPDATE itself so concurrent debits on one account serialize on the row.
func (l *Ledger) Debit(tx *gorm.DB, accountID uuid.UUID) error {
	res := tx.Model(&models.Account{}).
		Where("id = ? AND credits_used < credits_limit", accountID).
		Updates(map[string]interface{}{
			"credits_used": gorm.Expr("credits_used + 1"),
			"updated_at":   l.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("debit credit: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return l.missingOr(tx, accountID, apperr.ErrQuotaExceeded)
}

// ResetPeriod zeroes the used counter at the start of a paid billing period.
func (l *Ledger) ResetPeriod(tx *gorm.DB, accountID uuid.UUID) error {
	res := tx.Model(&models.Account{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{"credits_used": 0, "updated_at": l.now()})
	if res.Error != nil {
		return fmt.Errorf("reset credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ApplyLimit sets the credit allowance after a plan change.
func (l *Ledger) ApplyLimit(tx *gorm.DB, accountID uuid.UUID, limit int) error {
	if limit < 0 {
		limit = 0
	}
	res := tx.Model(&models.Account{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{"credits_limit": limit, "updated_at": l.now()})
	if res.Error != nil {
		return fmt.Errorf("apply credit limit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (l *Ledger) missingOr(tx *gorm.DB, accountID uuid.UUID, err error) error {
	var count int64
	if cerr := tx.Model(&models.Account{}).Where("id = ?", accountID).Count(&count).Error; cerr != nil {
		return fmt.Errorf("debit credit: %w", cerr)
	}
	if count == 0 {
		return ErrAccountNotFound
	}
	return err
}
