package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/phone"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const codeTTL = 15 * time.Minute

type ChannelService struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	catalog *messaging.Catalog
	out     *outbox
	newCode func() (string, error)
}

func NewChannelService(db *gorm.DB, l *ledger.Ledger, notifier messaging.Notifier, notifyTimeout time.Duration) *ChannelService {
	return &ChannelService{
		db:      db,
		ledger:  l,
		catalog: messaging.NewCatalog(),
		out:     &outbox{db: db, notifier: notifier, timeout: notifyTimeout},
		newCode: verificationCode,
	}
}

// Bind links a WhatsApp number to the account in pending state and sends a
// one-time code to that number.
func (s *ChannelService) Bind(ctx context.Context, accountID uuid.UUID, rawPhone string) (*models.ChannelBinding, error) {
	number, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}
	expires := s.ledger.Now().Add(codeTTL)

	var account models.Account
	var binding models.ChannelBinding
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&account, "id = ?", accountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrAccountNotFound
			}
			return err
		}

		var existing models.ChannelBinding
		err := tx.Where("phone = ?", number).First(&existing).Error
		switch {
		case err == nil && existing.AccountID == accountID && existing.Status == models.BindingPending:
			// Resend: refresh the code on the same row.
			binding = existing
			return tx.Model(&binding).Updates(map[string]interface{}{
				"verification_hash": string(hash),
				"code_expires_at":   expires,
			}).Error
		case err == nil && existing.Status == models.BindingVerified,
			err == nil && existing.Status == models.BindingPending && !codeExpired(&existing, s.ledger.Now()):
			return ErrPhoneTaken
		case err == nil:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		var inUse int64
		if err := tx.Model(&models.ChannelBinding{}).
			Where("account_id = ? AND status <> ?", accountID, models.BindingInactive).
			Count(&inUse).Error; err != nil {
			return err
		}
		if int(inUse) >= account.ChannelLimit {
			return ErrChannelLimit
		}

		binding = models.ChannelBinding{
			AccountID:        accountID,
			Phone:            number,
			Status:           models.BindingPending,
			VerificationHash: string(hash),
			CodeExpiresAt:    &expires,
		}
		return tx.Create(&binding).Error
	})
	if err != nil {
		return nil, err
	}

	_ = s.out.send(ctx, &account.ID, nil, messaging.Outbound{
		To:   number,
		Body: s.catalog.Text(account.Locale, messaging.MsgVerification, code),
	})
	binding.CodeExpiresAt = &expires
	return &binding, nil
}

func (s *ChannelService) Verify(accountID, bindingID uuid.UUID, code string) (*models.ChannelBinding, error) {
	binding, err := s.find(accountID, bindingID)
	if err != nil {
		return nil, err
	}
	if binding.Status == models.BindingVerified {
		return nil, ErrAlreadyVerified
	}
	if binding.Status != models.BindingPending {
		return nil, ErrChannelNotFound
	}
	now := s.ledger.Now()
	if codeExpired(binding, now) {
		return nil, ErrCodeExpired
	}
	if bcrypt.CompareHashAndPassword([]byte(binding.VerificationHash), []byte(code)) != nil {
		return nil, ErrInvalidCode
	}

	res := s.db.Model(binding).
		Where("status = ?", models.BindingPending).
		Updates(map[string]interface{}{
			"status":            models.BindingVerified,
			"verified_at":       now,
			"verification_hash": "",
			"code_expires_at":   nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyVerified
	}
	binding.Status = models.BindingVerified
	binding.VerifiedAt = &now
	return binding, nil
}

// Deactivate keeps at least one verified number on the account.
func (s *ChannelService) Deactivate(accountID, bindingID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var binding models.ChannelBinding
		err := tx.Where("id = ? AND account_id = ?", bindingID, accountID).First(&binding).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChannelNotFound
		}
		if err != nil {
			return err
		}
		if binding.Status == models.BindingInactive {
			return nil
		}
		if binding.Status == models.BindingVerified {
			var verified int64
			if err := tx.Model(&models.ChannelBinding{}).
				Where("account_id = ? AND status = ?", accountID, models.BindingVerified).
				Count(&verified).Error; err != nil {
				return err
			}
			if verified <= 1 {
				return ErrLastChannel
			}
		}
		return tx.Model(&binding).Update("status", models.BindingInactive).Error
	})
}

func (s *ChannelService) List(accountID uuid.UUID) ([]models.ChannelBinding, error) {
	var bindings []models.ChannelBinding
	err := s.db.Where("account_id = ? AND status <> ?", accountID, models.BindingInactive).
		Order("created_at ASC").
		Find(&bindings).Error
	return bindings, err
}

func (s *ChannelService) find(accountID, bindingID uuid.UUID) (*models.ChannelBinding, error) {
	var binding models.ChannelBinding
	err := s.db.Where("id = ? AND account_id = ?", bindingID, accountID).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// codeExpired reports whether a pending binding can no longer be verified.
// Another account may claim the number once that happens.
func codeExpired(b *models.ChannelBinding, now time.Time) bool {
	return b.CodeExpiresAt == nil || now.After(*b.CodeExpiresAt)
}
