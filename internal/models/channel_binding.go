package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BindingPending  = "pending"
	BindingVerified = "verified"
	BindingInactive = "inactive"
)

// ChannelBinding links one WhatsApp number (E.164) to exactly one account.
type ChannelBinding struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"account_id"`
	Phone            string     `gorm:"size:20;not null;uniqueIndex" json:"phone"`
	Status           string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	VerificationHash string     `gorm:"size:100" json:"-"`
	CodeExpiresAt    *time.Time `json:"-"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (b *ChannelBinding) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *ChannelBinding) IsActive() bool {
	return b.Status == BindingVerified
}
