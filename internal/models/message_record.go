package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Inbound status tokens, returned to the provider and replayed for duplicate deliveries.
const (
	StatusProcessing          = "processing"
	StatusNoCredits           = "no_credits"
	StatusNumberNotRegistered = "number_not_registered"
	StatusHelpSent            = "help_sent"
	StatusCreditsSent         = "credits_sent"
)

const (
	OutboundSent   = "sent"
	OutboundFailed = "failed"
)

// MessageRecord is an append-only audit row for one channel event.
type MessageRecord struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProviderMessageID *string    `gorm:"size:64;uniqueIndex" json:"provider_message_id"`
	Direction         string     `gorm:"size:10;not null" json:"direction"`
	AccountID         *uuid.UUID `gorm:"type:uuid;index" json:"account_id,omitempty"`
	JobID             *uuid.UUID `gorm:"type:uuid;index" json:"job_id,omitempty"`
	FromAddress       string     `gorm:"size:40" json:"from_address"`
	ToAddress         string     `gorm:"size:40" json:"to_address"`
	Body              string     `gorm:"type:text" json:"body"`
	MediaURL          string     `gorm:"size:1000" json:"media_url,omitempty"`
	MessageType       string     `gorm:"size:10" json:"message_type"`
	Status            string     `gorm:"size:30;not null" json:"status"`
	Error             string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`

	Account *Account       `gorm:"foreignKey:AccountID;constraint:OnDelete:SET NULL" json:"-"`
	Job     *GenerationJob `gorm:"foreignKey:JobID;constraint:OnDelete:SET NULL" json:"-"`
}

func (m *MessageRecord) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
