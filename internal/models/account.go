package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanTrial        = "trial"
	PlanBasic        = "basic"
	PlanProfessional = "professional"
	PlanAnnual       = "annual"
)

const (
	SubscriptionTrial     = "trial"
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

// Account is a business tenant holding a credit quota.
// CreditsUsed and CreditsLimit are written only through the ledger package.
type Account struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email              string     `gorm:"not null;size:255;uniqueIndex" json:"email"`
	TaxID              string     `gorm:"not null;size:20;uniqueIndex" json:"tax_id"`
	BusinessName       string     `gorm:"size:255" json:"business_name"`
	BusinessCategory   string     `gorm:"size:50;not null;default:'services'" json:"business_category"`
	Locale             string     `gorm:"size:10;not null;default:'pt-BR'" json:"locale"`
	PlanTier           string     `gorm:"size:20;not null;default:'trial'" json:"plan_tier"`
	CreditsUsed        int        `gorm:"not null" json:"credits_used"`
	CreditsLimit       int        `gorm:"not null" json:"credits_limit"`
	ChannelLimit       int        `gorm:"not null" json:"channel_limit"`
	SubscriptionStatus string     `gorm:"size:20;not null;default:'trial'" json:"subscription_status"`
	PeriodEnd          *time.Time `json:"period_end,omitempty"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Bindings []ChannelBinding `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	Jobs     []GenerationJob  `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *Account) IsTrial() bool {
	return a.PlanTier == PlanTrial
}
