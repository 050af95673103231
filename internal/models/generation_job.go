package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

const (
	InputText  = "text"
	InputAudio = "audio"
	InputAPI   = "api"
)

// GenerationJob is one prompt-to-image request. Status only moves
// pending -> processing -> completed|failed; CreditCost is 1 iff completed.
type GenerationJob struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_jobs_account_created" json:"account_id"`
	InputKind        string         `gorm:"size:10;not null" json:"input_kind"`
	Prompt           *string        `gorm:"type:text" json:"prompt"`
	MediaURL         string         `gorm:"size:1000" json:"-"`
	MediaContentType string         `gorm:"size:100" json:"-"`
	ReplyTo          string         `gorm:"size:20" json:"-"`
	Style            string         `gorm:"size:20;not null;default:'modern'" json:"style"`
	Status           string         `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ImageURL         string         `gorm:"size:1000" json:"image_url,omitempty"`
	StorageKey       string         `gorm:"size:500" json:"-"`
	FileSize         int64          `json:"file_size,omitempty"`
	FailedStage      string         `gorm:"size:30" json:"failed_stage,omitempty"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message,omitempty"`
	CreditCost       int            `gorm:"not null" json:"credit_cost"`
	Attempts         int            `gorm:"not null" json:"attempts"`
	LeaseExpiresAt   *time.Time     `json:"-"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	ProcessingMs     int64          `json:"processing_ms,omitempty"`
	NotifiedAt       *time.Time     `json:"-"`
	EnqueuedAt       *time.Time     `json:"-"`
	Metadata         datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"index:idx_jobs_account_created" json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

func (j *GenerationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (j *GenerationJob) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

func (j *GenerationJob) PromptText() string {
	if j.Prompt == nil {
		return ""
	}
	return *j.Prompt
}
