package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
)

type CreateJobRequest struct {
	Prompt string `json:"prompt" validate:"required,min=3,max=1000"`
	Style  string `json:"style" validate:"omitempty,oneof=modern elegant fun minimal bold vintage"`
}

type ListJobsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending processing completed failed"`
	Start  string `query:"start_date" validate:"omitempty,datetime=2006-01-02"`
	End    string `query:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Search string `query:"search" validate:"max=200"`
	Page   int    `query:"page" validate:"gte=0"`
	Limit  int    `query:"limit" validate:"gte=0,lte=100"`
}

type JobListResponse struct {
	Jobs       []models.GenerationJob `json:"jobs"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"total_pages"`
}

type CreditsResponse struct {
	Used               int        `json:"used"`
	Limit              int        `json:"limit"`
	Remaining          int        `json:"remaining"`
	PlanTier           string     `json:"plan_tier"`
	SubscriptionStatus string     `json:"subscription_status"`
	CanGenerate        bool       `json:"can_generate"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	PeriodEnd          *time.Time `json:"period_end,omitempty"`
}
