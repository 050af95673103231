// Package testutil builds throwaway SQLite-backed databases and fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/database"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an isolated in-memory database with all models migrated.
// A single connection serializes access, so code under test must use the
// transaction handle it was given while a transaction is open.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func NewID() uuid.UUID {
	return uuid.New()
}

// AccountOption adjusts a fixture account before insert.
type AccountOption func(*models.Account)

func WithCredits(used, limit int) AccountOption {
	return func(a *models.Account) {
		a.CreditsUsed = used
		a.CreditsLimit = limit
	}
}

func WithPlan(tier, status string) AccountOption {
	return func(a *models.Account) {
		a.PlanTier = tier
		a.SubscriptionStatus = status
	}
}

func WithTrialEnd(t time.Time) AccountOption {
	return func(a *models.Account) {
		end := t.UTC()
		a.TrialEndsAt = &end
	}
}

func WithCategory(category string) AccountOption {
	return func(a *models.Account) {
		a.BusinessCategory = category
	}
}

func WithChannelLimit(n int) AccountOption {
	return func(a *models.Account) {
		a.ChannelLimit = n
	}
}

// CreateAccount inserts an active trial account with 10 credits unless overridden.
func CreateAccount(t *testing.T, db *gorm.DB, opts ...AccountOption) *models.Account {
	t.Helper()
	id := uuid.New()
	trialEnd := time.Now().UTC().Add(7 * 24 * time.Hour)
	acc := &models.Account{
		ID:                 id,
		Email:              id.String()[:8] + "@loja.com.br",
		TaxID:              id.String()[:14],
		BusinessName:       "Padaria Central",
		BusinessCategory:   "restaurant",
		Locale:             "pt-BR",
		PlanTier:           models.PlanTrial,
		CreditsLimit:       10,
		ChannelLimit:       1,
		SubscriptionStatus: models.SubscriptionTrial,
		TrialEndsAt:        &trialEnd,
	}
	for _, opt := range opts {
		opt(acc)
	}
	require.NoError(t, db.Create(acc).Error)
	return acc
}

// CreateBinding inserts a channel binding with the given status.
func CreateBinding(t *testing.T, db *gorm.DB, accountID uuid.UUID, phone, status string) *models.ChannelBinding {
	t.Helper()
	b := &models.ChannelBinding{AccountID: accountID, Phone: phone, Status: status}
	require.NoError(t, db.Create(b).Error)
	return b
}

// CreateJob inserts a pending text job for the account.
func CreateJob(t *testing.T, db *gorm.DB, accountID uuid.UUID, prompt string) *models.GenerationJob {
	t.Helper()
	p := prompt
	job := &models.GenerationJob{
		AccountID: accountID,
		InputKind: models.InputText,
		Prompt:    &p,
		Style:     "modern",
		Status:    models.JobPending,
		ReplyTo:   "+5511987654321",
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

// Reload fetches the latest state of a job.
func Reload(t *testing.T, db *gorm.DB, id uuid.UUID) *models.GenerationJob {
	t.Helper()
	var job models.GenerationJob
	require.NoError(t, db.First(&job, "id = ?", id).Error)
	return &job
}

// ReloadAccount fetches the latest state of an account.
func ReloadAccount(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Account {
	t.Helper()
	var acc models.Account
	require.NoError(t, db.First(&acc, "id = ?", id).Error)
	return &acc
}
