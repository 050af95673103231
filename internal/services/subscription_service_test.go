package services

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWebhookEvent_Activation(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewSubscriptionService(db, ledger.New(), &fakeMailer{})
	acc := testutil.CreateAccount(t, db, testutil.WithCredits(7, 10))

	end := time.Now().Add(30 * 24 * time.Hour)
	err := svc.HandleWebhookEvent(&dto.BillingEvent{
		Type:           "activated",
		AccountID:      acc.ID.String(),
		ProductID:      "professional_monthly",
		ExpirationAtMs: end.UnixMilli(),
	})
	require.NoError(t, err)

	got := testutil.ReloadAccount(t, db, acc.ID)
	assert.Equal(t, models.PlanProfessional, got.PlanTier)
	assert.Equal(t, models.SubscriptionActive, got.SubscriptionStatus)
	assert.Equal(t, 200, got.CreditsLimit)
	assert.Equal(t, 0, got.CreditsUsed)
	assert.Equal(t, 3, got.ChannelLimit)
	assert.Nil(t, got.TrialEndsAt)
	require.NotNil(t, got.PeriodEnd)
	assert.WithinDuration(t, end, *got.PeriodEnd, time.Second)
}

func TestHandleWebhookEvent_RenewalResetsUsage(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewSubscriptionService(db, ledger.New(), &fakeMailer{})
	acc := testutil.CreateAccount(t, db,
		testutil.WithPlan(models.PlanBasic, models.SubscriptionPastDue),
		testutil.WithCredits(50, 50))

	require.NoError(t, svc.HandleWebhookEvent(&dto.BillingEvent{Type: "renewed", AccountID: acc.ID.String()}))

	got := testutil.ReloadAccount(t, db, acc.ID)
	assert.Equal(t, models.SubscriptionActive, got.SubscriptionStatus)
	assert.Equal(t, 0, got.CreditsUsed)
	assert.Equal(t, 50, got.CreditsLimit)
}

func TestHandleWebhookEvent_DowngradeKeepsUsage(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewSubscriptionService(db, ledger.New(), &fakeMailer{})
	acc := testutil.CreateAccount(t, db,
		testutil.WithPlan(models.PlanProfessional, models.SubscriptionActive),
		testutil.WithCredits(120, 200))

	require.NoError(t, svc.HandleWebhookEvent(&dto.BillingEvent{Type: "downgraded", AccountID: acc.ID.String()}))

	got := testutil.ReloadAccount(t, db, acc.ID)
	assert.Equal(t, models.PlanBasic, got.PlanTier)
	assert.Equal(t, 50, got.CreditsLimit)
	assert.Equal(t, 120, got.CreditsUsed)
	assert.Equal(t, 0, ledger.New().Remaining(got))
}

func TestHandleWebhookEvent_StatusChangesAndErrors(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewSubscriptionService(db, ledger.New(), &fakeMailer{})
	acc := testutil.CreateAccount(t, db, testutil.WithPlan(models.PlanBasic, models.SubscriptionActive))

	for typ, want := range map[string]string{
		"past_due":  models.SubscriptionPastDue,
		"cancelled": models.SubscriptionCancelled,
		"expired":   models.SubscriptionExpired,
	} {
		require.NoError(t, svc.HandleWebhookEvent(&dto.BillingEvent{Type: typ, AccountID: acc.ID.String()}))
		assert.Equal(t, want, testutil.ReloadAccount(t, db, acc.ID).SubscriptionStatus)
	}

	assert.NoError(t, svc.HandleWebhookEvent(&dto.BillingEvent{Type: "unknown", AccountID: acc.ID.String()}))
	assert.ErrorIs(t, svc.HandleWebhookEvent(&dto.BillingEvent{Type: "activated", AccountID: acc.ID.String(), ProductID: "gold"}), ErrUnknownPlan)
	assert.ErrorIs(t, svc.HandleWebhookEvent(&dto.BillingEvent{Type: "expired", AccountID: "nope"}), ErrInvalidBillingID)
	assert.ErrorIs(t, svc.HandleWebhookEvent(&dto.BillingEvent{Type: "expired", AccountID: testutil.NewID().String()}), ledger.ErrAccountNotFound)
}

func TestExpireTrials(t *testing.T) {
	db := testutil.NewDB(t)
	mailer := &fakeMailer{}
	svc := NewSubscriptionService(db, ledger.New(), mailer)
	now := time.Now().UTC()

	ended := testutil.CreateAccount(t, db, testutil.WithTrialEnd(now.Add(-time.Hour)))
	testutil.CreateAccount(t, db, testutil.WithTrialEnd(now.Add(time.Hour)))
	testutil.CreateAccount(t, db, testutil.WithPlan(models.PlanBasic, models.SubscriptionActive))

	n, err := svc.ExpireTrials(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{ended.Email}, mailer.to)
	assert.Equal(t, models.SubscriptionExpired, testutil.ReloadAccount(t, db, ended.ID).SubscriptionStatus)

	n, err = svc.ExpireTrials(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
