package services

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRetention(t *testing.T) {
	db := testutil.NewDB(t)
	assets := &fakeAssets{}
	svc := NewMaintenanceService(db, ledger.New(), assets, &fakeEnqueuer{}, nil, MaintenanceConfig{Retention: 90 * 24 * time.Hour})
	acc := testutil.CreateAccount(t, db)
	now := time.Now().UTC()

	old := testutil.CreateJob(t, db, acc.ID, "antiga")
	require.NoError(t, db.Model(old).Updates(map[string]interface{}{
		"status": models.JobCompleted, "storage_key": "generations/a/old.jpg", "created_at": now.AddDate(0, 0, -91),
	}).Error)
	broken := testutil.CreateJob(t, db, acc.ID, "sem arquivo")
	require.NoError(t, db.Model(broken).Updates(map[string]interface{}{
		"status": models.JobCompleted, "storage_key": "broken", "created_at": now.AddDate(0, 0, -120),
	}).Error)
	oldFailed := testutil.CreateJob(t, db, acc.ID, "falhou")
	require.NoError(t, db.Model(oldFailed).Updates(map[string]interface{}{
		"status": models.JobFailed, "created_at": now.AddDate(0, 0, -200),
	}).Error)
	recent := testutil.CreateJob(t, db, acc.ID, "recente")
	require.NoError(t, db.Model(recent).Update("status", models.JobCompleted).Error)

	n, err := svc.SweepRetention(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"generations/a/old.jpg", "broken"}, assets.deleted)

	var left int64
	db.Model(&models.GenerationJob{}).Count(&left)
	assert.Equal(t, int64(2), left)
}

func TestRequeueStale(t *testing.T) {
	db := testutil.NewDB(t)
	enq := &fakeEnqueuer{}
	svc := NewMaintenanceService(db, ledger.New(), nil, enq, nil, MaintenanceConfig{StalePendingAfter: 5 * time.Minute})
	acc := testutil.CreateAccount(t, db)
	now := time.Now().UTC()

	stale := testutil.CreateJob(t, db, acc.ID, "parada")
	require.NoError(t, db.Model(stale).Update("created_at", now.Add(-10*time.Minute)).Error)
	testutil.CreateJob(t, db, acc.ID, "nova")
	expired := testutil.CreateJob(t, db, acc.ID, "travada")
	require.NoError(t, db.Model(expired).Updates(map[string]interface{}{
		"status": models.JobProcessing, "lease_expires_at": now.Add(-time.Minute),
	}).Error)
	held := testutil.CreateJob(t, db, acc.ID, "em andamento")
	require.NoError(t, db.Model(held).Updates(map[string]interface{}{
		"status": models.JobProcessing, "lease_expires_at": now.Add(time.Minute), "created_at": now.Add(-time.Hour),
	}).Error)

	n, err := svc.RequeueStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []uuid.UUID{stale.ID, expired.ID}, enq.enqueued())
}

func TestRequeueStale_ReleasedJobWithoutDelivery(t *testing.T) {
	db := testutil.NewDB(t)
	enq := &fakeEnqueuer{}
	svc := NewMaintenanceService(db, ledger.New(), nil, enq, nil, MaintenanceConfig{
		StalePendingAfter:  5 * time.Minute,
		ReleasedStaleAfter: 15 * time.Minute,
	})
	acc := testutil.CreateAccount(t, db)
	now := time.Now().UTC()

	lost := testutil.CreateJob(t, db, acc.ID, "perdida")
	require.NoError(t, db.Model(lost).Updates(map[string]interface{}{
		"status": models.JobProcessing, "lease_expires_at": nil,
		"created_at": now.Add(-48 * time.Hour), "updated_at": now.Add(-time.Hour),
	}).Error)
	backingOff := testutil.CreateJob(t, db, acc.ID, "aguardando retry")
	require.NoError(t, db.Model(backingOff).Updates(map[string]interface{}{
		"status": models.JobProcessing, "lease_expires_at": nil,
		"created_at": now.Add(-time.Hour), "updated_at": now.Add(-2 * time.Minute),
	}).Error)

	n, err := svc.RequeueStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{lost.ID}, enq.enqueued())
}

func TestRequeueStale_SkipsRecentlyRequeued(t *testing.T) {
	db := testutil.NewDB(t)
	enq := &fakeEnqueuer{}
	svc := NewMaintenanceService(db, ledger.New(), nil, enq, nil, MaintenanceConfig{StalePendingAfter: 5 * time.Minute})
	acc := testutil.CreateAccount(t, db)
	now := time.Now().UTC()

	backlog := testutil.CreateJob(t, db, acc.ID, "na fila")
	require.NoError(t, db.Model(backlog).Update("created_at", now.Add(-30*time.Minute)).Error)

	n, err := svc.RequeueStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var reloaded models.GenerationJob
	require.NoError(t, db.First(&reloaded, "id = ?", backlog.ID).Error)
	require.NotNil(t, reloaded.EnqueuedAt)

	n, err = svc.RequeueStale(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = svc.RequeueStale(context.Background(), now.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, enq.enqueued(), 2)
}

func TestLowCreditAlerts(t *testing.T) {
	db := testutil.NewDB(t)
	n := &testutil.Notifier{}
	svc := NewMaintenanceService(db, ledger.New(), nil, &fakeEnqueuer{}, n, MaintenanceConfig{NotifyTimeout: time.Second})

	low := testutil.CreateAccount(t, db, testutil.WithPlan(models.PlanBasic, models.SubscriptionActive), testutil.WithCredits(45, 50))
	testutil.CreateBinding(t, db, low.ID, "+5511987654321", models.BindingVerified)
	testutil.CreateBinding(t, db, low.ID, "+5521998765432", models.BindingPending)

	healthy := testutil.CreateAccount(t, db, testutil.WithPlan(models.PlanBasic, models.SubscriptionActive), testutil.WithCredits(10, 50))
	testutil.CreateBinding(t, db, healthy.ID, "+5531987654321", models.BindingVerified)

	empty := testutil.CreateAccount(t, db, testutil.WithPlan(models.PlanBasic, models.SubscriptionActive), testutil.WithCredits(50, 50))
	testutil.CreateBinding(t, db, empty.ID, "+5541987654321", models.BindingVerified)

	sent, err := svc.LowCreditAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	msgs := n.Sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "+5511987654321", msgs[0].To)
	assert.Contains(t, msgs[0].Body, "5 créditos")
}
