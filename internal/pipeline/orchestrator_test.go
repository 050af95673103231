package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/enhance"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/queue"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/render"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/storage"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/testutil"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/transcribe"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeRenderer struct {
	mu     sync.Mutex
	calls  int
	failN  int
	err    error
	before func()
}

func (f *fakeRenderer) Render(ctx context.Context, brief *enhance.Brief) (*render.Result, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.before != nil {
		f.before()
	}
	if n <= f.failN {
		return nil, apperr.Wrap(apperr.ErrRenderFailed, errors.New("backend timeout"))
	}
	if f.err != nil {
		return nil, f.err
	}
	return &render.Result{
		Image:    &render.Image{Data: []byte("fake-png"), ContentType: "image/png", ModelID: "fake"},
		Duration: 10 * time.Millisecond,
	}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Upload(ctx context.Context, data []byte, accountID uuid.UUID, contentType string) (*storage.Asset, error) {
	if s.err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageFailed, s.err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := "generations/" + accountID.String() + "/" + uuid.NewString() + ".jpg"
	s.objects[key] = data
	return &storage.Asset{URL: "https://cdn.test/" + key, Key: key, Size: int64(len(data)), ContentType: "image/jpeg"}, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakeMedia struct {
	err error
}

func (f *fakeMedia) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("ogg-bytes"), "audio/ogg", nil
}

type fakeTranscriber struct {
	calls int
	err   error
	text  string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, hint string) (*transcribe.Transcript, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Transcript{Text: f.text, Language: "pt", DurationSeconds: 12, ModelID: "whisper-1"}, nil
}

type harness struct {
	db          *gorm.DB
	orch        *Orchestrator
	renderer    *fakeRenderer
	store       *fakeStore
	media       *fakeMedia
	transcriber *fakeTranscriber
	notifier    *testutil.Notifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:          testutil.NewDB(t),
		renderer:    &fakeRenderer{},
		store:       newFakeStore(),
		media:       &fakeMedia{},
		transcriber: &fakeTranscriber{text: "Promoção de pizza R$ 29,90"},
		notifier:    &testutil.Notifier{},
	}
	h.orch = New(Deps{
		DB:          h.db,
		Ledger:      ledger.New(),
		Media:       h.media,
		Transcriber: h.transcriber,
		Enhancer:    enhance.NewService(0),
		Renderer:    h.renderer,
		Store:       h.store,
		Notifier:    h.notifier,
	}, Options{Lease: time.Minute, MaxAttempts: 4, NotifyTimeout: time.Second})
	return h
}

func createAudioJob(t *testing.T, db *gorm.DB, accountID uuid.UUID) *models.GenerationJob {
	t.Helper()
	job := &models.GenerationJob{
		AccountID:        accountID,
		InputKind:        models.InputAudio,
		MediaURL:         "https://api.twilio.test/media/ME1",
		MediaContentType: "audio/ogg",
		Style:            "modern",
		Status:           models.JobPending,
		ReplyTo:          "+5511987654321",
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

func assertCoInvariant(t *testing.T, job *models.GenerationJob) {
	t.Helper()
	if job.CreditCost == 1 {
		assert.Equal(t, models.JobCompleted, job.Status)
	}
	if job.Status == models.JobFailed {
		assert.Equal(t, 0, job.CreditCost)
	}
}

func TestProcess_TextJobCompletesAndDebitsOnce(t *testing.T) {
	h := newHarness(t)
	acc := testutil.CreateAccount(t, h.db, testutil.WithCredits(9, 10))
	job := testutil.CreateJob(t, h.db, acc.ID, "Pizza grande por R$ 39,90 hoje")

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	got := testutil.Reload(t, h.db, job.ID)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 1, got.CreditCost)
	assert.NotEmpty(t, got.ImageURL)
	assert.NotEmpty(t, got.StorageKey)
	assert.NotNil(t, got.CompletedAt)
	assert.NotNil(t, got.NotifiedAt)
	assert.Nil(t, got.LeaseExpiresAt)
	assertCoInvariant(t, got)

	assert.Equal(t, 10, testutil.ReloadAccount(t, h.db, acc.ID).CreditsUsed)

	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, got.ImageURL, sent[0].MediaURL)
	assert.Contains(t, sent[0].Body, "Créditos restantes: 0")

	var records int64
	h.db.Model(&models.MessageRecord{}).Where("job_id = ? AND direction = ?", job.ID, models.DirectionOutbound).Count(&records)
	assert.Equal(t, int64(1), records)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	assert.Contains(t, meta, "prompt_data")
	assert.Contains(t, meta, "image_specs")
}

func TestProcess_RenderFailsTwiceThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.renderer.failN = 2
	acc := testutil.CreateAccount(t, h.db, testutil.WithCredits(0, 10))
	job := testutil.CreateJob(t, h.db, acc.ID, "Corte de cabelo 20% off")

	for i := 0; i < 2; i++ {
		outcome, err := h.orch.Process(context.Background(), job.ID, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrRenderFailed)
		assert.Equal(t, OutcomeRetry, outcome)

		mid := testutil.Reload(t, h.db, job.ID)
		assert.Equal(t, models.JobProcessing, mid.Status)
		assert.Equal(t, 0, mid.CreditCost)
		assert.Nil(t, mid.LeaseExpiresAt, "lease released for the next delivery")
	}

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	got := testutil.Reload(t, h.db, job.ID)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, 1, testutil.ReloadAccount(t, h.db, acc.ID).CreditsUsed)
	assert.Equal(t, 1, h.notifier.Count())

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	attempts, ok := meta["attempt_errors"].([]interface{})
	require.True(t, ok)
	assert.Len(t, attempts, 2)
}

func TestProcess_FailureAtEachStageChargesNothing(t *testing.T) {
	tests := []struct {
		name      string
		audio     bool
		setup     func(h *harness)
		wantStage string
		wantErr   error
	}{
		{
			name:      "download",
			audio:     true,
			setup:     func(h *harness) { h.media.err = errors.New("connection reset") },
			wantStage: apperr.StageDownload,
			wantErr:   apperr.ErrMediaDownloadFailed,
		},
		{
			name:      "transcribe",
			audio:     true,
			setup:     func(h *harness) { h.transcriber.err = apperr.Wrap(apperr.ErrTranscriptionFailed, errors.New("503")) },
			wantStage: apperr.StageTranscribe,
			wantErr:   apperr.ErrTranscriptionFailed,
		},
		{
			name:      "render",
			setup:     func(h *harness) { h.renderer.failN = 99 },
			wantStage: apperr.StageRender,
			wantErr:   apperr.ErrRenderFailed,
		},
		{
			name:      "store",
			setup:     func(h *harness) { h.store.err = errors.New("bucket unavailable") },
			wantStage: apperr.StageStore,
			wantErr:   apperr.ErrStorageFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)
			acc := testutil.CreateAccount(t, h.db, testutil.WithCredits(3, 10))
			var job *models.GenerationJob
			if tt.audio {
				job = createAudioJob(t, h.db, acc.ID)
			} else {
				job = testutil.CreateJob(t, h.db, acc.ID, "Oferta de camisetas")
			}

			outcome, err := h.orch.Process(context.Background(), job.ID, true)
			require.NoError(t, err)
			assert.Equal(t, OutcomeFailed, outcome)

			got := testutil.Reload(t, h.db, job.ID)
			assert.Equal(t, models.JobFailed, got.Status)
			assert.Equal(t, tt.wantStage, got.FailedStage)
			assert.Contains(t, got.ErrorMessage, tt.wantErr.Error())
			assertCoInvariant(t, got)
			assert.Equal(t, 3, testutil.ReloadAccount(t, h.db, acc.ID).CreditsUsed)
			assert.Equal(t, 1, h.notifier.Count())
		})
	}
}

func TestProcess_QuotaExhaustedBeforeCommit(t *testing.T) {
	h := newHarness(t)
	acc := testutil.CreateAccount(t, h.db, testutil.WithCredits(9, 10))
	job := testutil.CreateJob(t, h.db, acc.ID, "Promoção relâmpago")

	// Another job consumes the last credit while this one renders.
	h.renderer.before = func() {
		require.NoError(t, h.db.Model(&models.Account{}).Where("id = ?", acc.ID).
			Update("credits_used", 10).Error)
	}

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	got := testutil.Reload(t, h.db, job.ID)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Equal(t, apperr.StageCommit, got.FailedStage)
	assert.Equal(t, 0, got.CreditCost)
	assert.Empty(t, got.ImageURL)
	assert.Equal(t, 10, testutil.ReloadAccount(t, h.db, acc.ID).CreditsUsed)

	assert.Equal(t, 0, h.store.count(), "uploaded asset removed after rollback")
	assert.Len(t, h.store.deleted, 1)

	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, messaging.NewCatalog().Text("pt-BR", messaging.MsgNoCredits), sent[0].Body)
}

func TestProcess_ExpiredTrialFailsAtClaim(t *testing.T) {
	h := newHarness(t)
	acc := testutil.CreateAccount(t, h.db, testutil.WithTrialEnd(time.Now().Add(-time.Hour)))
	job := testutil.CreateJob(t, h.db, acc.ID, "Qualquer coisa")

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	got := testutil.Reload(t, h.db, job.ID)
	assert.Equal(t, apperr.StageClaim, got.FailedStage)
	assert.Equal(t, 0, h.renderer.calls)
}

func TestProcess_AudioOverCeilingNeverReachesBackend(t *testing.T) {
	h := newHarness(t)
	backend := &countingSpeech{}
	h.orch.Transcriber = transcribe.NewService(probeOnly{seconds: 301}, backend, 300, time.Second)

	acc := testutil.CreateAccount(t, h.db)
	job := createAudioJob(t, h.db, acc.ID)

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err, "invalid audio is permanent, not retried")
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 0, backend.calls)

	got := testutil.Reload(t, h.db, job.ID)
	assert.Equal(t, apperr.StageTranscribe, got.FailedStage)
	assert.Contains(t, got.ErrorMessage, apperr.ErrInvalidAudio.Error())
	assert.Equal(t, 1, got.Attempts)

	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, messaging.NewCatalog().Text("pt-BR", messaging.MsgFailedAudio), sent[0].Body)
}

func TestProcess_AudioTranscribedOnceAcrossRetries(t *testing.T) {
	h := newHarness(t)
	h.renderer.failN = 1
	acc := testutil.CreateAccount(t, h.db)
	job := createAudioJob(t, h.db, acc.ID)

	_, err := h.orch.Process(context.Background(), job.ID, false)
	require.Error(t, err)

	mid := testutil.Reload(t, h.db, job.ID)
	assert.Equal(t, "Promoção de pizza R$ 29,90", mid.PromptText())

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, 1, h.transcriber.calls)

	sent := h.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Body, "Promoção de pizza")
	assert.NotEmpty(t, sent[1].MediaURL)
}

func TestProcess_RepeatedDeliveryIsSkipped(t *testing.T) {
	h := newHarness(t)
	acc := testutil.CreateAccount(t, h.db, testutil.WithCredits(0, 10))
	job := testutil.CreateJob(t, h.db, acc.ID, "Liquidação")

	_, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 1, testutil.ReloadAccount(t, h.db, acc.ID).CreditsUsed)
	assert.Equal(t, 1, h.notifier.Count())
	assert.Equal(t, 1, h.renderer.calls)
}

func TestProcess_HeldLeaseBlocksSecondWorker(t *testing.T) {
	h := newHarness(t)
	acc := testutil.CreateAccount(t, h.db)
	job := testutil.CreateJob(t, h.db, acc.ID, "Promoção")

	claimed, err := h.orch.claim(job.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 0, h.renderer.calls)
}

func TestProcess_ConcurrentJobsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	acc := testutil.CreateAccount(t, h.db, testutil.WithCredits(8, 10))
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, testutil.CreateJob(t, h.db, acc.ID, "Promo").ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, _ = h.orch.Process(context.Background(), id, true)
		}(id)
	}
	wg.Wait()

	var completed int64
	h.db.Model(&models.GenerationJob{}).Where("account_id = ? AND status = ?", acc.ID, models.JobCompleted).Count(&completed)
	assert.Equal(t, int64(2), completed)
	assert.Equal(t, 10, testutil.ReloadAccount(t, h.db, acc.ID).CreditsUsed)

	var jobs []models.GenerationJob
	require.NoError(t, h.db.Where("account_id = ?", acc.ID).Find(&jobs).Error)
	for i := range jobs {
		assert.True(t, jobs[i].IsTerminal())
		assertCoInvariant(t, &jobs[i])
	}
}

func TestProcess_NotificationFailureKeepsCompletion(t *testing.T) {
	h := newHarness(t)
	h.notifier.Err = errors.New("twilio 500")
	acc := testutil.CreateAccount(t, h.db)
	job := testutil.CreateJob(t, h.db, acc.ID, "Promoção")

	outcome, err := h.orch.Process(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	got := testutil.Reload(t, h.db, job.ID)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.True(t, strings.Contains(string(got.Metadata), "notification_error"))

	var record models.MessageRecord
	require.NoError(t, h.db.Where("job_id = ?", job.ID).First(&record).Error)
	assert.Equal(t, models.OutboundFailed, record.Status)
	assert.Equal(t, "twilio 500", record.Error)
}

func TestHandleTask(t *testing.T) {
	h := newHarness(t)
	acc := testutil.CreateAccount(t, h.db)
	job := testutil.CreateJob(t, h.db, acc.ID, "Promoção")

	task, err := queue.NewTask(TaskGenerate, GeneratePayload{JobID: job.ID}, 3)
	require.NoError(t, err)
	require.NoError(t, h.orch.HandleTask(context.Background(), task))
	assert.Equal(t, models.JobCompleted, testutil.Reload(t, h.db, job.ID).Status)

	bad, err := queue.NewTask(TaskGenerate, map[string]string{"job_id": ""}, 3)
	require.NoError(t, err)
	err = h.orch.HandleTask(context.Background(), bad)
	assert.ErrorIs(t, err, queue.ErrDiscard)
}

func TestHandleTask_FinalDeliveryFailsJob(t *testing.T) {
	h := newHarness(t)
	h.renderer.failN = 99
	acc := testutil.CreateAccount(t, h.db)
	job := testutil.CreateJob(t, h.db, acc.ID, "Promoção")

	task, err := queue.NewTask(TaskGenerate, GeneratePayload{JobID: job.ID}, 0)
	require.NoError(t, err)
	require.True(t, task.Final())

	require.NoError(t, h.orch.HandleTask(context.Background(), task))
	got := testutil.Reload(t, h.db, job.ID)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Equal(t, apperr.StageRender, got.FailedStage)
}

type countingSpeech struct{ calls int }

func (c *countingSpeech) Transcribe(ctx context.Context, wav []byte, lang string) (*transcribe.Transcript, error) {
	c.calls++
	return &transcribe.Transcript{Text: "texto"}, nil
}

type probeOnly struct{ seconds float64 }

func (p probeOnly) Probe(ctx context.Context, audio []byte) (transcribe.AudioInfo, error) {
	return transcribe.AudioInfo{DurationSeconds: p.seconds, HasAudio: true, Codec: "opus", Format: "ogg", SampleRate: 48000, Channels: 1}, nil
}

func (p probeOnly) Normalize(ctx context.Context, audio []byte) ([]byte, error) {
	return audio, nil
}
