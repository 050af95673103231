package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/database"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountCredits(t *testing.T) {
	env := newTestEnv(t)
	acc := testutil.CreateAccount(t, env.db,
		testutil.WithPlan(models.PlanBasic, models.SubscriptionActive),
		testutil.WithCredits(45, 50))

	resp := env.do(t, http.MethodGet, "/api/account/credits", acc.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var credits dto.CreditsResponse
	decode(t, resp, &credits)
	assert.Equal(t, 45, credits.Used)
	assert.Equal(t, 5, credits.Remaining)
	assert.Equal(t, models.PlanBasic, credits.PlanTier)
	assert.True(t, credits.CanGenerate)

	resp = env.do(t, http.MethodGet, "/api/account/credits", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccountCredits_RejectsForeignToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/account/credits", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	db := testutil.NewDB(t)
	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })

	app := fiber.New()
	app.Get("/ok", NewHealthHandler(stubPinger{}).Check)
	app.Get("/degraded", NewHealthHandler(stubPinger{err: errors.New("connection refused")}).Check)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health dto.HealthResponse
	decode(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Redis)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/degraded", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	decode(t, resp, &health)
	assert.Equal(t, "degraded", health.Status)
	assert.Contains(t, health.Redis, "connection refused")
}
