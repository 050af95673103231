package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/config"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/services"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testAuthToken     = "twilio-auth-token"
	testPublicURL     = "https://api.nexusart.test/api/webhooks/whatsapp"
	testBillingSecret = "Bearer billing-secret"
	testJWTSecret     = "jwt-secret"
	testSender        = "+5511987654321"
)

type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, jobID)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

type nopMailer struct{}

func (nopMailer) Send(ctx context.Context, toEmail, toName, subject, plainText string) error {
	return nil
}

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	notifier *testutil.Notifier
	enqueuer *fakeEnqueuer
	intake   *services.IntakeService
	channels *services.ChannelService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       testutil.NewDB(t),
		notifier: &testutil.Notifier{},
		enqueuer: &fakeEnqueuer{},
	}
	l := ledger.New()
	cfg := &config.Config{JWTSecret: testJWTSecret}

	env.intake = services.NewIntakeService(env.db, l, env.notifier, env.enqueuer, time.Second)
	subs := services.NewSubscriptionService(env.db, l, nopMailer{})
	env.channels = services.NewChannelService(env.db, l, env.notifier, time.Second)

	webhook := NewWebhookHandler(env.intake, subs, messaging.NewSignatureValidator(testAuthToken), testPublicURL, testBillingSecret)
	jobs := NewJobHandler(services.NewJobService(env.db, l, env.enqueuer))
	channels := NewChannelHandler(env.channels)
	account := NewAccountHandler(services.NewAccountService(env.db, l))

	app := fiber.New()
	app.Post("/api/webhooks/whatsapp", webhook.HandleWhatsApp)
	app.Post("/api/webhooks/billing", webhook.HandleBilling)

	protected := app.Group("/api", middleware.JWTProtected(cfg))
	protected.Post("/jobs", jobs.Create)
	protected.Get("/jobs", jobs.List)
	protected.Get("/jobs/:id", jobs.Get)
	protected.Post("/channels", channels.Bind)
	protected.Get("/channels", channels.List)
	protected.Post("/channels/:id/verify", channels.Verify)
	protected.Delete("/channels/:id", channels.Deactivate)
	protected.Get("/account/credits", account.Credits)

	env.app = app
	return env
}

func sign(t *testing.T, rawURL string, form url.Values) string {
	t.Helper()
	pairs := make([]string, 0, len(form))
	for k := range form {
		pairs = append(pairs, k+form.Get(k))
	}
	sort.Strings(pairs)

	mac := hmac.New(sha1.New, []byte(testAuthToken))
	mac.Write([]byte(rawURL + strings.Join(pairs, "")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func inboundForm(sid, body string) url.Values {
	return url.Values{
		"MessageSid": {sid},
		"AccountSid": {"AC00000000000000000000000000000000"},
		"From":       {"whatsapp:" + testSender},
		"To":         {"whatsapp:+14155238886"},
		"Body":       {body},
		"NumMedia":   {"0"},
	}
}

func (e *testEnv) postWhatsApp(t *testing.T, form url.Values, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", signature)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func newJSONRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// do sends a JSON request, authenticated as accountID unless it is uuid.Nil.
func (e *testEnv) do(t *testing.T, method, path string, accountID uuid.UUID, body interface{}) *http.Response {
	t.Helper()
	req := newJSONRequest(t, method, path, body)
	if accountID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+token(t, accountID))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func token(t *testing.T, accountID uuid.UUID) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": accountID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
