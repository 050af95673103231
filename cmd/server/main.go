package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/config"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/database"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/logging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/pipeline"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/queue"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/routes"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.TwilioEnabled() && cfg.WebhookPublicURL == "" {
		slog.Warn("WEBHOOK_PUBLIC_URL not set, signatures are checked against the request URL")
	}

	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	pgLogHandler := logging.AttachDatabase(database.DB, "server")

	// Queue
	rdb, err := queue.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		slog.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	taskQueue := queue.NewRedisQueue(rdb, cfg.QueueName)
	enqueuer := pipeline.NewEnqueuer(taskQueue, cfg.QueueMaxRetries)

	// Outbound messaging
	var notifier messaging.Notifier = messaging.LogNotifier{}
	var signatures *messaging.SignatureValidator
	if cfg.TwilioEnabled() {
		notifier = messaging.NewTwilioNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, cfg.NotifyRatePerSec)
		signatures = messaging.NewSignatureValidator(cfg.TwilioAuthToken)
	} else {
		slog.Warn("twilio not configured, outbound messages are logged and webhook signatures are not checked")
	}
	var mailer messaging.Mailer = messaging.NewSendGridMailer(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)

	l := ledger.New()
	intakeService := services.NewIntakeService(database.DB, l, notifier, enqueuer, cfg.NotifyTimeout)
	subscriptionService := services.NewSubscriptionService(database.DB, l, mailer)
	jobService := services.NewJobService(database.DB, l, enqueuer)
	channelService := services.NewChannelService(database.DB, l, notifier, cfg.NotifyTimeout)
	accountService := services.NewAccountService(database.DB, l)

	h := routes.Handlers{
		Health:  handlers.NewHealthHandler(taskQueue),
		Webhook: handlers.NewWebhookHandler(intakeService, subscriptionService, signatures, cfg.WebhookPublicURL, cfg.BillingWebhookSecret),
		Job:     handlers.NewJobHandler(jobService),
		Channel: handlers.NewChannelHandler(channelService),
		Account: handlers.NewAccountHandler(accountService),
	}

	if initSentry(cfg) {
		defer sentry.Flush(2 * time.Second)
	}

	app := newApp(cfg)
	routes.Setup(app, cfg, h)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	sig := <-quit
	slog.Info("shutdown requested", "signal", sig.String())

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	pgLogHandler.Stop()

	if err := rdb.Close(); err != nil {
		slog.Error("redis close error", "error", err)
	}
	database.Close()

	slog.Info("server stopped")
}

func initSentry(cfg *config.Config) bool {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		Environment:      cfg.AppEnv,
		ServerName:       "nexusart-server",
	})
	if err != nil {
		slog.Error("sentry init failed", "error", err)
		return false
	}
	return true
}

func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "nexusart",
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{Repanic: true}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${locals:requestid} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())

	// Twilio fetches disk-backed assets from this process.
	if cfg.StorageBackend == "disk" {
		app.Static("/media", cfg.LocalStorageDir, fiber.Static{MaxAge: 86400})
	}
	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code, message := fiber.StatusInternalServerError, "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, message = fe.Code, fe.Message
	}

	// 5xx detail stays in the logs
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "request_id", c.GetRespHeader(fiber.HeaderXRequestID), "error", err.Error())
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
