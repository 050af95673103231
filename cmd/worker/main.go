package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/config"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/database"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/enhance"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/logging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/pipeline"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/queue"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/render"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/services"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/storage"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/transcribe"
)

func main() {
	logging.Setup()
	slog.Info("starting generation worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
	pgLogHandler := logging.AttachDatabase(database.DB, "worker")
	defer pgLogHandler.Stop()

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	taskQueue := queue.NewRedisQueue(rdb, cfg.QueueName)
	enqueuer := pipeline.NewEnqueuer(taskQueue, cfg.QueueMaxRetries)

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: cfg.AppEnv,
			ServerName:  "nexusart-worker",
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	backend, err := newStorageBackend(ctx, cfg)
	if err != nil {
		slog.Error("storage backend init failed", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	store := storage.NewStore(backend, storage.Options{
		MaxDimension: cfg.MaxImageDim,
		Quality:      cfg.JPEGQuality,
		Timeout:      cfg.StorageTimeout,
	})

	var notifier messaging.Notifier = messaging.LogNotifier{}
	if cfg.TwilioEnabled() {
		notifier = messaging.NewTwilioNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, cfg.NotifyRatePerSec)
	}

	l := ledger.New()
	orchestrator := pipeline.New(pipeline.Deps{
		DB:          database.DB,
		Ledger:      l,
		Media:       messaging.NewMediaFetcher(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.MediaTimeout),
		Transcriber: transcribe.NewService(transcribe.NewFFmpegCodec(cfg.FFmpegPath, cfg.FFprobePath), newSpeechBackend(cfg), cfg.MaxAudioSeconds, cfg.TranscribeTimeout),
		Enhancer:    enhance.NewService(cfg.EnhanceTimeout, enhanceProviders(cfg)...),
		Renderer:    render.NewService(newRenderBackend(cfg), cfg.RenderTimeout),
		Store:       store,
		Notifier:    notifier,
		Catalog:     messaging.NewCatalog(),
	}, pipeline.Options{
		Lease:         cfg.JobLease,
		MaxAttempts:   cfg.QueueMaxRetries + 1,
		NotifyTimeout: cfg.NotifyTimeout,
	})

	registry := queue.NewRegistry()
	registry.Register(pipeline.TaskGenerate, orchestrator.HandleTask)

	// Tasks a crashed worker left in flight go back to the ready list.
	if n, err := taskQueue.RecoverProcessing(ctx); err != nil {
		slog.Error("recover in-flight tasks failed", "error", err)
	} else if n > 0 {
		slog.Warn("recovered in-flight tasks", "count", n)
	}

	maintenance := services.NewMaintenanceService(database.DB, l, store, enqueuer, notifier, services.MaintenanceConfig{
		Retention:          time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		StalePendingAfter:  cfg.StalePendingAfter,
		ReleasedStaleAfter: cfg.RetryBackoffCap + cfg.StalePendingAfter,
		NotifyTimeout:      cfg.NotifyTimeout,
	})
	subscriptions := services.NewSubscriptionService(database.DB, l,
		messaging.NewSendGridMailer(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName))

	scheduler, err := queue.NewScheduler(schedules(cfg, taskQueue, maintenance, subscriptions), 10*time.Minute)
	if err != nil {
		slog.Error("scheduler init failed", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	slog.Info("scheduler started", "entries", scheduler.Entries())

	pool := queue.NewPool(taskQueue, registry, queue.PoolConfig{
		Workers:     cfg.WorkerCount,
		JobTimeout:  cfg.JobTimeout,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffCap:  cfg.RetryBackoffCap,
	})

	healthSrv := newHealthServer(cfg.WorkerHealthAddr, pool, taskQueue)
	if healthSrv != nil {
		go func() {
			slog.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("health server error", "error", err)
			}
		}()
	}

	slog.Info("worker pool starting", "workers", cfg.WorkerCount, "queue", cfg.QueueName)
	pool.Run(ctx)

	slog.Info("shutting down worker...")
	scheduler.Stop()
	if healthSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("health server shutdown error", "error", err)
		}
	}
	stats := pool.Stats()
	slog.Info("worker stopped", "acked", stats.Acked, "retried", stats.Retried, "buried", stats.Buried)
}

func schedules(cfg *config.Config, q *queue.RedisQueue, m *services.MaintenanceService, subs *services.SubscriptionService) []queue.Schedule {
	return []queue.Schedule{
		{Name: "retention-sweep", Spec: "0 3 * * *", Run: func(ctx context.Context) error {
			n, err := m.SweepRetention(ctx, time.Now())
			if n > 0 {
				slog.Info("retention sweep", "deleted", n)
			}
			return err
		}},
		{Name: "expire-trials", Spec: "0 */6 * * *", Run: func(ctx context.Context) error {
			n, err := subs.ExpireTrials(ctx, time.Now())
			if n > 0 {
				slog.Info("trials expired", "count", n)
			}
			return err
		}},
		{Name: "requeue-stale", Spec: "*/5 * * * *", Run: func(ctx context.Context) error {
			n, err := m.RequeueStale(ctx, time.Now())
			if n > 0 {
				slog.Warn("stale jobs re-enqueued", "count", n)
			}
			return err
		}},
		{Name: "low-credit-alerts", Spec: "0 9 * * *", Run: func(ctx context.Context) error {
			n, err := m.LowCreditAlerts(ctx)
			if n > 0 {
				slog.Info("low credit alerts sent", "count", n)
			}
			return err
		}},
		{Name: "system-log-cleanup", Spec: "30 3 * * *", Run: func(ctx context.Context) error {
			retention := time.Duration(cfg.LogRetentionDays) * 24 * time.Hour
			n, err := logging.CleanupOlderThan(database.DB.WithContext(ctx), retention, time.Now())
			if n > 0 {
				slog.Info("system logs cleaned", "deleted", n)
			}
			return err
		}},
		{Name: "queue-depth", Spec: "@every 30s", Run: func(ctx context.Context) error {
			d, err := q.Depth(ctx)
			if err != nil {
				return err
			}
			slog.Info("queue depth", "ready", d.Ready, "processing", d.Processing, "delayed", d.Delayed, "dead", d.Dead)
			return nil
		}},
	}
}

func newStorageBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Backend(ctx, storage.S3Config{
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	}
	return storage.NewDiskBackend(cfg.LocalStorageDir, cfg.PublicBaseURL)
}

func newSpeechBackend(cfg *config.Config) transcribe.SpeechBackend {
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, voice notes will fail transcription")
	}
	return transcribe.NewWhisperBackend(cfg.OpenAIAPIKey, cfg.OpenAIAPIURL, cfg.WhisperModel)
}

// enhanceProviders returns the configured chat providers in fallback order.
func enhanceProviders(cfg *config.Config) []enhance.Provider {
	breaker := enhance.BreakerSettings{FailureThreshold: cfg.BreakerThreshold, Cooldown: cfg.BreakerCooldown}

	var providers []enhance.Provider
	if cfg.GLMAPIKey != "" {
		providers = append(providers, enhance.WithBreaker(
			enhance.NewOpenAIProvider("glm", cfg.GLMAPIKey, cfg.GLMAPIURL, cfg.GLMModel), breaker))
	}
	if cfg.DeepSeekAPIKey != "" {
		providers = append(providers, enhance.WithBreaker(
			enhance.NewOpenAIProvider("deepseek", cfg.DeepSeekAPIKey, cfg.DeepSeekAPIURL, cfg.DeepSeekModel), breaker))
	}
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, enhance.WithBreaker(
			enhance.NewOpenAIProvider("openai", cfg.OpenAIAPIKey, cfg.OpenAIAPIURL, cfg.OpenAIModel), breaker))
	}
	if len(providers) == 0 {
		slog.Warn("no enhancement providers configured, using structured templates only")
	}
	return providers
}

func newRenderBackend(cfg *config.Config) render.Backend {
	if cfg.RenderBackend == "openai" && cfg.OpenAIAPIKey != "" {
		return render.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIAPIURL, cfg.ImageModel)
	}
	return render.NewPlaceholderBackend()
}

func newHealthServer(addr string, pool *queue.Pool, q *queue.RedisQueue) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"tasks":  pool.Stats(),
		})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		depth, err := q.Depth(checkCtx)
		if err == nil {
			err = database.Ping()
		}
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "not_ready", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready", "queue": depth})
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
