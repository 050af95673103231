package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis / queue
	RedisURL          string
	QueueName         string
	WorkerCount       int
	QueueMaxRetries   int
	RetryBackoffBase  time.Duration
	RetryBackoffCap   time.Duration
	JobTimeout        time.Duration
	JobLease          time.Duration
	StalePendingAfter time.Duration

	// Per-call timeouts
	MediaTimeout      time.Duration
	TranscribeTimeout time.Duration
	EnhanceTimeout    time.Duration
	RenderTimeout     time.Duration
	StorageTimeout    time.Duration
	NotifyTimeout     time.Duration

	// JWT (account-facing API)
	JWTSecret string

	// Billing collaborator webhook
	BillingWebhookSecret string

	// Twilio WhatsApp
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	WebhookPublicURL string
	NotifyRatePerSec float64

	// AI Providers
	GLMAPIKey string
	GLMAPIURL string
	GLMModel  string

	DeepSeekAPIKey string
	DeepSeekAPIURL string
	DeepSeekModel  string

	OpenAIAPIKey     string
	OpenAIAPIURL     string
	OpenAIModel      string
	WhisperModel     string
	ImageModel       string
	RenderBackend    string
	BreakerThreshold uint32
	BreakerCooldown  time.Duration

	// Audio
	MaxAudioSeconds float64
	FFmpegPath      string
	FFprobePath     string

	// Storage
	StorageBackend  string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	PublicBaseURL   string
	LocalStorageDir string
	MaxImageDim     int
	JPEGQuality     int

	// Email
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// Retention
	RetentionDays    int
	LogRetentionDays int

	// Server
	Port             string
	CORSOrigins      string
	WorkerHealthAddr string
	AppEnv           string
}

func Load() *Config {
	// .env is optional; real environment wins.
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "nexusart"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueName:         getEnv("QUEUE_NAME", "generation"),
		WorkerCount:       getInt("WORKER_COUNT", 4),
		QueueMaxRetries:   getInt("QUEUE_MAX_RETRIES", 3),
		RetryBackoffBase:  parseDuration(getEnv("RETRY_BACKOFF_BASE", "30s")),
		RetryBackoffCap:   parseDuration(getEnv("RETRY_BACKOFF_CAP", "10m")),
		JobTimeout:        parseDuration(getEnv("JOB_TIMEOUT", "5m")),
		JobLease:          parseDuration(getEnv("JOB_LEASE", "6m")),
		StalePendingAfter: parseDuration(getEnv("STALE_PENDING_AFTER", "5m")),

		MediaTimeout:      parseDuration(getEnv("MEDIA_TIMEOUT", "30s")),
		TranscribeTimeout: parseDuration(getEnv("TRANSCRIBE_TIMEOUT", "90s")),
		EnhanceTimeout:    parseDuration(getEnv("ENHANCE_TIMEOUT", "20s")),
		RenderTimeout:     parseDuration(getEnv("RENDER_TIMEOUT", "120s")),
		StorageTimeout:    parseDuration(getEnv("STORAGE_TIMEOUT", "30s")),
		NotifyTimeout:     parseDuration(getEnv("NOTIFY_TIMEOUT", "15s")),

		JWTSecret: getEnv("JWT_SECRET", ""),

		BillingWebhookSecret: getEnv("BILLING_WEBHOOK_SECRET", ""),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       getEnv("TWILIO_WHATSAPP_NUMBER", ""),
		WebhookPublicURL: getEnv("WEBHOOK_PUBLIC_URL", ""),
		NotifyRatePerSec: getFloat("NOTIFY_RATE_PER_SEC", 10),

		GLMAPIKey: getEnv("GLM_API_KEY", ""),
		GLMAPIURL: getEnv("GLM_API_URL", "https://api.z.ai/api/paas/v4"),
		GLMModel:  getEnv("GLM_MODEL", "glm-4-flash"),

		DeepSeekAPIKey: getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekAPIURL: getEnv("DEEPSEEK_API_URL", "https://api.deepseek.com/v1"),
		DeepSeekModel:  getEnv("DEEPSEEK_MODEL", "deepseek-chat"),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL:     getEnv("OPENAI_API_URL", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		WhisperModel:     getEnv("WHISPER_MODEL", "whisper-1"),
		ImageModel:       getEnv("IMAGE_MODEL", "dall-e-3"),
		RenderBackend:    getEnv("RENDER_BACKEND", "placeholder"),
		BreakerThreshold: uint32(getInt("BREAKER_THRESHOLD", 5)),
		BreakerCooldown:  parseDuration(getEnv("BREAKER_COOLDOWN", "60s")),

		MaxAudioSeconds: getFloat("MAX_AUDIO_SECONDS", 300),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),

		StorageBackend:  getEnv("STORAGE_BACKEND", "disk"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "http://localhost:8080/media"),
		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", "./data/media"),
		MaxImageDim:     getInt("MAX_IMAGE_DIM", 1080),
		JPEGQuality:     getInt("JPEG_QUALITY", 85),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", "no-reply@nexusart.com.br"),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "NexusArt"),

		RetentionDays:    getInt("RETENTION_DAYS", 90),
		LogRetentionDays: getInt("LOG_RETENTION_DAYS", 30),

		Port:             getEnv("PORT", "8080"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),
		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", ":9090"),
		AppEnv:           getEnv("APP_ENV", "development"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// TwilioEnabled reports whether outbound WhatsApp delivery and signature checks are configured.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}
