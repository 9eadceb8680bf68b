package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
// It is built once at process start by LoadConfig and passed explicitly to the
// components that need it; nothing reads the environment after that.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	RedisAddr   string
	IntakeQueue string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	StorageBackend  string // "minio" or "file"
	StoragePath     string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	SignedURLExpiry time.Duration

	JobTTL          time.Duration
	PollInterval    time.Duration
	PollConcurrency int
	PollTimeout     time.Duration
	SweepInterval   time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A .env file is honored when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		IntakeQueue: getEnv("INTAKE_QUEUE", "mediaforge:intake"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		StorageBackend:  getEnv("STORAGE_BACKEND", "file"),
		StoragePath:     getEnv("STORAGE_PATH", "./storage"),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnv("MINIO_BUCKET", "mediaforge"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		SignedURLExpiry: time.Minute * time.Duration(getEnvInt("SIGNED_URL_EXPIRY_MINUTES", 60)),

		JobTTL:          time.Minute * time.Duration(getEnvInt("JOB_TTL_MINUTES", 30)),
		PollInterval:    time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)),
		PollConcurrency: getEnvInt("POLL_CONCURRENCY", 8),
		PollTimeout:     time.Second * time.Duration(getEnvInt("POLL_TIMEOUT_SECONDS", 20)),
		SweepInterval:   time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 5)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.PollConcurrency <= 0 {
		return nil, fmt.Errorf("POLL_CONCURRENCY must be positive")
	}
	if cfg.StorageBackend == "minio" && cfg.MinioEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
