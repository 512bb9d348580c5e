package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	AWS        AWSConfig
	ContentGen ContentGenConfig
	OAuth      OAuthConfig
	Queue      QueueConfig
	Pipeline   PipelineConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	PublishTimeout     int    // write deadline of the synchronous publish route, seconds
	CORSAllowedOrigins string // comma-separated, or "*" for all
	WorkerInProcess    bool   // run the generation worker pool inside the API process
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/studio?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int // pool ceiling shared by the API and in-process workers
}

// RedisConfig holds Redis connection settings. Shared by the token cache and the job queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds settings for validating caller bearer tokens.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the bucket used to mirror generated videos.
// An empty VideosBucket disables mirroring.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	VideosBucket         string
	PresignExpireMinutes int
}

// ContentGenConfig points at the external generation backend.
type ContentGenConfig struct {
	BaseURL     string
	APIKey      string
	DummyMode   bool // route every call to the deterministic test endpoints
	TimeoutSec  int
	TTSProvider string
}

// OAuthConfig holds the YouTube OAuth client registration.
type OAuthConfig struct {
	ClientID           string
	ClientSecret       string
	RedirectURL        string
	Scopes             []string
	TokenEncryptionKey string // 32 bytes hex; empty stores bundles unencrypted
	RefreshWindowSec   int
}

// QueueConfig tunes the generation job queue.
type QueueConfig struct {
	Concurrency     int
	MaxRetry        int
	RetryBackoffSec int
	JobTimeoutMin   int // 0 = no per-job deadline
	RetentionHours  int
}

// PipelineConfig tunes the generation pipeline.
type PipelineConfig struct {
	StageTimeoutSec    int // 0 = no per-stage deadline
	TransitionDuration float64
	VideoMode          string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// StageTimeout returns the per-stage deadline, zero when disabled.
func (c PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSec) * time.Second
}

// RetryBackoff returns the delay between job retries.
func (c QueueConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSec) * time.Second
}

// JobTimeout returns the per-job deadline, zero when disabled.
func (c QueueConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMin) * time.Minute
}

// Retention returns how long finished jobs stay inspectable in the queue.
func (c QueueConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			PublishTimeout:     getEnvInt("PUBLISH_TIMEOUT_SEC", 900),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			WorkerInProcess:    getEnvBool("WORKER_IN_PROCESS", true),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "studio"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			VideosBucket:         getEnv("AWS_S3_VIDEOS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		ContentGen: ContentGenConfig{
			BaseURL:     getEnv("CONTENTGEN_BASE_URL", "http://localhost:9000"),
			APIKey:      getEnv("CONTENTGEN_API_KEY", ""),
			DummyMode:   getEnvBool("CONTENTGEN_DUMMY_MODE", false),
			TimeoutSec:  getEnvInt("CONTENTGEN_TIMEOUT_SEC", 0),
			TTSProvider: getEnv("CONTENTGEN_TTS_PROVIDER", "openai"),
		},
		OAuth: OAuthConfig{
			ClientID:           getEnv("YOUTUBE_CLIENT_ID", ""),
			ClientSecret:       getEnv("YOUTUBE_CLIENT_SECRET", ""),
			RedirectURL:        getEnv("YOUTUBE_REDIRECT_URL", "http://localhost:8080/auth/youtube/callback"),
			Scopes:             splitTrim(getEnv("YOUTUBE_SCOPES", ""), ","),
			TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
			RefreshWindowSec:   getEnvInt("OAUTH_REFRESH_WINDOW_SEC", 300),
		},
		Queue: QueueConfig{
			Concurrency:     getEnvInt("QUEUE_CONCURRENCY", 5),
			MaxRetry:        getEnvInt("QUEUE_MAX_RETRY", 0),
			RetryBackoffSec: getEnvInt("QUEUE_RETRY_BACKOFF_SEC", 10),
			JobTimeoutMin:   getEnvInt("QUEUE_JOB_TIMEOUT_MIN", 0),
			RetentionHours:  getEnvInt("QUEUE_RETENTION_HOURS", 24),
		},
		Pipeline: PipelineConfig{
			StageTimeoutSec:    getEnvInt("PIPELINE_STAGE_TIMEOUT_SEC", 0),
			TransitionDuration: getEnvFloat("PIPELINE_TRANSITION_DURATION", 0.5),
			VideoMode:          getEnv("PIPELINE_VIDEO_MODE", "simple"),
		},
	}

	if cfg.Queue.Concurrency < 1 {
		return nil, fmt.Errorf("QUEUE_CONCURRENCY must be positive, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Queue.MaxRetry < 0 {
		return nil, fmt.Errorf("QUEUE_MAX_RETRY must not be negative, got %d", cfg.Queue.MaxRetry)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
