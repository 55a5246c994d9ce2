package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	LMS        LMSConfig
	Classifier ClassifierConfig
	Queue      QueueConfig
	Notifier   NotifierConfig
	Storage    StorageConfig
	Stats      StatsConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the verification key for gateway-issued actor tokens.
// Authentication itself lives in front of this service; we only decode
// the actor identity for the audit ledger.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LMSConfig points the submission executor at the external LMS.
type LMSConfig struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// ClassifierConfig addresses the optical extraction collaborator.
type ClassifierConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MinConfidence float64
}

// QueueConfig is the drain policy: how many times a retryable delivery
// failure is absorbed before the entry is dead-lettered, the pause between
// in-drain retries, and how long a claim may sit before a later pass treats
// it as orphaned. Exposed as configuration, never hardcoded.
type QueueConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	DrainBatch      int
	StaleClaimAfter time.Duration
}

// NotifierConfig governs best-effort student notifications.
type NotifierConfig struct {
	Enabled    bool
	SMTPHost   string
	SMTPPort   int
	Username   string
	Password   string
	From       string
	Workers    int
	MaxRetries int
}

// StorageConfig controls scan intake and export storage.
type StorageConfig struct {
	ScanDir          string
	ExportDir        string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// StatsConfig tunes statistics caching.
type StatsConfig struct {
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing .env is fine; the environment and defaults cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnMaxIdleTime: parseDuration(v.GetString("DB_CONN_MAX_IDLE_TIME"), 30*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.LMS = LMSConfig{
		BaseURL:         v.GetString("LMS_BASE_URL"),
		Token:           v.GetString("LMS_TOKEN"),
		Timeout:         parseDuration(v.GetString("LMS_TIMEOUT"), 15*time.Second),
		BreakerFailures: v.GetInt("LMS_BREAKER_FAILURES"),
		BreakerCooldown: parseDuration(v.GetString("LMS_BREAKER_COOLDOWN"), time.Minute),
	}

	cfg.Classifier = ClassifierConfig{
		BaseURL:       v.GetString("CLASSIFIER_BASE_URL"),
		Timeout:       parseDuration(v.GetString("CLASSIFIER_TIMEOUT"), 30*time.Second),
		MinConfidence: v.GetFloat64("CLASSIFIER_MIN_CONFIDENCE"),
	}

	cfg.Queue = QueueConfig{
		MaxRetries:      v.GetInt("QUEUE_MAX_RETRIES"),
		RetryBackoff:    parseDuration(v.GetString("QUEUE_RETRY_BACKOFF"), 30*time.Second),
		DrainBatch:      v.GetInt("QUEUE_DRAIN_BATCH"),
		StaleClaimAfter: parseDuration(v.GetString("QUEUE_STALE_CLAIM_AFTER"), 10*time.Minute),
	}

	cfg.Notifier = NotifierConfig{
		Enabled:    v.GetBool("NOTIFIER_ENABLED"),
		SMTPHost:   v.GetString("NOTIFIER_SMTP_HOST"),
		SMTPPort:   v.GetInt("NOTIFIER_SMTP_PORT"),
		Username:   v.GetString("NOTIFIER_SMTP_USERNAME"),
		Password:   v.GetString("NOTIFIER_SMTP_PASSWORD"),
		From:       v.GetString("NOTIFIER_FROM"),
		Workers:    v.GetInt("NOTIFIER_WORKERS"),
		MaxRetries: v.GetInt("NOTIFIER_MAX_RETRIES"),
	}

	maxUploadSize := v.GetInt64("STORAGE_MAX_FILE_SIZE")
	if maxUploadSize <= 0 {
		maxUploadSize = 50 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		ScanDir:          v.GetString("STORAGE_SCAN_DIR"),
		ExportDir:        v.GetString("STORAGE_EXPORT_DIR"),
		MaxFileSizeBytes: maxUploadSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("STORAGE_ALLOWED_MIME_TYPES")),
	}

	cfg.Stats = StatsConfig{
		CacheTTL: parseDuration(v.GetString("STATS_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_bridge")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "30m")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LMS_BASE_URL", "http://localhost:8100")
	v.SetDefault("LMS_TOKEN", "")
	v.SetDefault("LMS_TIMEOUT", "15s")
	v.SetDefault("LMS_BREAKER_FAILURES", 5)
	v.SetDefault("LMS_BREAKER_COOLDOWN", "1m")

	v.SetDefault("CLASSIFIER_BASE_URL", "")
	v.SetDefault("CLASSIFIER_TIMEOUT", "30s")
	v.SetDefault("CLASSIFIER_MIN_CONFIDENCE", 0.6)

	v.SetDefault("QUEUE_MAX_RETRIES", 3)
	v.SetDefault("QUEUE_RETRY_BACKOFF", "30s")
	v.SetDefault("QUEUE_DRAIN_BATCH", 20)
	v.SetDefault("QUEUE_STALE_CLAIM_AFTER", "10m")

	v.SetDefault("NOTIFIER_ENABLED", false)
	v.SetDefault("NOTIFIER_SMTP_HOST", "localhost")
	v.SetDefault("NOTIFIER_SMTP_PORT", 587)
	v.SetDefault("NOTIFIER_SMTP_USERNAME", "")
	v.SetDefault("NOTIFIER_SMTP_PASSWORD", "")
	v.SetDefault("NOTIFIER_FROM", "exam-bridge@localhost")
	v.SetDefault("NOTIFIER_WORKERS", 1)
	v.SetDefault("NOTIFIER_MAX_RETRIES", 3)

	v.SetDefault("STORAGE_SCAN_DIR", "./scans")
	v.SetDefault("STORAGE_EXPORT_DIR", "./exports")
	v.SetDefault("STORAGE_MAX_FILE_SIZE", 50*1024*1024)
	v.SetDefault("STORAGE_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png,image/tiff")

	v.SetDefault("STATS_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
