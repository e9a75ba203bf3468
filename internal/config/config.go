package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	TierFree = "free"
	TierBYOK = "byok"
)

var (
	ErrMissingDatabaseDSN   = errors.New("DB_DSN is required")
	ErrMissingSessionSecret = errors.New("SESSION_SECRET is required")
	ErrMissingEncryptionKey = errors.New("ENCRYPTION_KEY is required (64 hex chars)")
	ErrMissingProviderKey   = errors.New("AI_API_KEY is required")
	ErrMissingResetSecret   = errors.New("USAGE_RESET_SECRET is required outside dev mode")
	ErrMissingSMTPHost      = errors.New("SMTP_HOST is required outside dev mode")
)

type Config struct {
	ListenAddr string
	PublicURL  string
	DevMode    bool

	DB       DBConfig
	Redis    RedisConfig
	Session  SessionConfig
	Crypto   CryptoConfig
	Provider ProviderConfig
	SMTP     SMTPConfig
	Usage    UsageConfig
	Worker   WorkerConfig
	HTTP     HTTPConfig
	Rate     RateConfig
	Log      LogConfig
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	MailStream    string
	MailGroup     string
	MailBlock     time.Duration
	ResetThrottle time.Duration
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

type CryptoConfig struct {
	Key []byte
}

type ProviderConfig struct {
	Kind    string
	BaseURL string
	APIKey  string
	Model   string
}

type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

type UsageConfig struct {
	ResetSecret string
	FreeLimit   int
}

type WorkerConfig struct {
	Concurrency  int
	ConsumerName string
	MaxRetries   int
}

type HTTPConfig struct {
	ClientTimeout time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
}

type RateConfig struct {
	PerHour int64
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: mustEnv("LISTEN_ADDR", ":8080"),
		PublicURL:  strings.TrimSuffix(mustEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		DevMode:    mustBool("DEV_MODE", false),
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "postgres")),
			DSN:         mustEnv("DB_DSN", ""),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:          mustEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      mustEnv("REDIS_PASSWORD", ""),
			DB:            mustInt("REDIS_DB", 0),
			MailStream:    mustEnv("MAIL_STREAM", "tubebrief:mail"),
			MailGroup:     mustEnv("MAIL_GROUP", "tubebrief-mailers"),
			MailBlock:     mustDuration("MAIL_BLOCK", 5*time.Second),
			ResetThrottle: mustDuration("RESET_EMAIL_THROTTLE", 10*time.Minute),
		},
		Session: SessionConfig{
			Secret: mustEnv("SESSION_SECRET", ""),
			TTL:    mustDuration("SESSION_TTL", 7*24*time.Hour),
		},
		Provider: ProviderConfig{
			Kind:    strings.ToLower(mustEnv("AI_PROVIDER", "gemini")),
			BaseURL: mustEnv("AI_BASE_URL", ""),
			APIKey:  mustEnv("AI_API_KEY", ""),
			Model:   mustEnv("AI_MODEL", "gemini-2.0-flash"),
		},
		SMTP: SMTPConfig{
			Host: mustEnv("SMTP_HOST", ""),
			Port: mustEnv("SMTP_PORT", "587"),
			User: mustEnv("SMTP_USER", ""),
			Pass: mustEnv("SMTP_PASS", ""),
			From: mustEnv("SMTP_FROM", "no-reply@tubebrief.app"),
		},
		Usage: UsageConfig{
			ResetSecret: mustEnv("USAGE_RESET_SECRET", ""),
			FreeLimit:   mustInt("FREE_TIER_LIMIT", 30),
		},
		Worker: WorkerConfig{
			Concurrency:  mustInt("WORKER_CONCURRENCY", 2),
			ConsumerName: mustEnv("WORKER_CONSUMER_NAME", hostnameOr("mailer")),
			MaxRetries:   mustInt("WORKER_MAX_RETRIES", 3),
		},
		HTTP: HTTPConfig{
			ClientTimeout: mustDuration("HTTP_TIMEOUT", 60*time.Second),
			MaxRetries:    mustInt("HTTP_MAX_RETRIES", 2),
			BackoffBase:   mustDuration("HTTP_BACKOFF_BASE", 400*time.Millisecond),
		},
		Rate: RateConfig{
			PerHour: int64(mustInt("RATE_LIMIT_PER_HOUR", 20)),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.Session.Secret == "" {
		return nil, ErrMissingSessionSecret
	}
	if cfg.Provider.APIKey == "" {
		return nil, ErrMissingProviderKey
	}
	if cfg.Usage.ResetSecret == "" && !cfg.DevMode {
		return nil, ErrMissingResetSecret
	}
	// Without an SMTP host the mailer only logs, which is a dev-only mode.
	if cfg.SMTP.Host == "" && !cfg.DevMode {
		return nil, ErrMissingSMTPHost
	}
	if cfg.Usage.FreeLimit < 1 {
		return nil, fmt.Errorf("FREE_TIER_LIMIT must be >= 1, got %d", cfg.Usage.FreeLimit)
	}

	key, err := loadEncryptionKey()
	if err != nil {
		return nil, err
	}
	cfg.Crypto = CryptoConfig{Key: key}

	return cfg, nil
}

func loadEncryptionKey() ([]byte, error) {
	raw := mustEnv("ENCRYPTION_KEY", "")
	if raw == "" {
		return nil, ErrMissingEncryptionKey
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode ENCRYPTION_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes after hex decode, got %d", len(key))
	}
	return key, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}
