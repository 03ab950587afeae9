package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Webhook      WebhookConfig
	BotDetection BotDetectionConfig
	AGK          AGKConfig
	Dashboard    DashboardConfig
	SOL          SOLConfig
	Security     SecurityConfig
}

// SecurityConfig holds the required-at-boot secrets named in §6's
// configuration table: a token-encryption key alongside the webhook
// secret/token already covered by WebhookConfig.
type SecurityConfig struct {
	TokenEncryptionKey string
	PasskeyMACSecret   string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL               string
	FingerprintStream string
	ConsumerGroup     string
	MaxRetries        int
	IdentityCacheTTL  time.Duration
	MemeCacheTTL      time.Duration
}

type KafkaConfig struct {
	Brokers         []string
	DeadLetterTopic string
}

// WebhookConfig covers ingress auth + outbound forwarding (§4.4, §4.1, §6).
type WebhookConfig struct {
	Secret              string
	BearerToken         string
	AuthMethod          string // "signature" or "token"
	MaxRetries          int
	TimeoutSeconds      int
	ExponentialBackoff  bool
	OutboundURL         string
	RateLimitPerHour    int
	BotDetectLimitHour  int
}

type BotDetectionConfig struct {
	Enabled bool
}

// AGKConfig covers the Access Gatekeeper contract (§4.5).
type AGKConfig struct {
	MinBehaviorScore int
	MaxUploadBytes   int64
}

type DashboardConfig struct {
	RefreshSeconds int
	JWTSecret      string
}

// SOLConfig covers the Scheduled Operations Layer's retry discipline (§4.3).
type SOLConfig struct {
	RetryAttempts     int
	RetryBaseBackoff  time.Duration
	ReferralGraceHours int
}

// Load reads configuration from the environment, applying the defaults
// named in §6. A missing required key is a fatal config error (exit 1),
// surfaced to callers via the returned error.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:               getEnv("REDIS_URL", "redis://localhost:6379"),
			FingerprintStream: getEnv("REDIS_FINGERPRINT_STREAM", "fingerprint-records"),
			ConsumerGroup:     getEnv("REDIS_CONSUMER_GROUP", "maf-workers"),
			MaxRetries:        getIntEnv("REDIS_MAX_RETRIES", 3),
			IdentityCacheTTL:  getDurationEnv("IDENTITY_CACHE_TTL", 2*time.Hour),
			MemeCacheTTL:      getDurationEnv("MEME_CACHE_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:         getSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			DeadLetterTopic: getEnv("KAFKA_DEAD_LETTER_TOPIC", "skipped-payloads"),
		},
		Webhook: WebhookConfig{
			Secret:             getEnv("WEBHOOK_SECRET", ""),
			BearerToken:        getEnv("WEBHOOK_BEARER_TOKEN", ""),
			AuthMethod:         getEnv("WEBHOOK_AUTH_METHOD", "signature"),
			MaxRetries:         getIntEnv("WEBHOOK_MAX_RETRIES", 3),
			TimeoutSeconds:     getIntEnv("WEBHOOK_TIMEOUT", 10),
			ExponentialBackoff: getBoolEnv("WEBHOOK_EXPONENTIAL_BACKOFF", true),
			OutboundURL:        getEnv("WEBHOOK_OUTBOUND_URL", ""),
			RateLimitPerHour:   getIntEnv("WEBHOOK_RATE_LIMIT_PER_HOUR", 100),
			BotDetectLimitHour: getIntEnv("WEBHOOK_BOT_DETECT_RATE_LIMIT_PER_HOUR", 20),
		},
		BotDetection: BotDetectionConfig{
			Enabled: getBoolEnv("BOT_DETECTION_ENABLED", true),
		},
		AGK: AGKConfig{
			MinBehaviorScore: getIntEnv("MIN_BEHAVIOR_SCORE", 60),
			MaxUploadBytes:   int64(getIntEnv("AGK_MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Dashboard: DashboardConfig{
			RefreshSeconds: getIntEnv("DASHBOARD_REFRESH_SECONDS", 30),
			JWTSecret:      getEnv("DASHBOARD_JWT_SECRET", ""),
		},
		SOL: SOLConfig{
			RetryAttempts:      getIntEnv("SOL_RETRY_ATTEMPTS", 3),
			RetryBaseBackoff:   getDurationEnv("SOL_RETRY_BASE_BACKOFF", 5*time.Second),
			ReferralGraceHours: getIntEnv("FAKE_REFERRAL_GRACE_HOURS", 24),
		},
		Security: SecurityConfig{
			TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
			PasskeyMACSecret:   getEnv("PASSKEY_MAC_SECRET", ""),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Webhook.AuthMethod == "signature" && cfg.Webhook.Secret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_AUTH_METHOD=signature")
	}
	if cfg.Webhook.AuthMethod == "token" && cfg.Webhook.BearerToken == "" {
		return nil, fmt.Errorf("WEBHOOK_BEARER_TOKEN is required when WEBHOOK_AUTH_METHOD=token")
	}
	if cfg.Security.TokenEncryptionKey == "" {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			if i > start {
				out = append(out, value[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
