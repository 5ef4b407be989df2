// Package config handles loading and managing application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database connection
	Database DatabaseConfig

	// Mercado Pago gateway configuration
	MercadoPago MercadoPagoConfig

	// Escrow and pricing rules
	Escrow EscrowConfig

	// Payout transfer endpoint and outbox worker
	Payouts PayoutConfig

	// External profile/pet/catalog service
	Directory DirectoryConfig

	// Security settings
	Security SecurityConfig

	// RabbitMQ event publishing
	Broker BrokerConfig

	// Redis backed rate limiting
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	GinMode         string // "debug", "release", or "test"
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the storage DSN. postgres:// URLs select PostgreSQL,
// anything else is treated as a SQLite DSN.
type DatabaseConfig struct {
	URL string
}

// MercadoPagoConfig holds gateway credentials and preference callbacks.
type MercadoPagoConfig struct {
	AccessToken             string
	WebhookSecret           string
	RejectInvalidSignatures bool
	NotificationURL         string
	SuccessURL              string
	FailureURL              string
	PendingURL              string
	Currency                string
	Timeout                 time.Duration
}

// EscrowConfig holds the commission and reservation defaults.
type EscrowConfig struct {
	CommissionPct decimal.Decimal
	DefaultLead   time.Duration
}

// PayoutConfig holds transfer endpoint and outbox worker settings.
type PayoutConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
	MaxAttempts  int
	BatchSize    int
}

// DirectoryConfig holds the profile/catalog service configuration.
type DirectoryConfig struct {
	BaseURL string
	APIKey  string
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	JWTSecret      string
	InternalAPIKey string
}

// BrokerConfig holds RabbitMQ settings. An empty URL disables publishing.
type BrokerConfig struct {
	URL   string
	Queue string
}

// RedisConfig holds the redis connection used by the rate limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig configures the token bucket.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

// Load reads configuration from environment variables, after loading a .env
// file when one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			GinMode:         getEnv("GIN_MODE", "debug"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "file:petcare.db?_pragma=busy_timeout(5000)"),
		},
		MercadoPago: MercadoPagoConfig{
			AccessToken:             getEnv("MP_ACCESS_TOKEN", ""),
			WebhookSecret:           getEnv("MP_WEBHOOK_SECRET", ""),
			RejectInvalidSignatures: getEnvBool("MP_REJECT_INVALID_SIGNATURE", true),
			NotificationURL:         getEnv("MP_NOTIFICATION_URL", "http://localhost:8080/webhooks/mercadopago"),
			SuccessURL:              getEnv("MP_SUCCESS_URL", "http://localhost:3000/reservations/payment/success"),
			FailureURL:              getEnv("MP_FAILURE_URL", "http://localhost:3000/reservations/payment/failure"),
			PendingURL:              getEnv("MP_PENDING_URL", "http://localhost:3000/reservations/payment/pending"),
			Currency:                getEnv("CURRENCY", "ARS"),
			Timeout:                 getEnvDuration("MP_TIMEOUT", 15*time.Second),
		},
		Escrow: EscrowConfig{
			CommissionPct: getEnvDecimal("PLATFORM_COMMISSION_PCT", decimal.NewFromInt(10)),
			DefaultLead:   getEnvDuration("RESERVATION_DEFAULT_LEAD", 24*time.Hour),
		},
		Payouts: PayoutConfig{
			BaseURL:      getEnv("PAYOUT_BASE_URL", ""),
			APIKey:       getEnv("PAYOUT_API_KEY", ""),
			Timeout:      getEnvDuration("PAYOUT_TIMEOUT", 10*time.Second),
			PollInterval: getEnvDuration("PAYOUT_POLL_INTERVAL", 30*time.Second),
			MaxAttempts:  getEnvInt("PAYOUT_MAX_ATTEMPTS", 8),
			BatchSize:    getEnvInt("PAYOUT_BATCH_SIZE", 20),
		},
		Directory: DirectoryConfig{
			BaseURL: getEnv("DIRECTORY_BASE_URL", "http://localhost:8000"),
			APIKey:  getEnv("DIRECTORY_API_KEY", ""),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			InternalAPIKey: getEnv("INTERNAL_API_KEY", ""),
		},
		Broker: BrokerConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("EVENTS_QUEUE", "reservation.events"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			Capacity:       getEnvInt("RATE_LIMIT_CAPACITY", 60),
			RefillTokens:   getEnvInt("RATE_LIMIT_REFILL_TOKENS", 1),
			RefillInterval: getEnvDuration("RATE_LIMIT_REFILL_INTERVAL", time.Second),
			TTL:            getEnvDuration("RATE_LIMIT_TTL", 10*time.Minute),
			Prefix:         getEnv("RATE_LIMIT_PREFIX", "rl:petcare"),
		},
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	var problems []string

	if c.MercadoPago.AccessToken == "" {
		problems = append(problems, "MP_ACCESS_TOKEN is required")
	}
	if c.Security.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.Escrow.CommissionPct.IsNegative() || c.Escrow.CommissionPct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		problems = append(problems, fmt.Sprintf("PLATFORM_COMMISSION_PCT must be in [0, 100), got %s", c.Escrow.CommissionPct))
	}
	if c.Payouts.MaxAttempts < 1 {
		problems = append(problems, "PAYOUT_MAX_ATTEMPTS must be at least 1")
	}
	if c.MercadoPago.Currency == "" {
		problems = append(problems, "CURRENCY must not be empty")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer with a fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean with a fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
