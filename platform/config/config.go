// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// ConfirmationConfig provides the timing of the buyer and agent confirmation calls.
type ConfirmationConfig interface {
	GetAgentCallDelay() time.Duration
	GetBuyerConfirmWindow() time.Duration
	GetVoicemailWindow() time.Duration
}

// RotationConfig provides settings for the stale-lead rotation sweep.
type RotationConfig interface {
	GetSweepInterval() time.Duration
	GetExpiryWindow() time.Duration
	GetSweepBatchSize() int
	GetSweepClaimTTL() time.Duration
	GetRotationRestartConfirmation() bool
}

// CallProviderConfig provides settings for the outbound voice/SMS provider.
type CallProviderConfig interface {
	GetCallProviderBaseURL() string
	GetCallProviderAPIKey() string
	GetCallProviderFromNumber() string
	GetCallProviderDefaultRegion() string
	GetCallScriptsPath() string
	GetPublicBaseURL() string
	GetCallWebhookSecret() string
	GetCallProviderBreakerFailures() int
	GetCallProviderBreakerTimeout() time.Duration
}

// BrokerConfig provides settings for the notification broker.
type BrokerConfig interface {
	GetBrokerChannelPrefix() string
	GetRabbitMQURL() string
	GetRabbitMQExchange() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                         string
	HTTPAddr                    string
	DatabaseURL                 string
	MigrationsEnabled           bool
	JWTAccessSecret             string
	CORSAllowAll                bool
	CORSOrigins                 []string
	CORSAllowCreds              bool
	RedisURL                    string
	RedisTLSInsecure            bool
	AsynqQueueName              string
	AsynqConcurrency            int
	AgentCallDelay              time.Duration
	BuyerConfirmWindow          time.Duration
	VoicemailWindow             time.Duration
	SweepInterval               time.Duration
	ExpiryWindow                time.Duration
	SweepBatchSize              int
	SweepClaimTTL               time.Duration
	RotationRestartConfirmation bool
	CallProviderBaseURL         string
	CallProviderAPIKey          string
	CallProviderFromNumber      string
	CallProviderDefaultRegion   string
	CallScriptsPath             string
	PublicBaseURL               string
	CallWebhookSecret           string
	CallProviderBreakerFailures int
	CallProviderBreakerTimeout  time.Duration
	BrokerChannelPrefix         string
	RabbitMQURL                 string
	RabbitMQExchange            string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// ConfirmationConfig implementation
func (c *Config) GetAgentCallDelay() time.Duration     { return c.AgentCallDelay }
func (c *Config) GetBuyerConfirmWindow() time.Duration { return c.BuyerConfirmWindow }
func (c *Config) GetVoicemailWindow() time.Duration    { return c.VoicemailWindow }

// RotationConfig implementation
func (c *Config) GetSweepInterval() time.Duration      { return c.SweepInterval }
func (c *Config) GetExpiryWindow() time.Duration       { return c.ExpiryWindow }
func (c *Config) GetSweepBatchSize() int               { return c.SweepBatchSize }
func (c *Config) GetSweepClaimTTL() time.Duration      { return c.SweepClaimTTL }
func (c *Config) GetRotationRestartConfirmation() bool { return c.RotationRestartConfirmation }

// CallProviderConfig implementation
func (c *Config) GetCallProviderBaseURL() string       { return c.CallProviderBaseURL }
func (c *Config) GetCallProviderAPIKey() string        { return c.CallProviderAPIKey }
func (c *Config) GetCallProviderFromNumber() string    { return c.CallProviderFromNumber }
func (c *Config) GetCallProviderDefaultRegion() string { return c.CallProviderDefaultRegion }
func (c *Config) GetCallScriptsPath() string           { return c.CallScriptsPath }
func (c *Config) GetPublicBaseURL() string             { return c.PublicBaseURL }
func (c *Config) GetCallWebhookSecret() string         { return c.CallWebhookSecret }
func (c *Config) GetCallProviderBreakerFailures() int  { return c.CallProviderBreakerFailures }
func (c *Config) GetCallProviderBreakerTimeout() time.Duration {
	return c.CallProviderBreakerTimeout
}

// BrokerConfig implementation
func (c *Config) GetBrokerChannelPrefix() string { return c.BrokerChannelPrefix }
func (c *Config) GetRabbitMQURL() string         { return c.RabbitMQURL }
func (c *Config) GetRabbitMQExchange() string    { return c.RabbitMQExchange }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                         getEnv("APP_ENV", "development"),
		HTTPAddr:                    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		MigrationsEnabled:           strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:             getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                corsAllowAll,
		CORSOrigins:                 corsOrigins,
		CORSAllowCreds:              strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                    getEnv("REDIS_URL", ""),
		RedisTLSInsecure:            strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:              getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:            mustInt(getEnv("ASYNQ_CONCURRENCY", "10"), 10),
		AgentCallDelay:              durationOr(getEnv("AGENT_CALL_DELAY", "2m"), 2*time.Minute),
		BuyerConfirmWindow:          durationOr(getEnv("BUYER_CONFIRM_WINDOW", "30s"), 30*time.Second),
		VoicemailWindow:             durationOr(getEnv("VOICEMAIL_WINDOW", "60s"), 60*time.Second),
		SweepInterval:               durationOr(getEnv("ROTATION_SWEEP_INTERVAL", "5m"), 5*time.Minute),
		ExpiryWindow:                durationOr(getEnv("ROTATION_EXPIRY_WINDOW", "15m"), 15*time.Minute),
		SweepBatchSize:              mustInt(getEnv("ROTATION_BATCH_SIZE", "50"), 50),
		SweepClaimTTL:               durationOr(getEnv("ROTATION_CLAIM_TTL", "2m"), 2*time.Minute),
		RotationRestartConfirmation: strings.EqualFold(getEnv("ROTATION_RESTART_CONFIRMATION", "false"), "true"),
		CallProviderBaseURL:         getEnv("CALL_PROVIDER_BASE_URL", ""),
		CallProviderAPIKey:          getEnv("CALL_PROVIDER_API_KEY", ""),
		CallProviderFromNumber:      getEnv("CALL_PROVIDER_FROM_NUMBER", ""),
		CallProviderDefaultRegion:   getEnv("CALL_PROVIDER_DEFAULT_REGION", "US"),
		CallScriptsPath:             getEnv("CALL_SCRIPTS_PATH", ""),
		PublicBaseURL:               strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CallWebhookSecret:           getEnv("CALL_WEBHOOK_SECRET", ""),
		CallProviderBreakerFailures: mustInt(getEnv("CALL_PROVIDER_BREAKER_FAILURES", "5"), 5),
		CallProviderBreakerTimeout:  durationOr(getEnv("CALL_PROVIDER_BREAKER_TIMEOUT", "30s"), 30*time.Second),
		BrokerChannelPrefix:         getEnv("BROKER_CHANNEL_PREFIX", "tours"),
		RabbitMQURL:                 getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:            getEnv("RABBITMQ_EXCHANGE", "tours.events"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("ROTATION_BATCH_SIZE must be positive")
	}
	if c.ExpiryWindow <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("ROTATION_EXPIRY_WINDOW and ROTATION_SWEEP_INTERVAL must be positive durations")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func mustInt(value string, fallback int) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || result <= 0 {
		return fallback
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
