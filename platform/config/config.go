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

// AuthServiceConfig provides settings needed by the auth service.
type AuthServiceConfig interface {
	JWTConfig
	GetAccessTokenTTL() time.Duration
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// NoContactConfig provides the silence window for the no-contact sweep.
type NoContactConfig interface {
	GetNoContactHours() int
}

// WebhookConfig provides settings for inbound channel webhooks.
type WebhookConfig interface {
	GetWebhookAPIKey() string
	GetRedisURL() string
}

// WhatsAppConfig provides settings for the WhatsApp gateway client.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// InstagramConfig provides settings for the Instagram messaging client.
type InstagramConfig interface {
	GetInstagramAPIURL() string
	GetInstagramAccessToken() string
}

// HandoffConfig provides tunables for the handoff decision policy.
type HandoffConfig interface {
	GetHandoffHighValueBudget() float64
}

// ResponderConfig provides settings for the AI responder.
type ResponderConfig interface {
	GetLLMAPIKey() string
	GetLLMBaseURL() string
	GetLLMModel() string
	IsResponderEnabled() bool
}

// AlertConfig provides settings for operator alert emails.
type AlertConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetAlertFromAddress() string
	GetAlertToAddress() string
	IsAlertEmailEnabled() bool
}

// StorageConfig provides settings for MinIO media storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketMessageMedia() string
	IsMinIOEnabled() bool
}

// NotificationConfig provides settings for consultant notifications.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	JWTAccessSecret        string
	AccessTokenTTL         time.Duration
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	AppBaseURL             string
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	NoContactHours         int
	WebhookAPIKey          string
	WhatsAppURL            string
	WhatsAppKey            string
	WhatsAppDeviceID       string
	InstagramAPIURL        string
	InstagramAccessToken   string
	HandoffHighValueBudget float64
	LLMAPIKey              string
	LLMBaseURL             string
	LLMModel               string
	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	AlertFromAddress       string
	AlertToAddress         string
	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOUseSSL            bool
	MinIOMaxFileSize       int64
	MinioBucketMedia       string
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present (development convenience).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		JWTAccessSecret:        os.Getenv("JWT_ACCESS_SECRET"),
		AccessTokenTTL:         getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		CORSAllowAll:           getEnvBool("CORS_ALLOW_ALL", false),
		CORSOrigins:            splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		CORSAllowCreds:         getEnvBool("CORS_ALLOW_CREDENTIALS", true),
		AppBaseURL:             getEnv("APP_BASE_URL", "http://localhost:3000"),
		RedisURL:               os.Getenv("REDIS_URL"),
		RedisTLSInsecure:       getEnvBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:       getEnvInt("ASYNQ_CONCURRENCY", 10),
		NoContactHours:         getEnvInt("NO_CONTACT_HOURS", 24),
		WebhookAPIKey:          os.Getenv("WEBHOOK_API_KEY"),
		WhatsAppURL:            os.Getenv("WHATSAPP_GATEWAY_URL"),
		WhatsAppKey:            os.Getenv("WHATSAPP_GATEWAY_KEY"),
		WhatsAppDeviceID:       os.Getenv("WHATSAPP_DEVICE_ID"),
		InstagramAPIURL:        getEnv("INSTAGRAM_API_URL", "https://graph.facebook.com/v19.0"),
		InstagramAccessToken:   os.Getenv("INSTAGRAM_ACCESS_TOKEN"),
		HandoffHighValueBudget: getEnvFloat("HANDOFF_HIGH_VALUE_BUDGET", 10000),
		LLMAPIKey:              os.Getenv("LLM_API_KEY"),
		LLMBaseURL:             os.Getenv("LLM_BASE_URL"),
		LLMModel:               os.Getenv("LLM_MODEL"),
		SMTPHost:               os.Getenv("SMTP_HOST"),
		SMTPPort:               getEnvInt("SMTP_PORT", 587),
		SMTPUsername:           os.Getenv("SMTP_USERNAME"),
		SMTPPassword:           os.Getenv("SMTP_PASSWORD"),
		AlertFromAddress:       os.Getenv("ALERT_FROM_ADDRESS"),
		AlertToAddress:         os.Getenv("ALERT_TO_ADDRESS"),
		MinIOEndpoint:          os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:         os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:         os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:            getEnvBool("MINIO_USE_SSL", false),
		MinIOMaxFileSize:       getEnvInt64("MINIO_MAX_FILE_SIZE", 25*1024*1024),
		MinioBucketMedia:       getEnv("MINIO_BUCKET_MESSAGE_MEDIA", "message-media"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetAccessTokenTTL() time.Duration { return c.AccessTokenTTL }

func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool   { return c.CORSAllowCreds }
func (c *Config) GetAppBaseURL() string     { return c.AppBaseURL }
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetNoContactHours() int    { return c.NoContactHours }

func (c *Config) GetWebhookAPIKey() string { return c.WebhookAPIKey }

func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

func (c *Config) GetInstagramAPIURL() string      { return c.InstagramAPIURL }
func (c *Config) GetInstagramAccessToken() string { return c.InstagramAccessToken }

func (c *Config) GetHandoffHighValueBudget() float64 { return c.HandoffHighValueBudget }

func (c *Config) GetLLMAPIKey() string     { return c.LLMAPIKey }
func (c *Config) GetLLMBaseURL() string    { return c.LLMBaseURL }
func (c *Config) GetLLMModel() string      { return c.LLMModel }
func (c *Config) IsResponderEnabled() bool { return c.LLMAPIKey != "" }

func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetAlertFromAddress() string { return c.AlertFromAddress }
func (c *Config) GetAlertToAddress() string   { return c.AlertToAddress }
func (c *Config) IsAlertEmailEnabled() bool {
	return c.SMTPHost != "" && c.AlertToAddress != ""
}

func (c *Config) GetMinIOEndpoint() string          { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string         { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string         { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool              { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64        { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketMessageMedia() string { return c.MinioBucketMedia }
func (c *Config) IsMinIOEnabled() bool              { return c.MinIOEndpoint != "" }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
