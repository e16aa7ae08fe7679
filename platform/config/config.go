// Package config loads application configuration from the environment.
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
// Module-Specific Config Interfaces
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetMigrateOnStart() bool
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

// RedisConfig provides the Redis connection used by the change feed and asynq.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for follow-up reminder tasks.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	// GetSchedulerInline runs the reminder worker inside the API process.
	GetSchedulerInline() bool
}

// NotificationConfig provides settings for the notification coordinator.
type NotificationConfig interface {
	GetNotificationFeed() string
	GetFetchErrorAdvisoryInterval() time.Duration
	GetFollowUpAlertWindow() time.Duration
	GetFeedReconnectInitial() time.Duration
	GetFeedReconnectMax() time.Duration
	GetOptimisticRollback() bool
}

// EmailConfig provides SMTP settings for reminder mail.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// LeadsConfig provides settings for lead management.
type LeadsConfig interface {
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

const (
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
)

// Config holds all application configuration values.
type Config struct {
	Env            string
	HTTPAddr       string
	DatabaseURL    string
	MigrateOnStart bool

	JWTAccessSecret string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	SchedulerInline  bool

	NotificationFeed           string
	FetchErrorAdvisoryInterval time.Duration
	FollowUpAlertWindow        time.Duration
	FeedReconnectInitial       time.Duration
	FeedReconnectMax           time.Duration
	OptimisticRollback         bool

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	PhoneDefaultRegion string
}

func (c *Config) GetDatabaseURL() string  { return c.DatabaseURL }
func (c *Config) GetMigrateOnStart() bool { return c.MigrateOnStart }

func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool   { return c.CORSAllowCreds }
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetSchedulerInline() bool  { return c.SchedulerInline }

func (c *Config) GetNotificationFeed() string { return c.NotificationFeed }
func (c *Config) GetFetchErrorAdvisoryInterval() time.Duration {
	return c.FetchErrorAdvisoryInterval
}
func (c *Config) GetFollowUpAlertWindow() time.Duration  { return c.FollowUpAlertWindow }
func (c *Config) GetFeedReconnectInitial() time.Duration { return c.FeedReconnectInitial }
func (c *Config) GetFeedReconnectMax() time.Duration     { return c.FeedReconnectMax }
func (c *Config) GetOptimisticRollback() bool            { return c.OptimisticRollback }

func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")

	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrateOnStart: parseBool(getEnv("MIGRATE_ON_START", "true")),

		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: parseBool(getEnv("CORS_ALLOW_CREDENTIALS", "true")),

		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure: parseBool(getEnv("REDIS_TLS_INSECURE", "false")),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "followups"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "5"), 5),
		SchedulerInline:  parseBool(getEnv("SCHEDULER_INLINE", "false")),

		NotificationFeed:           strings.ToLower(getEnv("NOTIFICATION_FEED", FeedPostgres)),
		FetchErrorAdvisoryInterval: mustDuration(getEnv("NOTIFICATION_ERROR_ADVISORY_INTERVAL", "30s"), 30*time.Second),
		FollowUpAlertWindow:        mustDuration(getEnv("NOTIFICATION_FOLLOWUP_ALERT_WINDOW", "5m"), 5*time.Minute),
		FeedReconnectInitial:       mustDuration(getEnv("NOTIFICATION_FEED_RECONNECT_INITIAL", "1s"), time.Second),
		FeedReconnectMax:           mustDuration(getEnv("NOTIFICATION_FEED_RECONNECT_MAX", "1m"), time.Minute),
		OptimisticRollback:         parseBool(getEnv("NOTIFICATION_OPTIMISTIC_ROLLBACK", "true")),

		EmailEnabled:     parseBool(getEnv("EMAIL_ENABLED", "true")) && smtpHost != "",
		SMTPHost:         smtpHost,
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587"), 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Sales CRM"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		PhoneDefaultRegion: strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "US")),
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
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if !c.CORSAllowAll && len(c.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS must list at least one origin unless CORS_ALLOW_ALL is true")
	}
	if c.NotificationFeed != FeedPostgres && c.NotificationFeed != FeedRedis {
		return fmt.Errorf("NOTIFICATION_FEED must be %q or %q, got %q", FeedPostgres, FeedRedis, c.NotificationFeed)
	}
	if c.FeedReconnectInitial <= 0 || c.FeedReconnectMax < c.FeedReconnectInitial {
		return fmt.Errorf("NOTIFICATION_FEED_RECONNECT_MAX must be >= NOTIFICATION_FEED_RECONNECT_INITIAL > 0")
	}
	if c.EmailEnabled && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func parseBool(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

func mustDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func mustInt(value string, fallback int) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
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
