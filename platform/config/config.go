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

// RedisConfig provides Redis connection settings shared by the lock and cache.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// RotationConfig provides tuning for the assignment transaction.
type RotationConfig interface {
	GetRotationLockTimeout() time.Duration
	GetRotationLockTTL() time.Duration
	GetRotationMaxAttempts() int
	GetRotationRetryBaseDelay() time.Duration
}

// StatsConfig provides settings for the assignment statistics module.
type StatsConfig interface {
	GetStatsCacheTTL() time.Duration
	GetStatsLocation() *time.Location
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	MigrateOnStart         bool
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	RotationLockTimeout    time.Duration
	RotationLockTTL        time.Duration
	RotationMaxAttempts    int
	RotationRetryBaseDelay time.Duration
	StatsCacheTTL          time.Duration
	StatsLocation          *time.Location
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

// RedisConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) IsRedisEnabled() bool       { return c.RedisURL != "" }

// RotationConfig implementation
func (c *Config) GetRotationLockTimeout() time.Duration    { return c.RotationLockTimeout }
func (c *Config) GetRotationLockTTL() time.Duration        { return c.RotationLockTTL }
func (c *Config) GetRotationMaxAttempts() int              { return c.RotationMaxAttempts }
func (c *Config) GetRotationRetryBaseDelay() time.Duration { return c.RotationRetryBaseDelay }

// StatsConfig implementation
func (c *Config) GetStatsCacheTTL() time.Duration { return c.StatsCacheTTL }
func (c *Config) GetStatsLocation() *time.Location {
	if c.StatsLocation == nil {
		return time.UTC
	}
	return c.StatsLocation
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	location, err := time.LoadLocation(getEnv("STATS_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		MigrateOnStart:         strings.EqualFold(getEnv("MIGRATE_ON_START", "true"), "true"),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "rotation"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		RotationLockTimeout:    mustDuration(getEnv("ROTATION_LOCK_TIMEOUT", "3s")),
		RotationLockTTL:        mustDuration(getEnv("ROTATION_LOCK_TTL", "10s")),
		RotationMaxAttempts:    mustInt(getEnv("ROTATION_MAX_ATTEMPTS", "3")),
		RotationRetryBaseDelay: mustDuration(getEnv("ROTATION_RETRY_BASE_DELAY", "50ms")),
		StatsCacheTTL:          mustDuration(getEnv("STATS_CACHE_TTL", "30s")),
		StatsLocation:          location,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.RotationLockTimeout <= 0 {
		return nil, fmt.Errorf("ROTATION_LOCK_TIMEOUT must be a positive duration")
	}
	if cfg.RotationMaxAttempts < 1 {
		return nil, fmt.Errorf("ROTATION_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
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
