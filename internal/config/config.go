package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/kapu/hololive-widget-go/pkg/errors"
)

const (
	OfficialSourceHTTP     = "http"
	OfficialSourcePostgres = "postgres"

	TargetBackendWebSocket = "websocket"
	TargetBackendRedis     = "redis"
)

type Config struct {
	Sources   SourcesConfig
	Cache     CacheConfig
	Pipeline  PipelineConfig
	Countdown CountdownConfig
	Events    EventsConfig
	Targets   TargetsConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Server    ServerConfig
	Logging   LoggingConfig
}

type SourcesConfig struct {
	Official    string
	OfficialURL string
	CustomURL   string
	EventsURL   string
	ScheduleURL string
}

type CacheConfig struct {
	Enabled       bool
	TTL           time.Duration
	DedupInFlight bool
}

type PipelineConfig struct {
	RefreshCron string
	RetryDelay  time.Duration
}

type CountdownConfig struct {
	TickInterval time.Duration
	SetupDelay   time.Duration
}

type EventsConfig struct {
	SyncInterval time.Duration
}

type TargetsConfig struct {
	Backend string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type ServerConfig struct {
	Addr     string
	Timezone string
}

type LoggingConfig struct {
	Level string
	File  string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Sources: SourcesConfig{
			Official:    strings.ToLower(getEnv("OFFICIAL_SOURCE", OfficialSourceHTTP)),
			OfficialURL: getEnv("OFFICIAL_URL", ""),
			CustomURL:   getEnv("CUSTOM_URL", ""),
			EventsURL:   getEnv("EVENTS_URL", ""),
			ScheduleURL: getEnv("SCHEDULE_URL", ""),
		},
		Cache: CacheConfig{
			Enabled:       getEnvBool("CACHE_ENABLED", true),
			TTL:           time.Duration(getEnvInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
			DedupInFlight: getEnvBool("CACHE_DEDUP_INFLIGHT", true),
		},
		Pipeline: PipelineConfig{
			RefreshCron: getEnv("REFRESH_CRON", "0 * * * *"),
			RetryDelay:  time.Duration(getEnvInt("RETRY_DELAY_SECONDS", 30)) * time.Second,
		},
		Countdown: CountdownConfig{
			TickInterval: time.Duration(getEnvInt("COUNTDOWN_TICK_MS", 1000)) * time.Millisecond,
			SetupDelay:   time.Duration(getEnvInt("COUNTDOWN_SETUP_DELAY_MS", 100)) * time.Millisecond,
		},
		Events: EventsConfig{
			SyncInterval: time.Duration(getEnvInt("EVENTS_SYNC_SECONDS", 300)) * time.Second,
		},
		Targets: TargetsConfig{
			Backend: strings.ToLower(getEnv("TARGET_BACKEND", TargetBackendWebSocket)),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "holo"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "holo"),
		},
		Server: ServerConfig{
			Addr:     getEnv("HTTP_ADDR", ":8080"),
			Timezone: getEnv("TIMEZONE", "Asia/Tokyo"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Sources.Official {
	case OfficialSourceHTTP:
		if c.Sources.OfficialURL == "" {
			return errors.NewValidationError("OFFICIAL_URL is required", "OFFICIAL_URL", "")
		}
	case OfficialSourcePostgres:
	default:
		return errors.NewValidationError("OFFICIAL_SOURCE must be http or postgres", "OFFICIAL_SOURCE", c.Sources.Official)
	}
	if c.Sources.CustomURL == "" {
		return errors.NewValidationError("CUSTOM_URL is required", "CUSTOM_URL", "")
	}
	if c.Cache.TTL <= 0 {
		return errors.NewValidationError("CACHE_TTL_SECONDS must be positive", "CACHE_TTL_SECONDS", c.Cache.TTL.Seconds())
	}
	if !gronx.IsValid(c.Pipeline.RefreshCron) {
		return errors.NewValidationError("REFRESH_CRON is not a valid cron expression", "REFRESH_CRON", c.Pipeline.RefreshCron)
	}
	if c.Pipeline.RetryDelay <= 0 {
		return errors.NewValidationError("RETRY_DELAY_SECONDS must be positive", "RETRY_DELAY_SECONDS", c.Pipeline.RetryDelay.Seconds())
	}
	if c.Countdown.TickInterval <= 0 {
		return errors.NewValidationError("COUNTDOWN_TICK_MS must be positive", "COUNTDOWN_TICK_MS", c.Countdown.TickInterval.Milliseconds())
	}
	if c.Countdown.SetupDelay < 0 {
		return errors.NewValidationError("COUNTDOWN_SETUP_DELAY_MS must not be negative", "COUNTDOWN_SETUP_DELAY_MS", c.Countdown.SetupDelay.Milliseconds())
	}
	if c.Events.SyncInterval <= 0 {
		return errors.NewValidationError("EVENTS_SYNC_SECONDS must be positive", "EVENTS_SYNC_SECONDS", c.Events.SyncInterval.Seconds())
	}
	switch c.Targets.Backend {
	case TargetBackendWebSocket, TargetBackendRedis:
	default:
		return errors.NewValidationError("TARGET_BACKEND must be websocket or redis", "TARGET_BACKEND", c.Targets.Backend)
	}
	return nil
}

// EventsEnabled reports whether any event source is configured.
func (c *Config) EventsEnabled() bool {
	return c.Sources.EventsURL != "" || c.Sources.ScheduleURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
