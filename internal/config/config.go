// path: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds process-wide settings read from the environment, in the
// same getEnv(key, default) style as the teacher's internal/config/config.go.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Webhook    WebhookConfig
	Run        RunConfig
	Downstream DownstreamConfig
	Platforms  PlatformsConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host string
	Port string
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// WebhookConfig configures the optional out-of-cycle intake endpoint
// (spec.md §1: "a webhook intake may enqueue work for the same pipeline").
type WebhookConfig struct {
	Enabled   bool
	Addr      string
	JWTSecret string
}

// DownstreamConfig points at the ActivityPub-compatible republishing target
// (spec.md §4.F: "an ActivityPub-compatible service").
type DownstreamConfig struct {
	BaseURL           string
	Token             string
	PublishRatePerMin int
	PublishBurst      int
}

// PlatformsConfig carries the upstream source adapters' own base URLs,
// overridable for self-hosted scraping facades or PeerTube instances
// (spec.md §6, per-source Extra config is for source-level overrides; these
// are process-wide defaults for the adapters that need a facade address).
type PlatformsConfig struct {
	TwitterScrapeBaseURL string
	VideoPlatformBaseURL string
}

// RunConfig bounds a single orchestrator run.
type RunConfig struct {
	GlobalMinIntervalMinutes int
	GlobalSourceLimit        int
	RunDeadlineSeconds       int
	PerPlatformConcurrency   int
	CriticalErrorThreshold   int
}

// Load builds a Config from the process environment.
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "relay"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host: getEnv("REDIS_HOST", "localhost"),
			Port: getEnv("REDIS_PORT", "6379"),
		},
		Webhook: WebhookConfig{
			Enabled:   getEnvBool("WEBHOOK_INTAKE_ENABLED", false),
			Addr:      getEnv("WEBHOOK_INTAKE_ADDR", ":8090"),
			JWTSecret: getEnv("WEBHOOK_JWT_SECRET", ""),
		},
		Run: RunConfig{
			GlobalMinIntervalMinutes: getEnvInt("GLOBAL_MIN_INTERVAL_MINUTES", 5),
			GlobalSourceLimit:        getEnvInt("GLOBAL_SOURCE_LIMIT", 200),
			RunDeadlineSeconds:       getEnvInt("RUN_DEADLINE_SECONDS", 600),
			PerPlatformConcurrency:   getEnvInt("PER_PLATFORM_CONCURRENCY", 4),
			CriticalErrorThreshold:   getEnvInt("CRITICAL_ERROR_THRESHOLD", 5),
		},
		Downstream: DownstreamConfig{
			BaseURL:           getEnv("DOWNSTREAM_BASE_URL", ""),
			Token:             getEnv("DOWNSTREAM_TOKEN", ""),
			PublishRatePerMin: getEnvInt("DOWNSTREAM_PUBLISH_RATE_PER_MIN", 30),
			PublishBurst:      getEnvInt("DOWNSTREAM_PUBLISH_BURST", 5),
		},
		Platforms: PlatformsConfig{
			TwitterScrapeBaseURL: getEnv("TWITTERSCRAPE_BASE_URL", ""),
			VideoPlatformBaseURL: getEnv("VIDEO_PLATFORM_BASE_URL", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
