// Package config provides configuration loading and validation for gradebot.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// minAuthSecret is the shortest accepted CHAT_AUTH_SECRET.
const minAuthSecret = 16

// Log formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config holds all application configuration.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	ChatAuthSecret  string
	ShutdownTimeout time.Duration

	BackendBaseURL string
	BackendTimeout time.Duration
	BackendRetries int

	AdminIDs       []string
	AdminChannelID string

	SessionStore           string
	RedisURL               string
	SQLitePath             string
	SessionIdleTimeout     time.Duration
	SessionCleanupInterval time.Duration

	TransitionTimeout time.Duration
	Workers           int
	MaxPendingPerUser int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables. A .env file, if
// any, must already have been loaded into the environment.
func Load() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		AllowedOrigins: getEnvList("WS_ALLOWED_ORIGINS", []string{"*"}),
		ChatAuthSecret: getEnv("CHAT_AUTH_SECRET", ""),
		BackendBaseURL: getEnv("BACKEND_BASE_URL", ""),
		AdminIDs:       getEnvList("ADMIN_IDS", nil),
		AdminChannelID: getEnv("ADMIN_CHANNEL_ID", ""),
		SessionStore:   strings.ToLower(getEnv("SESSION_STORE", StoreMemory)),
		RedisURL:       getEnv("REDIS_URL", ""),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/sessions.db"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", FormatJSON)),
	}

	var err error
	cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	collect(err)
	cfg.BackendTimeout, err = getEnvDuration("BACKEND_TIMEOUT", 15*time.Second)
	collect(err)
	cfg.BackendRetries, err = getEnvInt("BACKEND_RETRIES", 2)
	collect(err)
	cfg.SessionIdleTimeout, err = getEnvDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute)
	collect(err)
	cfg.SessionCleanupInterval, err = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Minute)
	collect(err)
	cfg.TransitionTimeout, err = getEnvDuration("TRANSITION_TIMEOUT", 20*time.Second)
	collect(err)
	cfg.Workers, err = getEnvInt("WORKERS", 4)
	collect(err)
	cfg.MaxPendingPerUser, err = getEnvInt("QUEUE_MAX_PENDING", 32)
	collect(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are set and values are in range.
func (c *Config) Validate() error {
	var errs []error

	if c.BackendBaseURL == "" {
		errs = append(errs, fmt.Errorf("BACKEND_BASE_URL is required"))
	} else if u, err := url.Parse(c.BackendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_BASE_URL %q is not an absolute URL", c.BackendBaseURL))
	}
	if len(c.AdminIDs) == 0 {
		errs = append(errs, fmt.Errorf("ADMIN_IDS is required"))
	}
	if c.AdminChannelID == "" {
		errs = append(errs, fmt.Errorf("ADMIN_CHANNEL_ID is required"))
	}
	switch {
	case c.ChatAuthSecret == "":
		errs = append(errs, fmt.Errorf("CHAT_AUTH_SECRET is required"))
	case len(c.ChatAuthSecret) < minAuthSecret:
		errs = append(errs, fmt.Errorf("CHAT_AUTH_SECRET must be at least %d bytes", minAuthSecret))
	}
	if c.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("LISTEN_ADDR cannot be empty"))
	}

	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("SQLITE_PATH is required when SESSION_STORE=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be memory, redis or sqlite, got %q", c.SessionStore))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
		{"BACKEND_TIMEOUT", c.BackendTimeout},
		{"SESSION_IDLE_TIMEOUT", c.SessionIdleTimeout},
		{"SESSION_CLEANUP_INTERVAL", c.SessionCleanupInterval},
		{"TRANSITION_TIMEOUT", c.TransitionTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", p.name))
		}
	}
	if c.BackendRetries < 0 {
		errs = append(errs, fmt.Errorf("BACKEND_RETRIES must be >= 0"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be >= 1"))
	}
	if c.MaxPendingPerUser < 1 {
		errs = append(errs, fmt.Errorf("QUEUE_MAX_PENDING must be >= 1"))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != FormatJSON && c.LogFormat != FormatText {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not a log level", c.LogLevel)
	}
	return level, nil
}

// Redacted returns the configuration as printable key/value pairs with
// credentials removed.
func (c *Config) Redacted() [][2]string {
	return [][2]string{
		{"LISTEN_ADDR", c.ListenAddr},
		{"WS_ALLOWED_ORIGINS", strings.Join(c.AllowedOrigins, ",")},
		{"CHAT_AUTH_SECRET", redactSecret(c.ChatAuthSecret)},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout.String()},
		{"BACKEND_BASE_URL", redactURL(c.BackendBaseURL)},
		{"BACKEND_TIMEOUT", c.BackendTimeout.String()},
		{"BACKEND_RETRIES", strconv.Itoa(c.BackendRetries)},
		{"ADMIN_IDS", strings.Join(c.AdminIDs, ",")},
		{"ADMIN_CHANNEL_ID", c.AdminChannelID},
		{"SESSION_STORE", c.SessionStore},
		{"REDIS_URL", redactURL(c.RedisURL)},
		{"SQLITE_PATH", c.SQLitePath},
		{"SESSION_IDLE_TIMEOUT", c.SessionIdleTimeout.String()},
		{"SESSION_CLEANUP_INTERVAL", c.SessionCleanupInterval.String()},
		{"TRANSITION_TIMEOUT", c.TransitionTimeout.String()},
		{"WORKERS", strconv.Itoa(c.Workers)},
		{"QUEUE_MAX_PENDING", strconv.Itoa(c.MaxPendingPerUser)},
		{"LOG_LEVEL", c.LogLevel},
		{"LOG_FORMAT", c.LogFormat},
	}
}

func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "xxxxx"
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a duration", key, value)
	}
	return d, nil
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
