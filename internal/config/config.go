// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Development-only fallback secrets. Load refuses to start in production without
// real secrets; in development these are used with a loud warning so a dev process
// never silently behaves like a deployed one.
const (
	devAccessSecret  = "dev-insecure-access-secret"
	devRefreshSecret = "dev-insecure-refresh-secret"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// HTTPRequestTimeout bounds each request, and with it every store call made on its behalf (e.g. "15s").
	HTTPRequestTimeout string `mapstructure:"HTTP_REQUEST_TIMEOUT"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret signs access tokens. Required in production.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTRefreshSecret signs refresh tokens. Kept separate from JWTSecret so a leaked
	// access-signing key cannot forge refresh tokens. Required in production.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h" = 7d).
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// SessionLimit is the max number of live sessions per user; older ones are deleted.
	SessionLimit int `mapstructure:"SESSION_LIMIT"`
	// SessionSweepInterval is how often the background sweeper runs (e.g. "1h").
	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`
	// SessionStaleAfter is the age past which never-revoked sessions are deleted (e.g. "720h" = 30d).
	SessionStaleAfter string `mapstructure:"SESSION_STALE_AFTER"`
	// SessionRevokedRetention is how long revoked sessions are kept before deletion (e.g. "168h" = 7d).
	SessionRevokedRetention string `mapstructure:"SESSION_REVOKED_RETENTION"`
	// Env is the application environment ("development" or "production").
	Env string `mapstructure:"APP_ENV"`

	// RedisURL enables the redis-backed login lockout store when set (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`
	// LoginLockoutThreshold is the failed-login count that triggers a lockout.
	LoginLockoutThreshold int `mapstructure:"LOGIN_LOCKOUT_THRESHOLD"`
	// LoginLockoutWindow is how long a lockout lasts (e.g. "15m").
	LoginLockoutWindow string `mapstructure:"LOGIN_LOCKOUT_WINDOW"`

	// Telemetry (optional). When Kafka brokers are set, auth events are emitted to Kafka.
	// KafkaBrokers is a comma-separated list of broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for auth audit events.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// OTLPEndpoint enables OTLP export of traces/metrics/logs when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// Worker-only: Loki URL for the audit worker to push events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required
// fields are invalid; in particular a production deployment without both JWT secrets does not start.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_REQUEST_TIMEOUT", "15s")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("SESSION_LIMIT", 5)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")
	v.SetDefault("SESSION_STALE_AFTER", "720h")       // 30d
	v.SetDefault("SESSION_REVOKED_RETENTION", "168h") // 7d
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOGIN_LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOGIN_LOCKOUT_WINDOW", "15m")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "traffic-monitor-audit")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "traffic-monitor-audit-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.SessionLimit < 1 {
		return nil, errors.New("config: SESSION_LIMIT must be at least 1")
	}

	if err := cfg.applySecretPolicy(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applySecretPolicy enforces the signing-secret rules: production requires both
// secrets; development fills in insecure defaults with a warning.
func (c *Config) applySecretPolicy() error {
	missing := make([]string, 0, 2)
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.JWTRefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}
	if len(missing) == 0 {
		return nil
	}
	if c.Env == "production" {
		return errors.New("config: missing required secrets in production: " + strings.Join(missing, ", "))
	}
	log.Printf("config: WARNING: %s not set; using insecure development defaults", strings.Join(missing, ", "))
	if c.JWTSecret == "" {
		c.JWTSecret = devAccessSecret
	}
	if c.JWTRefreshSecret == "" {
		c.JWTRefreshSecret = devRefreshSecret
	}
	return nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// RequestTimeout parses HTTPRequestTimeout. Returns 15s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	return parseDuration(c.HTTPRequestTimeout, 15*time.Second)
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// SweepInterval parses SessionSweepInterval. Returns 1h if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SessionSweepInterval, time.Hour)
}

// StaleAfter parses SessionStaleAfter. Returns 720h if unset or invalid.
func (c *Config) StaleAfter() time.Duration {
	return parseDuration(c.SessionStaleAfter, 720*time.Hour)
}

// RevokedRetention parses SessionRevokedRetention. Returns 168h if unset or invalid.
func (c *Config) RevokedRetention() time.Duration {
	return parseDuration(c.SessionRevokedRetention, 168*time.Hour)
}

// LockoutWindow parses LoginLockoutWindow. Returns 15m if unset or invalid.
func (c *Config) LockoutWindow() time.Duration {
	return parseDuration(c.LoginLockoutWindow, 15*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the audit pipeline is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
