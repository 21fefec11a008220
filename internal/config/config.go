// Package config loads and validates the Feedbase backend configuration using
// Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the FEEDBASE_ prefix (e.g.
// FEEDBASE_DATABASE_HOST overrides database.host in the YAML). This layering
// allows the same binary to run with a config.yaml in local development and
// with pure environment variables in containerized deployments.
//
// Two secrets are read from bare environment variables rather than this file:
// FEEDBASE_JWT_SECRET (session signing, see internal/auth/jwt.go) and the
// API-key HMAC secret configured under auth.api_keys.hmac_secret, which is
// usually injected as FEEDBASE_AUTH_API_KEYS_HMAC_SECRET.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Otp          OtpConfig          `mapstructure:"otp"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Smtp         SmtpConfig         `mapstructure:"smtp"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds the optional Redis connection used by the redis rate
// limiter backend. Ignored when rate_limiting.backend is "postgres".
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
}

// AuthConfig holds credential configuration
type AuthConfig struct {
	APIKeys    APIKeysConfig `mapstructure:"api_keys"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// LegacyPasswordLogin enables the deprecated bcrypt fallback login path.
	// Off by default; accounts lose the fallback permanently on first OTP login.
	LegacyPasswordLogin bool `mapstructure:"legacy_password_login"`
}

// APIKeysConfig holds API key issuance configuration
type APIKeysConfig struct {
	// Prefix is the recognizable literal tag at the front of every key.
	Prefix string `mapstructure:"prefix"`
	// Env is the environment marker embedded in the key (e.g. "live", "test")
	// so a leaked key's origin is obvious at a glance.
	Env string `mapstructure:"env"`
	// HMACSecret keys the stored digest of every API key. Required: without
	// it a database dump would be enough to forge credentials.
	HMACSecret string `mapstructure:"hmac_secret"`
}

// OtpConfig holds the one-time-passcode policy
type OtpConfig struct {
	CodeLength      int           `mapstructure:"code_length"`
	TTL             time.Duration `mapstructure:"ttl"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RequestsPerHour int           `mapstructure:"requests_per_hour"`
}

// RateLimitingConfig selects the tenant quota backend
type RateLimitingConfig struct {
	// Backend is "postgres" (atomic check-and-append over usage rows, the
	// default) or "redis" (redis_rate sliding window; usage rows are still
	// appended for accounting).
	Backend string `mapstructure:"backend"`
}

// SmtpConfig holds the outbound email channel for OTP delivery. When Host is
// empty the noop mailer is used and codes are not delivered.
type SmtpConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// LoggingConfig holds structured logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds the Prometheus side-channel settings
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds the audit trail destinations. Disabled by default; when
// enabled, at least one destination (file path or webhook URL) must be set.
type AuditConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	File    AuditFileConfig    `mapstructure:"file"`
	Webhook AuditWebhookConfig `mapstructure:"webhook"`
}

// AuditFileConfig holds the local JSON-lines audit log settings
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// AuditWebhookConfig holds the remote collector settings. AuthToken, when
// set, is sent as a bearer Authorization header.
type AuditWebhookConfig struct {
	URL           string        `mapstructure:"url"`
	AuthToken     string        `mapstructure:"auth_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	// OtpCleanupInterval controls how often expired OTP rows are deleted.
	// Housekeeping only; zero disables the job.
	OtpCleanupInterval time.Duration `mapstructure:"otp_cleanup_interval"`
	// OtpRetention keeps expired rows around this long for the rolling-hour
	// request cap and audit before deletion. Must be at least one hour or the
	// cap could be evaded by letting rows expire.
	OtpRetention time.Duration `mapstructure:"otp_retention"`
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/feedbase")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("FEEDBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures.
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in sensitive fields so secrets can live in the
	// process environment while the YAML stays committable.
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Auth.APIKeys.HMACSecret = expandEnv(cfg.Auth.APIKeys.HMACSecret)
	cfg.Smtp.Password = expandEnv(cfg.Smtp.Password)
	cfg.Audit.Webhook.AuthToken = expandEnv(cfg.Audit.Webhook.AuthToken)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables to config keys.
// viper.BindEnv only errors when called with zero keys; since every key here
// is a non-empty hardcoded string, any error indicates a programming bug and
// is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.url",
		"redis.password",

		// Auth
		"auth.api_keys.prefix",
		"auth.api_keys.env",
		"auth.api_keys.hmac_secret",
		"auth.session_ttl",
		"auth.legacy_password_login",

		// OTP
		"otp.code_length",
		"otp.ttl",
		"otp.max_attempts",
		"otp.requests_per_hour",

		// Rate limiting
		"rate_limiting.backend",

		// SMTP
		"smtp.host",
		"smtp.port",
		"smtp.username",
		"smtp.password",
		"smtp.from",
		"smtp.use_tls",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit trail
		"audit.enabled",
		"audit.file.path",
		"audit.file.max_size_mb",
		"audit.file.max_backups",
		"audit.webhook.url",
		"audit.webhook.auth_token",
		"audit.webhook.timeout",
		"audit.webhook.batch_size",
		"audit.webhook.flush_interval",

		// Jobs
		"jobs.otp_cleanup_interval",
		"jobs.otp_retention",
	}

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var for %s: %w", key, err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "feedbase")
	v.SetDefault("database.user", "feedbase")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.url", "redis://localhost:6379/0")

	// Auth defaults
	v.SetDefault("auth.api_keys.prefix", "fdb")
	v.SetDefault("auth.api_keys.env", "live")
	v.SetDefault("auth.session_ttl", "12h")
	v.SetDefault("auth.legacy_password_login", false)

	// OTP defaults
	v.SetDefault("otp.code_length", 6)
	v.SetDefault("otp.ttl", "10m")
	v.SetDefault("otp.max_attempts", 5)
	v.SetDefault("otp.requests_per_hour", 5)

	// Rate limiting defaults
	v.SetDefault("rate_limiting.backend", "postgres")

	// SMTP defaults
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.use_tls", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.file.max_size_mb", 100)
	v.SetDefault("audit.file.max_backups", 3)
	v.SetDefault("audit.webhook.timeout", "10s")
	v.SetDefault("audit.webhook.batch_size", 0)
	v.SetDefault("audit.webhook.flush_interval", "5s")

	// Jobs defaults
	v.SetDefault("jobs.otp_cleanup_interval", "1h")
	v.SetDefault("jobs.otp_retention", "24h")
}

// Validate checks cross-field constraints that Unmarshal cannot express
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	switch c.RateLimiting.Backend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("rate_limiting.backend must be \"postgres\" or \"redis\", got %q", c.RateLimiting.Backend)
	}

	if c.RateLimiting.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when rate_limiting.backend is \"redis\"")
	}

	if c.Otp.CodeLength < 4 || c.Otp.CodeLength > 10 {
		return fmt.Errorf("otp.code_length must be between 4 and 10, got %d", c.Otp.CodeLength)
	}

	if c.Audit.Enabled && c.Audit.File.Path == "" && c.Audit.Webhook.URL == "" {
		return fmt.Errorf("audit.enabled requires audit.file.path or audit.webhook.url")
	}

	if c.Jobs.OtpRetention > 0 && c.Jobs.OtpRetention < time.Hour {
		return fmt.Errorf("jobs.otp_retention must be at least 1h (the request-cap window), got %s", c.Jobs.OtpRetention)
	}

	return nil
}

// expandEnv resolves ${VAR} and $VAR references against the environment,
// leaving plain values untouched.
func expandEnv(s string) string {
	if strings.Contains(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}
