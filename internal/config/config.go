// Package config handles loading application configuration. Values come
// from built-in development defaults, then an optional YAML file named by
// SEIF_CONFIG, then environment variables, and are validated last. No
// other package reads env vars directly.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// MasterKeySize is the required decoded length of MASTER_KEY (AES-256).
const MasterKeySize = 32

// Config holds all application configuration. Passed to other packages via
// dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `yaml:"env"`

	// Port is the HTTP listen port (default: 8080).
	Port int `yaml:"port"`

	// BaseURL is the public-facing URL used in mail bodies.
	BaseURL string `yaml:"base_url"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// MigrationsPath is the golang-migrate source directory.
	MigrationsPath string `yaml:"migrations_path"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Session   SessionConfig   `yaml:"session"`
	Security  SecurityConfig  `yaml:"security"`
	Directory DirectoryConfig `yaml:"directory"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// are read from separate env vars so container orchestrators can manage
// each independently. If DATABASE_URL is set, it takes precedence.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	// URL, when set, is a complete driver DSN. parseTime and loc=UTC are
	// forced onto it because every timestamp column is scanned into time.Time.
	URL string `yaml:"url"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns the go-sql-driver/mysql connection string, built with the
// driver's Config.FormatDSN() so special characters in passwords survive.
func (d DatabaseConfig) DSN() (string, error) {
	cfg := mysql.NewConfig()
	if d.URL != "" {
		parsed, err := mysql.ParseDSN(d.URL)
		if err != nil {
			return "", fmt.Errorf("parsing DATABASE_URL: %w", err)
		}
		cfg = parsed
	} else {
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = ensurePort(d.Host, "3306")
		cfg.DBName = d.Name
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string `yaml:"url"`
}

// SessionConfig controls where OTP session state lives.
type SessionConfig struct {
	// Store is "redis" or "memory". Memory sessions do not survive restarts
	// and are not shared between instances.
	Store string `yaml:"store"`

	// TTL is the idle timeout (default: 20m).
	TTL time.Duration `yaml:"ttl"`
}

// SecurityConfig holds key material and identity settings.
type SecurityConfig struct {
	// MasterKey is the base64-encoded 32-byte envelope key.
	MasterKey string `yaml:"master_key"`

	// AllowedEmailDomains restricts the email channel. Empty allows any domain.
	AllowedEmailDomains []string `yaml:"allowed_email_domains"`

	// PlatformIdentityHeader names the header a trusted reverse proxy sets
	// to the authenticated platform user (DOMAIN\user). Empty disables the
	// platform channel.
	PlatformIdentityHeader string `yaml:"platform_identity_header"`

	// TrustedProxies lists CIDRs whose forwarding headers are believed.
	TrustedProxies []string `yaml:"trusted_proxies"`

	masterKey []byte
}

// MasterKeyBytes returns the decoded master key. Only valid after Load.
func (s SecurityConfig) MasterKeyBytes() []byte {
	return s.masterKey
}

// DirectoryConfig selects how platform users are resolved to emails.
type DirectoryConfig struct {
	LDAPURL          string        `yaml:"ldap_url"`
	LDAPBindDN       string        `yaml:"ldap_bind_dn"`
	LDAPBindPassword string        `yaml:"ldap_bind_password"`
	LDAPBaseDN       string        `yaml:"ldap_base_dn"`
	LDAPFilter       string        `yaml:"ldap_filter"`
	Timeout          time.Duration `yaml:"timeout"`

	// Static is a development directory: "DOMAIN\alice=alice@x.ro,bob=bob@x.ro".
	Static string `yaml:"static"`
}

// SMTPConfig holds outbound mail settings. An empty Host selects the log
// sender.
type SMTPConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	From       string        `yaml:"from"`
	FromName   string        `yaml:"from_name"`
	Encryption string        `yaml:"encryption"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AuditConfig controls the retention sweeper.
type AuditConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig controls the per-IP limit on /account POSTs.
type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled"`
	PerMinute int  `yaml:"per_minute"`
	Burst     int  `yaml:"burst"`
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		Env:            "development",
		Port:           8080,
		BaseURL:        "http://localhost:8080",
		LogLevel:       "debug",
		MigrationsPath: "db/migrations",

		Database: DatabaseConfig{
			Host:            "localhost:3306",
			User:            "seif",
			Password:        "seif",
			Name:            "seif",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},

		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},

		Session: SessionConfig{
			Store: "redis",
			TTL:   20 * time.Minute,
		},

		Security: SecurityConfig{
			AllowedEmailDomains: []string{"wizrom.ro"},
			TrustedProxies:      []string{"127.0.0.1/8", "::1/128"},
		},

		Directory: DirectoryConfig{
			Timeout: 5 * time.Second,
		},

		SMTP: SMTPConfig{
			Port:       587,
			FromName:   "Seif",
			Encryption: "starttls",
			Timeout:    15 * time.Second,
		},

		Audit: AuditConfig{
			SweepInterval: 24 * time.Hour,
		},

		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerMinute: 20,
			Burst:     10,
		},
	}
}

// Load reads configuration: defaults, then the YAML file named by
// SEIF_CONFIG (a missing file is fine), then env vars. Returns an error if
// the result is invalid.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("SEIF_CONFIG"); path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	c.Env = getEnv("ENV", c.Env)
	c.Port = getEnvInt("PORT", c.Port)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MigrationsPath = getEnv("MIGRATIONS_PATH", c.MigrationsPath)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)

	c.Session.Store = getEnv("SESSION_STORE", c.Session.Store)
	c.Session.TTL = getEnvDuration("SESSION_TTL", c.Session.TTL)

	c.Security.MasterKey = getEnv("MASTER_KEY", c.Security.MasterKey)
	c.Security.AllowedEmailDomains = getEnvList("ALLOWED_EMAIL_DOMAINS", c.Security.AllowedEmailDomains)
	c.Security.PlatformIdentityHeader = getEnv("PLATFORM_IDENTITY_HEADER", c.Security.PlatformIdentityHeader)
	c.Security.TrustedProxies = getEnvList("TRUSTED_PROXIES", c.Security.TrustedProxies)

	c.Directory.LDAPURL = getEnv("LDAP_URL", c.Directory.LDAPURL)
	c.Directory.LDAPBindDN = getEnv("LDAP_BIND_DN", c.Directory.LDAPBindDN)
	c.Directory.LDAPBindPassword = getEnv("LDAP_BIND_PASSWORD", c.Directory.LDAPBindPassword)
	c.Directory.LDAPBaseDN = getEnv("LDAP_BASE_DN", c.Directory.LDAPBaseDN)
	c.Directory.LDAPFilter = getEnv("LDAP_FILTER", c.Directory.LDAPFilter)
	c.Directory.Timeout = getEnvDuration("DIRECTORY_TIMEOUT", c.Directory.Timeout)
	c.Directory.Static = getEnv("DIRECTORY_STATIC", c.Directory.Static)

	c.SMTP.Host = getEnv("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = getEnvInt("SMTP_PORT", c.SMTP.Port)
	c.SMTP.Username = getEnv("SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = getEnv("SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = getEnv("SMTP_FROM", c.SMTP.From)
	c.SMTP.FromName = getEnv("SMTP_FROM_NAME", c.SMTP.FromName)
	c.SMTP.Encryption = getEnv("SMTP_ENCRYPTION", c.SMTP.Encryption)
	c.SMTP.Timeout = getEnvDuration("SMTP_TIMEOUT", c.SMTP.Timeout)

	c.Audit.SweepInterval = getEnvDuration("AUDIT_SWEEP_INTERVAL", c.Audit.SweepInterval)

	c.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.PerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimit.PerMinute)
	c.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst)
}

// Validate checks the loaded configuration and decodes the master key.
// The master key is required in every environment: a vault that starts
// with a default key would encrypt real data under a public secret.
func (c *Config) Validate() error {
	if c.Security.MasterKey == "" {
		return fmt.Errorf("MASTER_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Security.MasterKey))
	if err != nil {
		return fmt.Errorf("MASTER_KEY is not valid base64: %w", err)
	}
	if len(key) != MasterKeySize {
		return fmt.Errorf("MASTER_KEY must decode to %d bytes, got %d", MasterKeySize, len(key))
	}
	c.Security.masterKey = key

	if _, err := c.Database.DSN(); err != nil {
		return err
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	switch c.Session.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("SESSION_STORE must be \"redis\" or \"memory\", got %q", c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	switch strings.ToLower(c.SMTP.Encryption) {
	case "starttls", "ssl", "none":
	default:
		return fmt.Errorf("SMTP_ENCRYPTION must be starttls, ssl or none, got %q", c.SMTP.Encryption)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	if c.Audit.SweepInterval < time.Minute {
		return fmt.Errorf("AUDIT_SWEEP_INTERVAL must be at least 1m")
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be positive")
	}

	if c.IsProduction() {
		if c.Session.Store == "memory" {
			return fmt.Errorf("SESSION_STORE=memory is not allowed in production")
		}
		if c.Directory.Static != "" {
			return fmt.Errorf("DIRECTORY_STATIC is not allowed in production")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production" and common variants.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the fallback.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// getEnvInt reads an integer env var or returns the fallback.
func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the fallback.
func getEnvBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration reads a duration env var (e.g., "24h") or returns the fallback.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList reads a comma-separated env var. Set but empty yields an
// empty list, which is different from unset.
func getEnvList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
