// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds JWT verification settings. Tokens are issued by the
// upstream identity service; this service only verifies them.
type JWTConfig struct {
	AccessSecret string        // must be set
	AdminSecret  string        // must be set; signs back-office tokens
	AccessTTL    time.Duration // default 15m; used for clock-skew sanity only
}

// ProcessorConfig holds payment processor gateway settings.
type ProcessorConfig struct {
	BaseURL    string        // processor REST endpoint
	APIKey     string        // bearer credential
	Timeout    time.Duration // per-request timeout, default 5s
	MaxRetries int           // default 3
	RetryBase  time.Duration // first backoff step, default 200ms
}

// EscrowConfig holds settlement policy settings.
type EscrowConfig struct {
	DefaultCurrency string // ISO code, default "USD"
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	ChainVerifyInterval time.Duration // default 10m
	StalePayoutAfter    time.Duration // default 30m
	StalePayoutInterval time.Duration // default 5m
}

// WSConfig holds live audit feed settings.
type WSConfig struct {
	AllowedOrigins []string // origins allowed to open the feed; empty = same-host only
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	Processor ProcessorConfig
	Escrow    EscrowConfig
	Scheduler SchedulerConfig
	WS        WSConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.JWT.AdminSecret == "" {
		errs = append(errs, errors.New("JWT_ADMIN_SECRET must be set"))
	}

	// In production, DB DSN and processor credentials must be explicit
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}
	if c.IsProd() && c.Processor.APIKey == "" {
		errs = append(errs, errors.New("PROCESSOR_API_KEY must be set in production"))
	}

	if c.Processor.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf(
			"PROCESSOR_MAX_RETRIES must be at least 1, got %d", c.Processor.MaxRetries,
		))
	}
	if len(c.Escrow.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Errorf(
			"ESCROW_DEFAULT_CURRENCY must be a 3-letter ISO code, got %q", c.Escrow.DefaultCurrency,
		))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	// Best-effort: a missing .env is fine in production where the
	// environment is injected by the platform.
	_ = godotenv.Load()

	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "settlement"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		AccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		AdminSecret:  getEnv("JWT_ADMIN_SECRET", ""),
		AccessTTL:    getDuration("JWT_ACCESS_TTL", 15*time.Minute),
	}

	// ── Processor ─────────────────────────────────────────────────────────────
	retries, err := getInt("PROCESSOR_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("PROCESSOR_MAX_RETRIES: %w", err)
	}

	cfg.Processor = ProcessorConfig{
		BaseURL:    getEnv("PROCESSOR_BASE_URL", "https://processor.local"),
		APIKey:     getEnv("PROCESSOR_API_KEY", ""),
		Timeout:    getDuration("PROCESSOR_TIMEOUT", 5*time.Second),
		MaxRetries: retries,
		RetryBase:  getDuration("PROCESSOR_RETRY_BASE", 200*time.Millisecond),
	}

	// ── Escrow ────────────────────────────────────────────────────────────────
	cfg.Escrow = EscrowConfig{
		DefaultCurrency: getEnv("ESCROW_DEFAULT_CURRENCY", "USD"),
	}

	// ── Scheduler ─────────────────────────────────────────────────────────────
	cfg.Scheduler = SchedulerConfig{
		ChainVerifyInterval: getDuration("SCHEDULER_CHAIN_VERIFY_INTERVAL", 10*time.Minute),
		StalePayoutAfter:    getDuration("SCHEDULER_STALE_PAYOUT_AFTER", 30*time.Minute),
		StalePayoutInterval: getDuration("SCHEDULER_STALE_PAYOUT_INTERVAL", 5*time.Minute),
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	cfg.WS = WSConfig{
		AllowedOrigins: splitList(os.Getenv("WS_ALLOWED_ORIGINS")),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

// splitList parses a comma-separated env value, trimming whitespace and
// dropping empty items.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
