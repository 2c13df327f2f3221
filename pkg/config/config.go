// Package config loads bookshelf settings from flags, environment variables
// and an optional config file through viper.
//
// Environment variables use the upper-cased key, e.g. BACKEND_URL or
// CACHE_WEBHOOK_API_KEY.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keys.
const (
	KeyBackendURL         = "backend_url"
	KeyWebhookAPIKey      = "cache_webhook_api_key"
	KeyHost               = "host"
	KeyPort               = "port"
	KeyLogLevel           = "log_level"
	KeyLogPretty          = "log_pretty"
	KeyLedgerBackend      = "ledger_backend"
	KeyRedisURL           = "redis_url"
	KeyDatabaseURL        = "database_url"
	KeyPanelInterval      = "panel_interval"
	KeyHTTPTimeout        = "http_timeout"
	KeyPrewarmConcurrency = "prewarm_concurrency"
	KeyCatalogRetries     = "catalog_retries"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	BackendURL    string
	WebhookAPIKey string

	Host string
	Port int

	LogLevel  string
	LogPretty bool

	LedgerBackend string // "memory" (default), "redis" or "postgres"
	RedisURL      string
	DatabaseURL   string

	PanelInterval      time.Duration
	HTTPTimeout        time.Duration
	PrewarmConcurrency int
	CatalogRetries     int // retries after the first attempt
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 3000)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
	v.SetDefault(KeyLedgerBackend, BackendMemory)
	v.SetDefault(KeyRedisURL, "redis://localhost:6379/0")
	v.SetDefault(KeyPanelInterval, 30*time.Second)
	v.SetDefault(KeyHTTPTimeout, 30*time.Second)
	v.SetDefault(KeyPrewarmConcurrency, 4)
	v.SetDefault(KeyCatalogRetries, 1)
}

// Load reads the configuration from v. Defaults and environment binding are
// applied to v first.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		BackendURL:         strings.TrimRight(strings.TrimSpace(v.GetString(KeyBackendURL)), "/"),
		WebhookAPIKey:      v.GetString(KeyWebhookAPIKey),
		Host:               v.GetString(KeyHost),
		Port:               v.GetInt(KeyPort),
		LogLevel:           v.GetString(KeyLogLevel),
		LogPretty:          v.GetBool(KeyLogPretty),
		LedgerBackend:      strings.ToLower(v.GetString(KeyLedgerBackend)),
		RedisURL:           v.GetString(KeyRedisURL),
		DatabaseURL:        v.GetString(KeyDatabaseURL),
		PanelInterval:      v.GetDuration(KeyPanelInterval),
		HTTPTimeout:        v.GetDuration(KeyHTTPTimeout),
		PrewarmConcurrency: v.GetInt(KeyPrewarmConcurrency),
		CatalogRetries:     v.GetInt(KeyCatalogRetries),
	}

	if cfg.LedgerBackend == "" {
		cfg.LedgerBackend = BackendMemory
	}
	return cfg, nil
}

// Validate checks the settings a server needs to start.
func (c Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("%s is required", KeyBackendURL)
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL (got %q)", KeyBackendURL, c.BackendURL)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%s out of range: %d", KeyPort, c.Port)
	}

	switch c.LedgerBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%s is required for the redis ledger", KeyRedisURL)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s is required for the postgres ledger", KeyDatabaseURL)
		}
	default:
		return fmt.Errorf("unknown %s %q (want memory, redis or postgres)", KeyLedgerBackend, c.LedgerBackend)
	}

	if c.PanelInterval <= 0 {
		return fmt.Errorf("%s must be positive", KeyPanelInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyHTTPTimeout)
	}
	if c.CatalogRetries < 0 {
		return fmt.Errorf("%s must not be negative", KeyCatalogRetries)
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthEnabled reports whether webhook calls must carry the shared secret.
func (c Config) AuthEnabled() bool {
	return c.WebhookAPIKey != ""
}
