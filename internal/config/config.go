package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	pkgconfig "github.com/utafrali/freshcart/pkg/config"
)

// Token store backends.
const (
	TokenStoreMemory = "memory"
	TokenStoreCookie = "cookie"
	TokenStoreRedis  = "redis"
)

// Config holds all configuration for the storefront client.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend API
	APIURL         string        `env:"STOREFRONT_API_URL" envDefault:"http://localhost:8080/api"`
	HTTPTimeout    time.Duration `env:"STOREFRONT_HTTP_TIMEOUT" envDefault:"30s"`
	RateLimitRPS   float64       `env:"STOREFRONT_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int           `env:"STOREFRONT_RATE_LIMIT_BURST" envDefault:"40"`
	BreakerEnabled bool          `env:"STOREFRONT_BREAKER_ENABLED" envDefault:"true"`

	// Credential slot
	TokenStore  string `env:"STOREFRONT_TOKEN_STORE" envDefault:"cookie"`
	TokenCookie string `env:"STOREFRONT_TOKEN_COOKIE" envDefault:"auth_token"`
	SessionID   string `env:"STOREFRONT_SESSION_ID"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Query cache
	QueryStaleTime       time.Duration `env:"QUERY_STALE_TIME" envDefault:"5m"`
	QueryGCTime          time.Duration `env:"QUERY_GC_TIME" envDefault:"10m"`
	QueryRefetchInterval time.Duration `env:"QUERY_REFETCH_INTERVAL" envDefault:"15m"`
	QueryRetry           int           `env:"QUERY_RETRY" envDefault:"2"`

	// Admin HTTP server (health, metrics)
	AdminHTTPPort int      `env:"ADMIN_HTTP_PORT" envDefault:"9090"`
	PprofCIDRs    []string `env:"ADMIN_PPROF_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	return finish(cfg)
}

// LoadFrom reads configuration from environ instead of the process.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether cookies must be Secure.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("STOREFRONT_API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("STOREFRONT_HTTP_TIMEOUT must be positive")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("STOREFRONT_RATE_LIMIT_RPS must not be negative")
	}
	switch c.TokenStore {
	case TokenStoreMemory, TokenStoreCookie, TokenStoreRedis:
	default:
		return fmt.Errorf("STOREFRONT_TOKEN_STORE must be one of memory, cookie, redis, got %q", c.TokenStore)
	}
	if c.QueryRetry < 0 {
		return fmt.Errorf("QUERY_RETRY must not be negative")
	}
	if c.QueryStaleTime < 0 || c.QueryGCTime < 0 || c.QueryRefetchInterval < 0 {
		return fmt.Errorf("query durations must not be negative")
	}
	if c.AdminHTTPPort < 1 || c.AdminHTTPPort > 65535 {
		return fmt.Errorf("invalid admin HTTP port: %d", c.AdminHTTPPort)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}
