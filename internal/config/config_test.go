package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, TokenStoreCookie, cfg.TokenStore)
	assert.Equal(t, "auth_token", cfg.TokenCookie)
	assert.Equal(t, 5*time.Minute, cfg.QueryStaleTime)
	assert.Equal(t, 10*time.Minute, cfg.QueryGCTime)
	assert.Equal(t, 15*time.Minute, cfg.QueryRefetchInterval)
	assert.Equal(t, 2, cfg.QueryRetry)
	assert.Equal(t, 9090, cfg.AdminHTTPPort)
	assert.Equal(t, []string{"127.0.0.1/32", "::1/128"}, cfg.PprofCIDRs)
	assert.True(t, cfg.BreakerEnabled)
	assert.NotEmpty(t, cfg.SessionID)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STOREFRONT_API_URL", "https://shop.example.com/api")
	t.Setenv("STOREFRONT_TOKEN_STORE", "redis")
	t.Setenv("STOREFRONT_SESSION_ID", "kiosk-1")
	t.Setenv("QUERY_STALE_TIME", "1m")

	cfg, err := Load()

	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://shop.example.com/api", cfg.APIURL)
	assert.Equal(t, TokenStoreRedis, cfg.TokenStore)
	assert.Equal(t, "kiosk-1", cfg.SessionID)
	assert.Equal(t, time.Minute, cfg.QueryStaleTime)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"relative api url", map[string]string{"STOREFRONT_API_URL": "/api"}, "STOREFRONT_API_URL"},
		{"unknown token store", map[string]string{"STOREFRONT_TOKEN_STORE": "localStorage"}, "STOREFRONT_TOKEN_STORE"},
		{"negative retry", map[string]string{"QUERY_RETRY": "-1"}, "QUERY_RETRY"},
		{"admin port", map[string]string{"ADMIN_HTTP_PORT": "0"}, "invalid admin HTTP port"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "2.0"}, "OTEL_SAMPLE_RATE must be between 0.0 and 1.0"},
		{"timeout", map[string]string{"STOREFRONT_HTTP_TIMEOUT": "0s"}, "STOREFRONT_HTTP_TIMEOUT"},
		{"bad duration", map[string]string{"QUERY_GC_TIME": "soon"}, "load storefront config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(tt.env)
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
