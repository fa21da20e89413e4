package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/freshcart/internal/config"
	"github.com/utafrali/freshcart/pkg/apiclient"
	"github.com/utafrali/freshcart/pkg/logger"
	"github.com/utafrali/freshcart/pkg/tokenstore"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"unauthenticated"}`)
	})
	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"1","name":"Dairy","slug":"dairy"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(env)
	require.NoError(t, err)
	return cfg
}

func TestNewApp_TokenStores(t *testing.T) {
	srv := newBackend(t)
	mr := miniredis.RunT(t)

	tests := []struct {
		store    string
		wantType any
	}{
		{store: config.TokenStoreMemory, wantType: &tokenstore.MemoryStore{}},
		{store: config.TokenStoreCookie, wantType: &tokenstore.CookieStore{}},
		{store: config.TokenStoreRedis, wantType: &tokenstore.RedisStore{}},
	}
	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			cfg := loadConfig(t, map[string]string{
				"STOREFRONT_API_URL":     srv.URL + "/api",
				"STOREFRONT_TOKEN_STORE": tt.store,
				"REDIS_ADDR":             mr.Addr(),
			})

			a, err := NewApp(cfg, logger.Nop(), strings.NewReader(""), io.Discard)
			require.NoError(t, err)
			defer a.Shutdown()

			assert.IsType(t, tt.wantType, a.Session().Tokens)
			assert.Equal(t, tt.store == config.TokenStoreRedis, a.rdb != nil)
		})
	}
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := loadConfig(t, map[string]string{
		"STOREFRONT_TOKEN_STORE": config.TokenStoreRedis,
		"REDIS_ADDR":             addr,
	})

	_, err := NewApp(cfg, logger.Nop(), strings.NewReader(""), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open redis token store")
}

func TestApp_RunUntilQuit(t *testing.T) {
	srv := newBackend(t)
	cfg := loadConfig(t, map[string]string{
		"STOREFRONT_API_URL":     srv.URL + "/api",
		"STOREFRONT_TOKEN_STORE": config.TokenStoreMemory,
	})
	out := &bytes.Buffer{}

	a, err := NewApp(cfg, logger.Nop(), strings.NewReader("categories\nquit\n"), out)
	require.NoError(t, err)
	a.adminServer.Addr = "127.0.0.1:0"

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after quit")
	}
	assert.Contains(t, out.String(), "Dairy (dairy)")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	srv := newBackend(t)
	cfg := loadConfig(t, map[string]string{
		"STOREFRONT_API_URL":     srv.URL + "/api",
		"STOREFRONT_TOKEN_STORE": config.TokenStoreMemory,
	})
	pr, pw := io.Pipe()
	defer pw.Close()

	a, err := NewApp(cfg, logger.Nop(), pr, io.Discard)
	require.NoError(t, err)
	a.adminServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestNewApp_CookieCredentialStaysOffUnauthenticatedCalls(t *testing.T) {
	var cookie, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, auth = r.Header.Get("Cookie"), r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	t.Cleanup(srv.Close)
	cfg := loadConfig(t, map[string]string{
		"STOREFRONT_API_URL":     srv.URL + "/api",
		"STOREFRONT_TOKEN_STORE": config.TokenStoreCookie,
	})

	a, err := NewApp(cfg, logger.Nop(), strings.NewReader(""), io.Discard)
	require.NoError(t, err)
	defer a.Shutdown()

	ctx := context.Background()
	require.NoError(t, a.Session().Tokens.Set(ctx, "stale-secret", false))

	_, err = a.api.Post(ctx, "/auth/register", map[string]string{"name": "N"}, apiclient.WithoutAuth())
	require.NoError(t, err)
	assert.Empty(t, cookie)
	assert.Empty(t, auth)

	_, err = a.api.Get(ctx, "/auth/me")
	require.NoError(t, err)
	assert.Empty(t, cookie)
	assert.Equal(t, "Bearer stale-secret", auth)
}
