package tokenstore

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	cookies, err := NewCookieStore(nil, "http://127.0.0.1:8080/api", CookieOptions{})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"cookie": cookies,
		"redis":  NewRedisStore(rdb, "sess-1"),
	}
}

func TestStores_SetThenGetRoundTrips(t *testing.T) {
	tokens := []string{
		"abc.def.ghi",
		"opaque-token",
		"with space; and=semicolon,comma",
		"ünïcode",
	}

	for name, store := range newStores(t) {
		for _, extended := range []bool{false, true} {
			for _, token := range tokens {
				ctx := context.Background()
				require.NoError(t, store.Set(ctx, token, extended), name)

				got, err := store.Get(ctx)
				require.NoError(t, err, name)
				assert.Equal(t, token, got, "%s extended=%v", name, extended)
			}
		}
	}
}

func TestStores_SetOverwrites(t *testing.T) {
	for name, store := range newStores(t) {
		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "first", false))
		require.NoError(t, store.Set(ctx, "second", true))

		got, err := store.Get(ctx)
		require.NoError(t, err, name)
		assert.Equal(t, "second", got, name)
	}
}

func TestStores_ClearIsTerminal(t *testing.T) {
	for name, store := range newStores(t) {
		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "tok", true))
		require.NoError(t, store.Clear(ctx))

		_, err := store.Get(ctx)
		assert.ErrorIs(t, err, ErrNoToken, name)

		// clearing an empty store is fine
		require.NoError(t, store.Clear(ctx), name)
		_, err = store.Get(ctx)
		assert.ErrorIs(t, err, ErrNoToken, name)
	}
}

func TestStores_EmptyGet(t *testing.T) {
	for name, store := range newStores(t) {
		_, err := store.Get(context.Background())
		assert.ErrorIs(t, err, ErrNoToken, name)
	}
}

func TestTTL(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, TTL(false))
	assert.Equal(t, 30*24*time.Hour, TTL(true))
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "tok", false))

	now = now.Add(DefaultTTL - time.Second)
	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	now = now.Add(time.Second)
	_, err = s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.Set(ctx, "tok", true))
	now = now.Add(DefaultTTL + time.Hour)
	_, err = s.Get(ctx)
	assert.NoError(t, err, "extended credential outlives the default TTL")
}

func TestRedisStore_KeyTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, "abc")
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "tok", false))
	assert.Equal(t, "storefront:token:abc", s.Key())
	assert.Equal(t, DefaultTTL, mr.TTL(s.Key()))

	require.NoError(t, s.Set(ctx, "tok", true))
	assert.Equal(t, ExtendedTTL, mr.TTL(s.Key()))

	mr.FastForward(ExtendedTTL)
	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.Ping(ctx))
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, err := NewRedisStore(rdb, "x").Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoToken)
}

func TestCookieStore_ScopedToOrigin(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	s, err := NewCookieStore(jar, "http://shop.example.com/api", CookieOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "a b&c", false))

	home, _ := url.Parse("http://shop.example.com/account")
	cookies := jar.Cookies(home)
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Equal(t, url.QueryEscape("a b&c"), cookies[0].Value)

	other, _ := url.Parse("http://tracker.example.org/")
	assert.Empty(t, jar.Cookies(other))
}

func TestCookieStore_SecureCookieHiddenOnPlainHTTP(t *testing.T) {
	s, err := NewCookieStore(nil, "http://shop.example.com", CookieOptions{Secure: true})
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "tok", false))

	_, err = s.Get(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestNewCookieStore_RejectsRelativeOrigin(t *testing.T) {
	_, err := NewCookieStore(nil, "/api", CookieOptions{})
	assert.Error(t, err)
}

func TestRequestCookies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "inbound"})
	rec := httptest.NewRecorder()
	ctx := context.Background()

	s := NewRequestCookies(rec, req, CookieOptions{Name: "sid", Secure: true})

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "inbound", got)

	require.NoError(t, s.Set(ctx, "fresh", true))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "fresh", cookies[0].Value)
	assert.Equal(t, int(ExtendedTTL.Seconds()), cookies[0].MaxAge)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, -1, cookies[1].MaxAge)
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("anything"))
	require.NoError(t, err)

	c, err := Inspect(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-42", c.Subject)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.False(t, c.Expired(time.Now()))
	assert.True(t, c.Expired(exp))

	c, err = Inspect("opaque")
	require.NoError(t, err)
	assert.Equal(t, Claims{}, c)
	assert.False(t, c.Expired(time.Now()))

	_, err = Inspect("not.a.jwt")
	assert.Error(t, err)
}
