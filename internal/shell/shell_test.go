package shell

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/freshcart/internal/notify"
	"github.com/utafrali/freshcart/internal/session"
	"github.com/utafrali/freshcart/pkg/apiclient"
	"github.com/utafrali/freshcart/pkg/logger"
	"github.com/utafrali/freshcart/pkg/query"
	"github.com/utafrali/freshcart/pkg/tokenstore"
)

type fixture struct {
	shell  *Shell
	sess   *session.Context
	tokens *tokenstore.MemoryStore
	out    *bytes.Buffer
}

func newFixture(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *fixture {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokens := tokenstore.NewMemoryStore()
	api := apiclient.New(apiclient.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, tokens, nil)
	opts := query.DefaultOptions()
	opts.RetryBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	sess := session.New(api, tokens, query.NewClient(query.WithDefaults(opts)), nil)

	out := &bytes.Buffer{}
	errs := notify.NewHandler(notify.NewWriterNotifier(out), logger.Nop())
	return &fixture{shell: New(sess, errs, out, nil), sess: sess, tokens: tokens, out: out}
}

func reply(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestShell_LoginMeLogout(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"/auth/login":  reply(http.StatusOK, `{"token":"tok","user":{"id":"1","name":"Ada","email":"ada@x.io","role":"USER"}}`),
		"/auth/logout": reply(http.StatusOK, `{"success":true}`),
		"/auth/me":     reply(http.StatusUnauthorized, `{"message":"no session"}`),
	})
	ctx := context.Background()

	require.NoError(t, f.shell.Exec(ctx, "login ada@x.io supersecret remember"))
	assert.Contains(t, f.out.String(), "✓ Welcome back, Ada!")
	tok, err := f.tokens.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "me"))
	assert.Contains(t, f.out.String(), "Ada <ada@x.io>")

	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "logout"))
	assert.Contains(t, f.out.String(), "✓ Signed out.")
	_, err = f.tokens.Get(ctx)
	assert.ErrorIs(t, err, tokenstore.ErrNoToken)

	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "status"))
	assert.Contains(t, f.out.String(), "status:  anonymous")
	assert.Contains(t, f.out.String(), "user:    Guest")
	assert.Contains(t, f.out.String(), "credential: none")
}

func TestShell_StatusShowsCredentialClaims(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-9",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, f.tokens.Set(ctx, signed, false))

	require.NoError(t, f.shell.Exec(ctx, "status"))
	assert.Contains(t, f.out.String(), "credential: valid until "+exp.Format(time.RFC3339)+" (subject user-9)")

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, f.tokens.Set(ctx, expired, false))

	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "status"))
	assert.Contains(t, f.out.String(), "credential: expired ")

	require.NoError(t, f.tokens.Set(ctx, "opaque", false))
	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "status"))
	assert.Contains(t, f.out.String(), "credential: held\n")
}

func TestShell_LoginValidationShowsFields(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.shell.Exec(context.Background(), "login not-an-email short"))

	out := f.out.String()
	assert.Contains(t, out, "✗ "+notify.MsgValidation)
	assert.Contains(t, out, "    email:")
	assert.Contains(t, out, "    password:")
}

func TestShell_LoginRejectedByBackend(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"/auth/login": reply(http.StatusUnauthorized, `{"message":"bad credentials"}`),
	})

	require.NoError(t, f.shell.Exec(context.Background(), "login ada@x.io supersecret"))

	assert.Contains(t, f.out.String(), "✗ "+notify.MsgAuth)
}

func TestShell_Categories(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"/categories": reply(http.StatusOK, `{"data":[{"id":"1","name":"Fruit","slug":"fruit"},{"id":"2","name":"Bakery"}]}`),
	})

	require.NoError(t, f.shell.Exec(context.Background(), "categories"))

	assert.Equal(t, "Fruit (fruit)\nBakery\n", f.out.String())
}

func TestShell_NetworkFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.sess.API = apiclient.New(apiclient.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, f.tokens, nil)

	require.NoError(t, f.shell.Exec(context.Background(), "categories"))

	assert.Contains(t, f.out.String(), "✗ "+notify.MsgNetwork)
}

func TestShell_PasswordFlows(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter, *http.Request){
		"/auth/forgot-password": reply(http.StatusOK, `{"success":true,"message":"Reset link sent"}`),
		"/auth/reset-password":  reply(http.StatusOK, `{"success":true}`),
	})
	ctx := context.Background()

	require.NoError(t, f.shell.Exec(ctx, "forgot ada@x.io"))
	assert.Contains(t, f.out.String(), "✓ Reset link sent")

	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "reset abc newpassword newpassword"))
	assert.Contains(t, f.out.String(), "✓ Password updated.")

	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "reset abc newpassword different1"))
	assert.Contains(t, f.out.String(), "confirmPassword")
}

func TestShell_UsageAndUnknown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.shell.Exec(ctx, "login only-email"))
	assert.Equal(t, "usage: login <email> <password> [remember]\n", f.out.String())

	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "frobnicate"))
	assert.Contains(t, f.out.String(), `unknown command "frobnicate"`)

	f.out.Reset()
	require.NoError(t, f.shell.Exec(ctx, "   "))
	assert.Empty(t, f.out.String())
}

func TestShell_RunStopsOnQuit(t *testing.T) {
	f := newFixture(t, nil)
	in := strings.NewReader("help\nquit\nstatus\n")

	err := f.shell.Run(context.Background(), in)

	require.NoError(t, err)
	out := f.out.String()
	assert.Contains(t, out, "categories")
	assert.NotContains(t, out, "status:  ", "commands after quit are not run")
}

func TestShell_RunEndsAtEOF(t *testing.T) {
	f := newFixture(t, nil)

	err := f.shell.Run(context.Background(), strings.NewReader("status\n"))

	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "status:  unknown")
}

func TestShell_RunHonorsContext(t *testing.T) {
	f := newFixture(t, nil)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.shell.Run(ctx, pr) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("shell did not stop")
	}
}
