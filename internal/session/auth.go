package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/freshcart/internal/domain"
	"github.com/utafrali/freshcart/pkg/apiclient"
	"github.com/utafrali/freshcart/pkg/logger"
	"github.com/utafrali/freshcart/pkg/tokenstore"
)

// AuthResult is what login and registration return to the caller.
type AuthResult struct {
	Token string
	User  *domain.User
	Raw   json.RawMessage
}

// Login signs in, stores the credential (30 days with RememberMe) and seeds
// the session user so the next Me is served from cache.
func (s *Context) Login(ctx context.Context, creds domain.LoginCredentials) (*AuthResult, error) {
	const endpoint = "/auth/login"
	if err := validateInput(endpoint, creds); err != nil {
		return nil, err
	}

	raw, err := s.API.Post(ctx, endpoint, creds, apiclient.WithoutAuth())
	if err != nil {
		s.Logger.WarnContext(ctx, "login failed", slog.String("error", err.Error()))
		return nil, err
	}
	return s.establish(ctx, "user logged in", raw, creds.RememberMe)
}

// Register creates an account. No credential is required to call it; a
// credential in the response is stored like a login.
func (s *Context) Register(ctx context.Context, creds domain.RegisterCredentials) (*AuthResult, error) {
	const endpoint = "/auth/register"
	if creds.Role == "" {
		creds.Role = domain.RoleUser
	}
	if err := validateInput(endpoint, creds); err != nil {
		return nil, err
	}

	raw, err := s.API.Post(ctx, endpoint, creds, apiclient.WithoutAuth())
	if err != nil {
		s.Logger.WarnContext(ctx, "registration failed", slog.String("error", err.Error()))
		return nil, err
	}
	return s.establish(ctx, "user registered", raw, false)
}

// establish persists the credential and user from an auth response. The
// user prefix is invalidated before the user is seeded, so the seeded
// entry is fresh.
func (s *Context) establish(ctx context.Context, msg string, raw json.RawMessage, extended bool) (*AuthResult, error) {
	user, err := NormalizeUser(raw)
	if err != nil {
		return nil, err
	}
	res := &AuthResult{Token: NormalizeToken(raw), User: user, Raw: raw}

	if res.Token != "" {
		if err := s.Tokens.Set(ctx, res.Token, extended); err != nil {
			return nil, fmt.Errorf("store credential: %w", err)
		}
	}

	s.Cache.Invalidate(UserKeys.All)
	if user != nil {
		s.Cache.SetData(UserKeys.Me(), user)
		ctx = logger.WithUserID(ctx, user.ID)
	}

	attrs := []any{slog.Bool("remember_me", extended), slog.Bool("credential", res.Token != "")}
	if claims, err := tokenstore.Inspect(res.Token); err == nil && !claims.ExpiresAt.IsZero() {
		attrs = append(attrs, slog.Time("expires_at", claims.ExpiresAt))
	}
	logger.WithContext(ctx, s.Logger).InfoContext(ctx, msg, attrs...)

	return res, nil
}

// Logout tells the backend, then clears the credential and the session
// user whatever the backend said. The backend error, if any, is returned
// after the local state is already signed out.
func (s *Context) Logout(ctx context.Context) error {
	_, serverErr := s.API.Post(ctx, "/auth/logout", nil)
	if serverErr != nil {
		s.Logger.WarnContext(ctx, "logout request failed, clearing session anyway",
			slog.String("error", serverErr.Error()),
		)
	}

	var clearErr error
	if err := s.Tokens.Clear(ctx); err != nil {
		clearErr = fmt.Errorf("clear credential: %w", err)
	}
	s.Cache.Invalidate(UserKeys.All)
	s.Cache.SetData(UserKeys.Me(), (*domain.User)(nil))

	s.Logger.InfoContext(ctx, "user logged out")
	return errors.Join(serverErr, clearErr)
}

// ForgotPassword asks the backend to mail a reset link.
func (s *Context) ForgotPassword(ctx context.Context, req domain.ForgotPasswordRequest) (*domain.MessageResponse, error) {
	return s.passwordFlow(ctx, "/auth/forgot-password", req)
}

// ResetPassword sets a new password using a mailed token.
func (s *Context) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) (*domain.MessageResponse, error) {
	return s.passwordFlow(ctx, "/auth/reset-password", req)
}

func (s *Context) passwordFlow(ctx context.Context, endpoint string, req any) (*domain.MessageResponse, error) {
	if err := validateInput(endpoint, req); err != nil {
		return nil, err
	}

	raw, err := s.API.Post(ctx, endpoint, req, apiclient.WithoutAuth())
	if err != nil {
		return nil, err
	}

	resp, err := apiclient.Decode[domain.MessageResponse](raw)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
