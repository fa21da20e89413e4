package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/freshcart/internal/domain"
	"github.com/utafrali/freshcart/pkg/apiclient"
	"github.com/utafrali/freshcart/pkg/apierror"
	"github.com/utafrali/freshcart/pkg/query"
	"github.com/utafrali/freshcart/pkg/tokenstore"
)

// AuthStatus is the signed-in state derived from the session-user entry.
type AuthStatus int

const (
	// StatusUnknown: nothing resolved yet, or an invalidated entry is
	// being refetched.
	StatusUnknown AuthStatus = iota
	StatusAnonymous
	StatusAuthenticated
)

func (s AuthStatus) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Me returns the signed-in user, from cache while fresh. A 401 is the
// normal signed-out state and yields nil with no error.
func (s *Context) Me(ctx context.Context) (*domain.User, error) {
	return query.Fetch(ctx, s.Cache, UserKeys.Me(), s.Query, s.fetchMe)
}

func (s *Context) fetchMe(ctx context.Context) (*domain.User, error) {
	raw, err := s.API.Get(ctx, "/auth/me")
	if err != nil {
		if apierror.IsAuth(err) {
			s.Logger.DebugContext(ctx, "no session user", slog.String("endpoint", "/auth/me"))
			return nil, nil
		}
		return nil, err
	}
	return NormalizeUser(raw)
}

// RefetchUser discards the cached user and fetches it again.
func (s *Context) RefetchUser(ctx context.Context) (*domain.User, error) {
	s.Cache.Invalidate(UserKeys.Me())
	return s.Me(ctx)
}

// CurrentUser returns the cached user without fetching.
func (s *Context) CurrentUser() *domain.User {
	u, _ := query.GetData[*domain.User](s.Cache, UserKeys.Me())
	return u
}

// Status derives the auth status from the cached session user.
func (s *Context) Status() AuthStatus {
	st, ok := s.Cache.State(UserKeys.Me())
	if !ok || !st.HasData || (st.Invalidated && st.Fetching) {
		return StatusUnknown
	}
	if u, _ := st.Data.(*domain.User); u != nil {
		return StatusAuthenticated
	}
	return StatusAnonymous
}

// IsAuthenticated reports whether a user is cached.
func (s *Context) IsAuthenticated() bool {
	return s.Status() == StatusAuthenticated
}

// IsAdmin reports whether the cached user is an admin.
func (s *Context) IsAdmin() bool {
	return s.CurrentUser().IsAdmin()
}

// DisplayName is the cached user's name, or "Guest".
func (s *Context) DisplayName() string {
	return s.CurrentUser().DisplayName()
}

// Loading reports whether the session user is being fetched.
func (s *Context) Loading() bool {
	st, ok := s.Cache.State(UserKeys.Me())
	return ok && st.Fetching
}

// LastError is the error of the last failed session-user fetch, if any.
func (s *Context) LastError() error {
	st, _ := s.Cache.State(UserKeys.Me())
	return st.Err
}

// RequestUser resolves the owner of the credential held in tokens, usually
// the cookies of an inbound request. It bypasses the cache and never
// touches the session's own credential. Any failure yields nil.
func (s *Context) RequestUser(ctx context.Context, tokens tokenstore.Store) *domain.User {
	if _, err := tokens.Get(ctx); err != nil {
		return nil
	}
	raw, err := s.API.Get(ctx, "/auth/me", apiclient.WithCredentials(tokens))
	if err != nil {
		s.Logger.DebugContext(ctx, "request credential not accepted", slog.String("error", err.Error()))
		return nil
	}
	u, err := NormalizeUser(raw)
	if err != nil {
		return nil
	}
	return u
}

// Credential describes the stored credential without verifying it: ok is
// false when none is held. Opaque credentials yield zero claims.
func (s *Context) Credential(ctx context.Context) (claims tokenstore.Claims, ok bool, err error) {
	token, err := s.Tokens.Get(ctx)
	if errors.Is(err, tokenstore.ErrNoToken) {
		return tokenstore.Claims{}, false, nil
	}
	if err != nil {
		return tokenstore.Claims{}, false, fmt.Errorf("read credential: %w", err)
	}
	claims, err = tokenstore.Inspect(token)
	if err != nil {
		// A credential that is not a readable JWT is still a credential.
		return tokenstore.Claims{}, true, nil
	}
	return claims, true, nil
}
