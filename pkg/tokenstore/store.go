// Package tokenstore keeps the storefront's single bearer credential.
//
// A store holds at most one credential. Set overwrites, Clear removes, and
// Get reports ErrNoToken once the slot is empty or its expiry has passed.
// Stores never navigate or reload anything; that is the caller's choice.
package tokenstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is the slot name shared by the cookie-backed stores.
const DefaultCookieName = "auth_token"

const (
	// DefaultTTL applies to ordinary sign-ins.
	DefaultTTL = 7 * 24 * time.Hour
	// ExtendedTTL applies when the user asked to be remembered.
	ExtendedTTL = 30 * 24 * time.Hour
)

// ErrNoToken is returned by Get when no credential is stored.
var ErrNoToken = errors.New("no credential stored")

// Store persists the bearer credential.
type Store interface {
	Set(ctx context.Context, token string, extended bool) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// TTL returns the credential lifetime for the remember-me flag.
func TTL(extended bool) time.Duration {
	if extended {
		return ExtendedTTL
	}
	return DefaultTTL
}

// Claims is what Inspect can tell about a credential without verifying it.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the credential carries an expiry that has passed.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect reads the subject and expiry of a JWT credential without checking
// its signature. The client never trusts these values for authorization;
// they only feed logs and status output. Opaque (non-JWT) credentials
// return zero Claims and no error.
func Inspect(token string) (Claims, error) {
	if strings.Count(token, ".") != 2 {
		return Claims{}, nil
	}

	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, err
	}

	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}
