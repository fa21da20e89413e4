package tokenstore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// CookieOptions configures the credential cookie.
type CookieOptions struct {
	// Name of the cookie; DefaultCookieName when empty.
	Name string
	// Secure marks the cookie HTTPS-only. Enable in production.
	Secure bool
}

func (o CookieOptions) name() string {
	if o.Name == "" {
		return DefaultCookieName
	}
	return o.Name
}

// cookie builds the credential cookie: whole-site path, SameSite=Lax.
// A negative maxAge deletes it.
func (o CookieOptions) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     o.name(),
		Value:    url.QueryEscape(value),
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
		Secure:   o.Secure,
	}
}

func decodeCookieValue(raw string) (string, error) {
	v, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decode credential cookie: %w", err)
	}
	return v, nil
}

// CookieStore keeps the credential as a cookie in an http.CookieJar scoped
// to the storefront origin. The jar enforces Max-Age and the Secure flag.
// The jar is private to the store: backend requests carry the credential
// as a bearer header only.
type CookieStore struct {
	mu     sync.Mutex
	jar    http.CookieJar
	origin *url.URL
	opts   CookieOptions
}

// NewCookieStore creates a cookie-backed store for the origin of baseURL.
// A nil jar gets a fresh in-memory cookiejar.
func NewCookieStore(jar http.CookieJar, baseURL string, opts CookieOptions) (*CookieStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse cookie origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("cookie origin %q must be absolute", baseURL)
	}
	if jar == nil {
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
	}
	origin := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	return &CookieStore{jar: jar, origin: origin, opts: opts}, nil
}

// Set writes the cookie with Max-Age of 7 or 30 days.
func (s *CookieStore) Set(_ context.Context, token string, extended bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxAge := int(TTL(extended).Seconds())
	s.jar.SetCookies(s.origin, []*http.Cookie{s.opts.cookie(token, maxAge)})
	return nil
}

// Get reads the cookie back from the jar.
func (s *CookieStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.jar.Cookies(s.origin) {
		if c.Name == s.opts.name() && c.Value != "" {
			return decodeCookieValue(c.Value)
		}
	}
	return "", ErrNoToken
}

// Clear expires the cookie immediately.
func (s *CookieStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar.SetCookies(s.origin, []*http.Cookie{s.opts.cookie("", -1)})
	return nil
}
