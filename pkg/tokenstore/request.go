package tokenstore

import (
	"context"
	"net/http"
	"sync"
)

// RequestCookies is a per-request store for server-rendered callers: it reads
// the credential from the incoming request and writes Set-Cookie headers on
// the response. Writes are visible to later Gets on the same value.
type RequestCookies struct {
	mu      sync.Mutex
	r       *http.Request
	w       http.ResponseWriter
	opts    CookieOptions
	written bool
	value   string
}

// NewRequestCookies binds a store to one request/response pair.
func NewRequestCookies(w http.ResponseWriter, r *http.Request, opts CookieOptions) *RequestCookies {
	return &RequestCookies{r: r, w: w, opts: opts}
}

// Set emits the credential cookie.
func (s *RequestCookies) Set(_ context.Context, token string, extended bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	http.SetCookie(s.w, s.opts.cookie(token, int(TTL(extended).Seconds())))
	s.written, s.value = true, token
	return nil
}

// Get prefers a value written during this request over the inbound cookie.
func (s *RequestCookies) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written {
		if s.value == "" {
			return "", ErrNoToken
		}
		return s.value, nil
	}
	c, err := s.r.Cookie(s.opts.name())
	if err != nil || c.Value == "" {
		return "", ErrNoToken
	}
	return decodeCookieValue(c.Value)
}

// Clear emits an expired cookie.
func (s *RequestCookies) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	http.SetCookie(s.w, s.opts.cookie("", -1))
	s.written, s.value = true, ""
	return nil
}
