// Package handler serves the storefront's admin endpoint: health probes,
// Prometheus metrics, a session snapshot, cookie lookups and allowlisted
// pprof.
package handler

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/freshcart/internal/domain"
	"github.com/utafrali/freshcart/internal/session"
	"github.com/utafrali/freshcart/pkg/health"
	"github.com/utafrali/freshcart/pkg/tokenstore"
)

// Breaker reports the request layer's circuit breaker state.
type Breaker interface {
	BreakerState() gobreaker.State
}

// RouterConfig holds the admin router's settings.
type RouterConfig struct {
	// PprofCIDRs may reach /debug/pprof.
	PprofCIDRs []string
	// Cookie names the credential cookie read by /whoami.
	Cookie tokenstore.CookieOptions
}

// SessionView is the JSON shape of GET /session.
type SessionView struct {
	Status      string          `json:"status"`
	DisplayName string          `json:"display_name"`
	UserID      string          `json:"user_id,omitempty"`
	Admin       bool            `json:"admin"`
	Loading     bool            `json:"loading"`
	Breaker     string          `json:"breaker,omitempty"`
	Credential  *CredentialView `json:"credential,omitempty"`
}

// CredentialView describes the held credential from its unverified claims.
type CredentialView struct {
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
}

// WhoamiView is the JSON shape of GET /whoami.
type WhoamiView struct {
	User *domain.User `json:"user"`
}

// NewRouter creates the admin router. breaker may be nil.
func NewRouter(sess *session.Context, breaker Breaker, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(Tracing)
	r.Use(RequestLogging(logger))
	r.Use(Metrics)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))

		r.Get("/health/live", healthHandler.LivenessHandler())
		r.Get("/health/ready", healthHandler.ReadinessHandler())
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/session", sessionHandler(sess, breaker))
		r.Get("/whoami", whoamiHandler(sess, cfg.Cookie))
	})

	// Profiles run longer than the timeout above.
	r.Group(func(r chi.Router) {
		r.Use(IPAllowlist(cfg.PprofCIDRs, logger))
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	})

	return r
}

func sessionHandler(sess *session.Context, breaker Breaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := SessionView{
			Status:      sess.Status().String(),
			DisplayName: sess.DisplayName(),
			Admin:       sess.IsAdmin(),
			Loading:     sess.Loading(),
		}
		if u := sess.CurrentUser(); u != nil {
			view.UserID = u.ID
		}
		if breaker != nil {
			view.Breaker = breaker.BreakerState().String()
		}

		claims, held, err := sess.Credential(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "CREDENTIAL_UNAVAILABLE", err.Error())
			return
		}
		if held {
			view.Credential = &CredentialView{
				Subject: claims.Subject,
				Expired: claims.Expired(time.Now()),
			}
			if !claims.ExpiresAt.IsZero() {
				exp := claims.ExpiresAt.UTC()
				view.Credential.ExpiresAt = &exp
			}
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// whoamiHandler resolves the user behind the credential cookie of the
// inbound request. A missing or rejected cookie yields a null user.
func whoamiHandler(sess *session.Context, cookie tokenstore.CookieOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens := tokenstore.NewRequestCookies(w, r, cookie)
		writeJSON(w, http.StatusOK, WhoamiView{User: sess.RequestUser(r.Context(), tokens)})
	}
}
