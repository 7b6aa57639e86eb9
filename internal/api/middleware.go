// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sherchat/relay/internal/auth"
	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/metrics"
	"github.com/sherchat/relay/internal/models"
)

// ChiMiddleware provides Chi-compatible middleware factories backed by the
// production-hardened Chi ecosystem implementations.
type ChiMiddleware struct {
	cfg  *config.SecurityConfig
	cors func(http.Handler) http.Handler
}

// NewChiMiddleware creates middleware factories from the security config.
func NewChiMiddleware(cfg *config.SecurityConfig) *ChiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	return &ChiMiddleware{cfg: cfg, cors: corsHandler}
}

// CORS returns the CORS middleware; it must be global to handle OPTIONS
// preflight.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the default per-IP API rate limiter. A non-positive
// request budget disables limiting.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	if m.cfg.RateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.LimitByIP(m.cfg.RateLimitReqs, m.cfg.RateLimitWindow)
}

// RateLimitLogin returns the strict limiter for login and registration,
// sized for brute force prevention rather than throughput.
func (m *ChiMiddleware) RateLimitLogin() func(http.Handler) http.Handler {
	if m.cfg.LoginRateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.LimitByIP(m.cfg.LoginRateLimitReqs, m.cfg.LoginRateLimitWindow)
}

// APISecurityHeaders returns a middleware that adds security headers to API
// responses.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrometheusMetrics records request durations labeled by method, route
// pattern, and status.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		metrics.HTTPRequestDuration.With(prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(ww.statusCode),
		}).Observe(time.Since(start).Seconds())
	})
}

// statusResponseWriter wraps http.ResponseWriter to capture the status code.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

type contextKey string

const userContextKey contextKey = "sherchat.user"

// UserFromContext returns the authenticated user attached by Authenticate,
// or nil.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// bearerToken extracts the credential from the Authorization header, or
// from the token query parameter as a fallback for websocket clients that
// cannot set headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves the bearer token to a live user and attaches it to
// the request context. Requests without a resolvable identity get 401.
func (m *ChiMiddleware) Authenticate(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.Authenticate(r.Context(), bearerToken(r))
			if err != nil {
				logging.Debug().Err(err).Str("path", r.URL.Path).Msg("request authentication failed")
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
