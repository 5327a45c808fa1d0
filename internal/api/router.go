package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabilist/tabilist/internal/auth"
	"github.com/tabilist/tabilist/internal/group"
	"github.com/tabilist/tabilist/internal/metrics"
	"github.com/tabilist/tabilist/internal/ratelimit"
	"github.com/tabilist/tabilist/internal/token"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Auth    *auth.Service
	Groups  *group.Service
	Tokens  *token.Service
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	DBPool  *pgxpool.Pool

	AllowedOrigins []string
	SecureCookies  bool
	RefreshTTL     time.Duration
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger(deps.Metrics))

	// Handlers.
	authH := newAuthHandler(deps.Auth, deps.RefreshTTL, deps.SecureCookies, deps.Metrics)
	groupsH := newGroupHandler(deps.Groups)

	// Health check. Degrades to 503 when the database is unreachable.
	r.Get("/health", healthHandler(deps.DBPool))

	// Metrics.
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
		r.Get("/metrics/prometheus", promhttp.HandlerFor(
			deps.Metrics.Registry(),
			promhttp.HandlerOpts{},
		).ServeHTTP)
	}

	r.Route("/api/v1", func(api chi.Router) {
		var onCSRFReject []func()
		if deps.Metrics != nil {
			onCSRFReject = append(onCSRFReject, deps.Metrics.IncCSRFRejection)
		}
		api.Use(csrfGuard(deps.SecureCookies, onCSRFReject...))

		// Credential endpoints sit behind the rate limiter.
		api.Group(func(limited chi.Router) {
			var onLimitReject []func()
			if deps.Metrics != nil {
				onLimitReject = append(onLimitReject, deps.Metrics.IncRateLimitRejection)
			}
			limited.Use(ratelimit.Middleware(deps.Limiter, onLimitReject...))

			limited.Post("/auth/signup", authH.Signup)
			limited.Post("/auth/login", authH.Login)
		})

		// Cookie-based session endpoints; no bearer token required.
		api.Post("/auth/refresh", authH.Refresh)
		api.Get("/auth/csrf", authH.CSRFToken)

		// Logout accepts an expired or missing access token; the auth
		// middleware is applied leniently inside the handler instead.
		api.Post("/auth/logout", authH.Logout)

		// Bearer-authed routes.
		api.Group(func(authed chi.Router) {
			authed.Use(auth.Middleware(deps.Tokens))

			authed.Get("/auth/me", authH.Me)

			authed.Get("/groups", groupsH.List)
			authed.Post("/groups", groupsH.Create)
			authed.Get("/groups/personal", groupsH.GetPersonal)
			authed.Get("/groups/{id}", groupsH.Get)
			authed.Put("/groups/{id}", groupsH.Update)
			authed.Delete("/groups/{id}", groupsH.Delete)
			authed.Post("/groups/{id}/leave", groupsH.Leave)
			authed.Get("/groups/{id}/members", groupsH.ListMembers)
			authed.Delete("/groups/{id}/members/{userID}", groupsH.RemoveMember)
			authed.Post("/groups/{id}/invitations", groupsH.SendInvitation)

			authed.Get("/invitations", groupsH.ListInvitations)
			authed.Post("/invitations/{id}/respond", groupsH.RespondInvitation)
		})
	})

	return r
}

// healthHandler reports liveness and, when a pool is wired, database
// reachability.
func healthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "unhealthy", "database unreachable")
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// slogRequestLogger is a structured logging middleware using slog. When
// metrics are wired it also records the request counter and latency
// histogram, labelled by the chi route pattern rather than the raw path so
// cardinality stays bounded.
func slogRequestLogger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}

			if m != nil {
				m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(duration.Seconds())
			}

			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", duration.Milliseconds(),
				"bytes", ww.BytesWritten(),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}
