package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/apiclient"
	"github.com/dmphub/dmphub/internal/auth"
	"github.com/dmphub/dmphub/internal/metrics"
	"github.com/dmphub/dmphub/internal/plan"
	"github.com/dmphub/dmphub/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	AccountStore   *account.Store
	ClientStore    *apiclient.Store
	PlanStore      *plan.Store
	Ingestor       *plan.Ingestor
	Auth           *auth.Service
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(metricsMiddleware(deps.Metrics))
	r.Use(slogRequestLogger)

	// Handlers.
	plans := newPlansHandler(deps.Ingestor, deps.PlanStore, deps.Metrics)
	authH := newAuthHandler(deps.AccountStore, deps.Metrics)
	users := newUsersHandler(deps.AccountStore)
	clients := newClientsHandler(deps.ClientStore)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Metrics: JSON summary for humans, exposition format for scrapers.
	r.Get("/metrics", deps.Metrics.SummaryHandler())
	r.Handle("/metrics/prometheus", deps.Metrics.Handler())

	// Session login (unauthenticated).
	r.Post("/api/v1/auth/login", authH.Login)
	r.Post("/api/v1/auth/logout", authH.Logout)

	// Admin routes (require an org admin session).
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(auth.AdminSessionMiddleware(deps.AccountStore))

		ar.Post("/api-clients", clients.CreateClient)
		ar.Get("/api-clients", clients.ListClients)
		ar.Delete("/api-clients/{id}", clients.DeleteClient)

		ar.Post("/users", users.CreateUser)
		ar.Get("/users", users.ListUsers)
		ar.Get("/users/export", users.ExportUsers)
	})

	// Authed routes: accept either an API client key or a user session.
	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(auth.CallerAuthMiddleware(deps.Auth))
		ar.Use(ratelimit.Middleware(deps.Limiter, deps.Metrics.IncRateLimitRejection))

		ar.Get("/auth/me", authH.Me)

		ar.Post("/plans", plans.CreatePlan)
		ar.Get("/plans", plans.ListPlans)
		ar.Get("/plans/{id}", plans.GetPlan)
	})

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
