package apiapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nicklasc86/travelbot/internal/transport/http/handlers"
)

type Dependencies struct {
	Ingester    handlers.Ingester
	RateLimiter handlers.IngestLimiter
	Searcher    handlers.Searcher
	Reviewer    handlers.Reviewer
	AdminAuth   AdminAuth
	Audit       handlers.AuditLog
	Health      *handlers.HealthHandler
	Metrics     http.Handler
	Logger      *zap.Logger
}

// AdminAuth covers login, logout and token validation.
type AdminAuth interface {
	handlers.AdminAuthenticator
	tokenValidator
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := deps.Health
	if healthHandler == nil {
		healthHandler = handlers.NewHealthHandler()
	}

	ingestHandler := handlers.NewIngestHandler(deps.Ingester, deps.Logger)
	if deps.RateLimiter != nil {
		ingestHandler.AttachRateLimiter(deps.RateLimiter)
	}
	if deps.Audit != nil {
		ingestHandler.AttachAudit(deps.Audit)
	}
	searchHandler := handlers.NewSearchHandler(deps.Searcher, deps.Logger)

	var authenticator handlers.AdminAuthenticator
	var validator tokenValidator
	if deps.AdminAuth != nil {
		authenticator, validator = deps.AdminAuth, deps.AdminAuth
	}
	adminHandler := handlers.NewAdminHandler(authenticator, deps.Reviewer, deps.Logger)
	if deps.Audit != nil {
		adminHandler.AttachAudit(deps.Audit)
	}
	adminMW := RequireAdmin(validator, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	r.Get("/readyz", healthHandler.Ready)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Post("/ingest", ingestHandler.Handle)
	r.Post("/search", searchHandler.Handle)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", adminHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(adminMW)
			r.Post("/logout", adminHandler.Logout)
			r.Get("/review", adminHandler.ListPending)
			r.Post("/approve/{id}", adminHandler.Approve)
			r.Post("/reject/{id}", adminHandler.Reject)
			r.Get("/tips/{id}/state", adminHandler.State)
			r.Get("/tips/{id}/events", adminHandler.Events)
		})
	})
}
