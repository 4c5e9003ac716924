// Package api assembles the HTTP surface: public intake, the internal
// self-re-invocation endpoint, and the authenticated query/management API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/sharadbhat/chartsage/internal/api/middleware"
	"github.com/sharadbhat/chartsage/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth         *mw.Auth
	RateLimit    *mw.RateLimit
	TriggerToken string

	HealthHandler  http.HandlerFunc
	ImagesHandler  http.HandlerFunc
	ProcessHandler http.HandlerFunc

	GetJobHandler      http.HandlerFunc
	ListResults        http.HandlerFunc
	DeleteResult       http.HandlerFunc
	QueueStatusHandler http.HandlerFunc
	CreateKeyHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Inbound image events; upstream webhook verification happens before this
	// service, so intake itself is unauthenticated.
	r.Post("/api/v1/images", orNotImplemented(deps.ImagesHandler))

	// Self-re-invocation entry point, shared-secret protected.
	r.Group(func(r chi.Router) {
		r.Use(mw.TriggerAuth(deps.TriggerToken))
		r.Post("/internal/v1/process", orNotImplemented(deps.ProcessHandler))
	})

	// Query/management API, API-key protected.
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Get("/api/v1/results/{userID}", orNotImplemented(deps.ListResults))
		r.Delete("/api/v1/results/{userID}/{tf}", orNotImplemented(deps.DeleteResult))
		r.Get("/api/v1/queue/{userID}", orNotImplemented(deps.QueueStatusHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
