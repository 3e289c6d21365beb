package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/synthgen-io/synthgen/internal/api/middleware"
	"github.com/synthgen-io/synthgen/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	RegisterHandler http.HandlerFunc
	LoginHandler    http.HandlerFunc
	RefreshHandler  http.HandlerFunc
	LogoutHandler   http.HandlerFunc
	MeHandler       http.HandlerFunc

	UploadHandler   http.HandlerFunc
	ListJobsHandler http.HandlerFunc
	GetJobHandler   http.HandlerFunc
	TrainHandler    http.HandlerFunc

	GenerateHandler        http.HandlerFunc
	ListGenerationsHandler http.HandlerFunc
	GetGenerationHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Post("/api/v1/auth/register", orNotImplemented(deps.RegisterHandler))
	r.Post("/api/v1/auth/login", orNotImplemented(deps.LoginHandler))
	r.Post("/api/v1/auth/refresh", orNotImplemented(deps.RefreshHandler))
	r.Post("/api/v1/auth/logout", orNotImplemented(deps.LogoutHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/auth/me", orNotImplemented(deps.MeHandler))

		r.Post("/api/v1/upload", orNotImplemented(deps.UploadHandler))

		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Post("/api/v1/jobs/train", orNotImplemented(deps.TrainHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Post("/api/v1/jobs/{jobID}/generate", orNotImplemented(deps.GenerateHandler))

		r.Get("/api/v1/generations", orNotImplemented(deps.ListGenerationsHandler))
		r.Get("/api/v1/generations/{generationJobID}", orNotImplemented(deps.GetGenerationHandler))
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
