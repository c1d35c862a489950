package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/finetunehub/internal/api/middleware"
	"github.com/kiranshivaraju/finetunehub/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler        http.HandlerFunc
	SubmitHandler        http.HandlerFunc
	LoginHandler         http.HandlerFunc
	RegisterMinerHandler http.HandlerFunc

	StartListeningHandler http.HandlerFunc
	StartTrainingHandler  http.HandlerFunc
	UpdateStatusHandler   http.HandlerFunc
	PendingJobsHandler    http.HandlerFunc
	JobDetailsHandler     http.HandlerFunc
	JobStatusHandler      http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// Public
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Post("/submit-training", orNotImplemented(deps.SubmitHandler))
	r.Post("/login", orNotImplemented(deps.LoginHandler))
	r.Post("/register-miner", orNotImplemented(deps.RegisterMinerHandler))

	// Miner routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/start-listening", orNotImplemented(deps.StartListeningHandler))
		r.Post("/start-training/{docId}", orNotImplemented(deps.StartTrainingHandler))
		r.Patch("/update-status/{docId}", orNotImplemented(deps.UpdateStatusHandler))
		r.Get("/pending-jobs", orNotImplemented(deps.PendingJobsHandler))
		r.Get("/job-details/{docId}", orNotImplemented(deps.JobDetailsHandler))
		r.Get("/job-status/{docId}", orNotImplemented(deps.JobStatusHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented")
	}
}
