package api

import (
	"github.com/aispeak/progressd/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, verifier auth.Verifier) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Everything under /progress requires a verified identity.
	r.Route("/progress", func(r chi.Router) {
		r.Use(RequireAuth(verifier))

		// Static segments must be registered so they are not
		// swallowed by the {userID} parameter.
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/similar/{userID}", h.FindSimilar)

		r.Post("/", h.CreateProgress)
		r.Get("/{userID}", h.GetProgress)
		r.Put("/{userID}", h.UpdateProgress)
	})

	return r
}
