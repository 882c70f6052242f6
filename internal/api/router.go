package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/servicedesk-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		// Health reports whether the caller is authenticated but never
		// rejects a bad credential.
		r.Get("/health", s.optional(s.handleHealth))
		r.Get("/metrics", s.handleMetrics)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/bootstrap", s.handleBootstrap)

			r.Post("/logout", s.guard(auth.RequireAuth, s.handleLogout))
			r.Get("/me", s.guard(auth.RequireAuth, s.handleMe))
			r.Get("/sessions", s.guard(auth.RequireAuth, s.handleListSessions))
		})

		r.Get("/audit", s.guard(auth.RequireAdmin, s.handleListAuditLogs))
	})

	return r
}
