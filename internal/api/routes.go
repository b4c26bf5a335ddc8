package api

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupAPIRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/me", s.handleMe)

		r.Route("/inclusion-mode", func(r chi.Router) {
			r.Get("/", s.handleGetInclusionMode)
			r.Put("/", s.handleSetInclusionMode)
		})

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Route("/{deviceID}", func(r chi.Router) {
				r.Get("/", s.handleGetNode)
				r.Get("/events", s.handleListNodeEvents)
				r.Get("/routes", s.handleGetRoutingSnapshot)
				r.Get("/inclusion-audit", s.handleListInclusionAudit)
			})
		})

		r.Get("/events/stream", s.handleEventStream)
	})
}
