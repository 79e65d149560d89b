package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// The stream outlives any request timeout
		r.Get("/device/stream", s.HandleDeviceStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/me", s.HandleGetCurrentOperator)

			// Device
			r.Get("/device", s.HandleGetDevice)
			r.Get("/device/packet", s.HandleGetDevicePacket)
			r.Post("/device/configure", s.HandleConfigure)

			// Packets
			r.Route("/packets", func(r chi.Router) {
				r.Post("/build", s.HandleBuildPacket)
				r.Post("/decode", s.HandleDecodePacket)
			})

			// Settings files
			r.Route("/settings", func(r chi.Router) {
				r.Get("/default", s.HandleDefaultSettings)
				r.Post("/load", s.HandleLoadSettings)
				r.Post("/save", s.HandleSaveSettings)
			})

			// Configuration logs
			r.Route("/configurations", func(r chi.Router) {
				r.Get("/", s.HandleListConfigurations)
				r.Get("/export", s.HandleExportConfigurations)
				r.Get("/{id}", s.HandleGetConfiguration)
			})

			// Events
			r.Route("/events", func(r chi.Router) {
				r.Get("/", s.HandleListEvents)
			})
		})
	})
}
