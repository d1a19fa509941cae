package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facesearch/internal/web/handlers"
	"github.com/kozaktomas/facesearch/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	imagesHandler := handlers.NewImagesHandler(s.services.Enroller)
	facesHandler := handlers.NewFacesHandler(s.services.Enroller, s.services.Search, s.services.Verifier)
	settingsHandler := handlers.NewSettingsHandler(s.services.Thresholds)
	indexHandler := handlers.NewIndexHandler(s.services.Index)

	// Health check and metrics (no user required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", s.services.Metrics.Handler())

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.UserID())

		// Images
		r.Post("/images", imagesHandler.Upload)
		r.Get("/images/{id}", imagesHandler.Get)
		r.Delete("/images/{id}", imagesHandler.Delete)

		// Faces
		r.Get("/faces", facesHandler.List)
		r.Post("/faces", facesHandler.Add)
		r.Post("/faces/enroll", facesHandler.Enroll)
		r.Delete("/faces/{id}", facesHandler.Delete)
		r.Post("/faces/search", facesHandler.Search)
		r.Post("/faces/search/vector", facesHandler.SearchVector)
		r.Post("/faces/verify", facesHandler.Verify)
		r.Post("/faces/verify/ids", facesHandler.VerifyIDs)
		r.Post("/faces/verify/vectors", facesHandler.VerifyVectors)

		// Settings
		r.Get("/settings/threshold", settingsHandler.GetThreshold)
		r.Put("/settings/threshold", settingsHandler.SetThreshold)

		// Index
		r.Get("/index/status", indexHandler.Status)
		r.Post("/index/rebuild", indexHandler.Rebuild)
	})
}
