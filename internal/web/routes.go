package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance-engine/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	sessionsHandler := handlers.NewSessionsHandler(s.reconciler, s.defaultGrace)
	framesHandler := handlers.NewFramesHandler(s.processor)
	studentsHandler := handlers.NewStudentsHandler(s.processor, s.gallery)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Sessions
		r.Post("/sessions", sessionsHandler.Create)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Post("/sessions/{id}/complete", sessionsHandler.Complete)
		r.Post("/sessions/{id}/cancel", sessionsHandler.Cancel)
		r.Put("/sessions/{id}/records/{studentID}", sessionsHandler.MarkRecord)
		r.Post("/sessions/{id}/frames", framesHandler.Process)

		// Students
		r.Post("/students/{id}/enroll", studentsHandler.Enroll)
		r.Get("/students/{id}/gallery", studentsHandler.Gallery)
		r.Delete("/students/{id}/gallery/{algorithmID}", studentsHandler.Deactivate)
	})
}
