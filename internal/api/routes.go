package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/contacts", h.HandleCreateContact)
		r.Get("/contacts/{contactID}", h.HandleGetContact)

		r.Route("/queue", func(r chi.Router) {
			r.Post("/", h.HandleEnqueue)
			r.Get("/stats", h.HandleQueueStats)
			r.Get("/stuck", h.HandleStuckItems)
			r.Get("/{itemID}", h.HandleGetQueueItem)
			r.Post("/{itemID}/requeue", h.HandleRequeue)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.HandleCreateSession)
			r.Get("/{sessionID}", h.HandleGetSession)
			r.Post("/{sessionID}/start", h.HandleStartSession)
			r.Post("/{sessionID}/stop", h.HandleStopSession)
			r.Post("/{sessionID}/pause", h.HandlePauseSession)
			r.Post("/{sessionID}/resume", h.HandleResumeSession)
		})

		r.Route("/ab-tests", func(r chi.Router) {
			r.Post("/", h.HandleCreateTest)
			r.Get("/{testID}", h.HandleGetTest)
			r.Post("/{testID}/activate", h.HandleActivateTest)
			r.Post("/{testID}/pause", h.HandlePauseTest)
			r.Post("/{testID}/complete", h.HandleCompleteTest)
			r.Post("/{testID}/assign", h.HandleAssignVariant)
			r.Get("/{testID}/results", h.HandleTestResults)
		})
		r.Post("/ab-events", h.HandleRecordEvent)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/cadence", h.HandleGetSettings)
			r.Put("/cadence", h.HandleSaveSettings)
		})

		r.Post("/outreach/run", h.HandleRunOutreach)
	})

	return r
}
