// Package api exposes the triage service over HTTP: patient and visit
// registration, the prioritized queue, the prediction log, and the
// classification trigger.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lakeside-health/triage-api/internal/store"
	"github.com/lakeside-health/triage-api/internal/triage"
)

// Server wires the domain services into an HTTP handler.
type Server struct {
	store      store.Store
	classifier *triage.Classifier
	queue      *triage.Queue
}

// NewServer builds a Server around the given store and triage services.
func NewServer(st store.Store, classifier *triage.Classifier, queue *triage.Queue) *Server {
	return &Server{store: st, classifier: classifier, queue: queue}
}

// Router returns the full route tree. allowedOrigins feeds the CORS layer;
// an empty slice allows none.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/patients", s.handleCreatePatient)
		r.Get("/patients", s.handleListPatients)
		r.Post("/visits", s.handleCreateVisit)
		r.Get("/visits", s.handleListVisits)
		r.Get("/queue", s.handleQueue)
		r.Get("/predictions", s.handleListPredictions)
		r.Post("/triage/{visit_id}", s.handleTriage)
	})

	return r
}
