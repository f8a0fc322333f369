package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/lectern/internal/readerservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *readerservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/libraries", h.ListLibraries)
	r.Post("/libraries", h.RegisterLibrary)
	r.Get("/due", h.DueAcrossLibraries)

	r.Route("/libraries/{library}", func(r chi.Router) {
		r.Get("/due", h.DueToday)
		r.Get("/find", h.FindNotes)

		// Queue transitions.
		r.Post("/queue", h.AddToQueue)
		r.Post("/feedback", h.RecordFeedback)
		r.Post("/move", h.MoveToQueue)
		r.Post("/forget", h.Forget)

		r.Post("/extract", h.Extract)

		// Per-note reads. The note path is the wildcard tail.
		r.Get("/notes/*", h.GetNote)
		r.Get("/validate/*", h.ValidateRange)
		r.Get("/expand/*", h.ExpandContent)
		r.Get("/children/*", h.Children)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
