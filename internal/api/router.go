package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/raido/internal/session"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *session.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Data acquisition and record queries.
	r.Post("/fetch", h.FetchData)
	r.Get("/records", h.ListRecords)
	r.Get("/records/summary", h.GetSummary)

	// Playback controls.
	r.Get("/playback", h.GetPlayback)
	r.Post("/playback/play", h.Play)
	r.Post("/playback/stop", h.StopPlayback)
	r.Post("/playback/select", h.SelectDate)
	r.Post("/playback/mode", h.SetMode)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
