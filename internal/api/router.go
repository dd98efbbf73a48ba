package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Session lifecycle.
	r.Get("/session", h.GetSession)
	r.Post("/session/connect", h.Connect)
	r.Post("/session/disconnect", h.Disconnect)
	r.Post("/session/refresh", h.Refresh)

	// Notes.
	r.Put("/composer", h.SetComposer)
	r.Post("/notes", h.CreateNote)
	r.Put("/notes/{index}", h.UpdateNote)
	r.Delete("/notes/{index}", h.DeleteNote)

	// Edit draft.
	r.Post("/edit/{index}", h.BeginEdit)
	r.Put("/edit", h.SetDraft)
	r.Delete("/edit", h.CancelEdit)

	// Search.
	r.Put("/search", h.SetKeyword)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
