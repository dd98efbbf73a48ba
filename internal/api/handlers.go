package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/chainpad/internal/apperr"
	"github.com/starford/chainpad/internal/identity"
	"github.com/starford/chainpad/internal/session"
	"github.com/starford/chainpad/internal/sse"
)

// Identity is a provider the API can also connect and disconnect.
type Identity interface {
	identity.Provider
	identity.Connector
}

// Publisher broadcasts transient events to stream clients.
type Publisher interface {
	Publish(event sse.Event)
}

// Handler holds API route handlers.
type Handler struct {
	sess   *session.Session
	ident  Identity
	events Publisher
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithIdentity enables the connect and disconnect endpoints.
func WithIdentity(ident Identity) HandlerOption {
	return func(h *Handler) { h.ident = ident }
}

// WithEvents sets where mutation failures are broadcast.
func WithEvents(p Publisher) HandlerOption {
	return func(h *Handler) { h.events = p }
}

// NewHandler creates a new Handler.
func NewHandler(sess *session.Session, opts ...HandlerOption) *Handler {
	h := &Handler{sess: sess}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func noteIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, &apperr.ValidationError{Field: "index", Message: "must be an integer"}
	}
	return i, nil
}

func (h *Handler) writeView(w http.ResponseWriter, status int) {
	writeJSON(w, status, h.sess.Snapshot())
}

// mutationFailed reports err and, when it came from the ledger, broadcasts it.
func (h *Handler) mutationFailed(w http.ResponseWriter, op string, index *int, err error) {
	var subErr *apperr.SubmissionError
	if h.events != nil && errors.As(err, &subErr) {
		_, code := errorStatus(err)
		h.events.Publish(sse.Event{Type: "mutation.failed", Data: MutationFailedEvent{
			Op:    op,
			Index: index,
			Error: err.Error(),
			Code:  code,
		}})
	}
	slog.Info("mutation refused", slog.String("op", op), slog.String("error", err.Error()))
	writeError(w, op, err)
}

// GetSession handles GET /api/session.
//
//	@Summary		Get the current session view
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	h.writeView(w, http.StatusOK)
}

// Connect handles POST /api/session/connect.
//
//	@Summary		Connect an account and load its notes
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConnectRequest	true	"Account to connect"
//	@Success		200		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		501		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/connect [post]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if h.ident == nil {
		writeError(w, "connect", apperr.ErrUnsupported)
		return
	}
	var req ConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.ident.Connect(r.Context(), req.Account); err != nil {
		writeError(w, "connect", err)
		return
	}
	// The session may already have seen the transition through its
	// subscription; then this returns at once.
	if err := h.sess.HandleIdentity(r.Context(), h.ident.Current()); err != nil {
		slog.Warn("initial fetch failed", slog.String("error", err.Error()))
	}
	h.writeView(w, http.StatusOK)
}

// Disconnect handles POST /api/session/disconnect.
//
//	@Summary		Disconnect the current account
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Failure		501	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/disconnect [post]
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if h.ident == nil {
		writeError(w, "disconnect", apperr.ErrUnsupported)
		return
	}
	if err := h.ident.Disconnect(r.Context()); err != nil {
		writeError(w, "disconnect", err)
		return
	}
	if err := h.sess.HandleIdentity(r.Context(), h.ident.Current()); err != nil {
		writeError(w, "disconnect", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// Refresh handles POST /api/session/refresh.
//
//	@Summary		Reload the note list and active search
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Failure		428	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Refresh(r.Context()); err != nil {
		writeError(w, "refresh", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// SetComposer handles PUT /api/composer.
//
//	@Summary		Store the create-note input fields
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NoteRequest	true	"Composer fields"
//	@Success		200		{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/composer [put]
func (h *Handler) SetComposer(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	h.sess.SetComposer(req.Content, req.Tag)
	h.writeView(w, http.StatusOK)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note and wait for it to confirm
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NoteRequest	true	"Note to create"
//	@Success		201		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.sess.SubmitCreate(r.Context(), req.Content, req.Tag); err != nil {
		h.mutationFailed(w, "create", nil, err)
		return
	}
	h.writeView(w, http.StatusCreated)
}

// UpdateNote handles PUT /api/notes/{index}.
//
//	@Summary		Save the open draft of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			index	path		int			true	"Note index"
//	@Param			body	body		NoteRequest	true	"Updated content"
//	@Success		200		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{index} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	index, err := noteIndex(r)
	if err != nil {
		writeError(w, "update", err)
		return
	}
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.sess.SubmitUpdate(r.Context(), index, req.Content, req.Tag); err != nil {
		h.mutationFailed(w, "update", &index, err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// DeleteNote handles DELETE /api/notes/{index}.
//
//	@Summary		Delete a note and wait for it to confirm
//	@Tags			notes
//	@Produce		json
//	@Param			index	path		int	true	"Note index"
//	@Success		200		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{index} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	index, err := noteIndex(r)
	if err != nil {
		writeError(w, "delete", err)
		return
	}
	if err := h.sess.SubmitDelete(r.Context(), index); err != nil {
		h.mutationFailed(w, "delete", &index, err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// BeginEdit handles POST /api/edit/{index}.
//
//	@Summary		Open a draft of a rendered note
//	@Tags			edit
//	@Produce		json
//	@Param			index	path		int	true	"Note index"
//	@Success		200		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/edit/{index} [post]
func (h *Handler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	index, err := noteIndex(r)
	if err != nil {
		writeError(w, "begin edit", err)
		return
	}
	if err := h.sess.BeginEdit(index); err != nil {
		writeError(w, "begin edit", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// SetDraft handles PUT /api/edit.
//
//	@Summary		Replace the open draft's fields
//	@Tags			edit
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NoteRequest	true	"Draft fields"
//	@Success		200		{object}	SessionResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/edit [put]
func (h *Handler) SetDraft(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.sess.SetDraft(req.Content, req.Tag); err != nil {
		writeError(w, "set draft", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// CancelEdit handles DELETE /api/edit.
//
//	@Summary		Discard the open draft
//	@Tags			edit
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/edit [delete]
func (h *Handler) CancelEdit(w http.ResponseWriter, _ *http.Request) {
	if err := h.sess.CancelEdit(); err != nil {
		writeError(w, "cancel edit", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// SetKeyword handles PUT /api/search.
//
//	@Summary		Set or clear the search keyword
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SearchRequest	true	"Keyword"
//	@Success		200		{object}	SessionResponse
//	@Failure		501		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [put]
func (h *Handler) SetKeyword(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.sess.SetKeyword(r.Context(), req.Keyword); err != nil {
		writeError(w, "search", err)
		return
	}
	h.writeView(w, http.StatusOK)
}
