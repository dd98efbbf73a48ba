package api

import (
	"github.com/starford/chainpad/internal/session"
)

// ConnectRequest is the request body for connecting an account.
type ConnectRequest struct {
	Account string `json:"account" example:"0x06549fC8614530A91d219fac7baA93e8ef3BF8F2" validate:"required"`
}

// NoteRequest is the request body for creating or updating a note, and for
// the composer and draft fields.
type NoteRequest struct {
	Content string `json:"content" example:"buy milk" validate:"required"`
	Tag     string `json:"tag,omitempty" example:"groceries"`
}

// SearchRequest is the request body for setting the search keyword.
// An empty keyword clears the search.
type SearchRequest struct {
	Keyword string `json:"keyword" example:"milk"`
}

// SessionResponse is the session view returned by every endpoint.
type SessionResponse = session.View

// MutationFailedEvent is broadcast on the event stream when a mutation is
// rejected or reverts.
type MutationFailedEvent struct {
	Op    string `json:"op" example:"create"`
	Index *int   `json:"index,omitempty" example:"0"`
	Error string `json:"error"`
	Code  string `json:"code"`
}
